// internal/repository/message_repository.go
package repository

import (
	"context"
	"fmt"

	"github.com/unclebandit/revive-backend/internal/model"
)

type MessageRepositoryInterface interface {
	Create(ctx context.Context, m *model.Message) error
}

type MessageRepository struct {
	*Postgres
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)

func NewMessageRepository(pg *Postgres) *MessageRepository {
	return &MessageRepository{pg}
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	query, args, err := r.Builder.
		Insert("messages").
		Columns("id", "tenant_id", "provider_id", "from_number", "to_number", "body", "direction", "created_at").
		Values(m.ID, m.TenantID, m.ProviderID, m.From, m.To, m.Body, m.Direction, m.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("MessageRepository - Create - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("MessageRepository - Create - ExecContext: %w", err)
	}
	return nil
}
