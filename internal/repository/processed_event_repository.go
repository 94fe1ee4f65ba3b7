// internal/repository/processed_event_repository.go
package repository

import (
	"context"
	"fmt"

	"github.com/unclebandit/revive-backend/internal/model"
)

// ProcessedEventRepositoryInterface is the storage behind the idempotency ledger.
// Insert must be atomic: it reports false when (kind, id) already exists.
// Release undoes an Insert whose effects failed so the provider's retry is admitted.
type ProcessedEventRepositoryInterface interface {
	Insert(ctx context.Context, ev *model.ProcessedEvent) (bool, error)
	Release(ctx context.Context, kind model.EventKind, id string) error
}

type ProcessedEventRepository struct {
	*Postgres
}

var _ ProcessedEventRepositoryInterface = (*ProcessedEventRepository)(nil)

func NewProcessedEventRepository(pg *Postgres) *ProcessedEventRepository {
	return &ProcessedEventRepository{pg}
}

func (r *ProcessedEventRepository) Insert(ctx context.Context, ev *model.ProcessedEvent) (bool, error) {
	query, args, err := r.Builder.
		Insert("processed_events").
		Columns("kind", "id", "created_at").
		Values(ev.Kind, ev.ID, ev.CreatedAt).
		Suffix("ON CONFLICT (kind, id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("ProcessedEventRepository - Insert - r.Builder.ToSql: %w", err)
	}

	res, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("ProcessedEventRepository - Insert - ExecContext: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ProcessedEventRepository - Insert - RowsAffected: %w", err)
	}
	return n == 1, nil
}

// Release is a no-op: the row was written in the caller's transaction and
// rolls back with it. Deleting here could remove a row a concurrent retry committed.
func (r *ProcessedEventRepository) Release(ctx context.Context, kind model.EventKind, id string) error {
	return nil
}
