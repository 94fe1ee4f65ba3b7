// internal/repository/suppression_repository.go
package repository

import (
	"context"
	"fmt"

	"github.com/unclebandit/revive-backend/internal/model"
)

type SuppressionRepositoryInterface interface {
	Create(ctx context.Context, s *model.Suppression) error
	AddDnc(ctx context.Context, entry *model.DncEntry) (bool, error)
	// IsSuppressed checks both opt-outs and the uploaded DNC list.
	IsSuppressed(ctx context.Context, tenantID, phone string) (bool, error)
}

type SuppressionRepository struct {
	*Postgres
}

var _ SuppressionRepositoryInterface = (*SuppressionRepository)(nil)

func NewSuppressionRepository(pg *Postgres) *SuppressionRepository {
	return &SuppressionRepository{pg}
}

func (r *SuppressionRepository) Create(ctx context.Context, s *model.Suppression) error {
	query, args, err := r.Builder.
		Insert("suppressions").
		Columns("id", "tenant_id", "phone", "reason", "created_at").
		Values(s.ID, s.TenantID, s.Phone, s.Reason, s.CreatedAt).
		Suffix("ON CONFLICT (tenant_id, phone) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("SuppressionRepository - Create - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("SuppressionRepository - Create - ExecContext: %w", err)
	}
	return nil
}

func (r *SuppressionRepository) AddDnc(ctx context.Context, entry *model.DncEntry) (bool, error) {
	query, args, err := r.Builder.
		Insert("dnc_entries").
		Columns("id", "tenant_id", "phone", "created_at").
		Values(entry.ID, entry.TenantID, entry.Phone, entry.CreatedAt).
		Suffix("ON CONFLICT (tenant_id, phone) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("SuppressionRepository - AddDnc - r.Builder.ToSql: %w", err)
	}

	res, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("SuppressionRepository - AddDnc - ExecContext: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *SuppressionRepository) IsSuppressed(ctx context.Context, tenantID, phone string) (bool, error) {
	const query = `
        SELECT EXISTS (SELECT 1 FROM suppressions WHERE tenant_id = $1 AND phone = $2)
            OR EXISTS (SELECT 1 FROM dnc_entries WHERE tenant_id = $1 AND phone = $2)
    `
	var suppressed bool
	if err := r.GetExecutor(ctx).QueryRowContext(ctx, query, tenantID, phone).Scan(&suppressed); err != nil {
		return false, fmt.Errorf("SuppressionRepository - IsSuppressed - Scan: %w", err)
	}
	return suppressed, nil
}
