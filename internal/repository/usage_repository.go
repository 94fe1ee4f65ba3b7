// internal/repository/usage_repository.go
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/unclebandit/revive-backend/internal/model"
)

type UsageRepositoryInterface interface {
	Append(ctx context.Context, rec *model.UsageRecord) error
	// SumByKind totals amounts whose period starts in [from, to).
	SumByKind(ctx context.Context, tenantID string, from, to time.Time) (map[model.UsageKind]int, error)
	// LockTenant serializes metering for a tenant until the surrounding transaction ends.
	LockTenant(ctx context.Context, tenantID string) error
}

type UsageRepository struct {
	*Postgres
}

var _ UsageRepositoryInterface = (*UsageRepository)(nil)

func NewUsageRepository(pg *Postgres) *UsageRepository {
	return &UsageRepository{pg}
}

func (r *UsageRepository) Append(ctx context.Context, rec *model.UsageRecord) error {
	query, args, err := r.Builder.
		Insert("usage_records").
		Columns("id", "tenant_id", "kind", "amount", "period_start", "period_end", "created_at").
		Values(rec.ID, rec.TenantID, rec.Kind, rec.Amount, rec.PeriodStart, rec.PeriodEnd, rec.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("UsageRepository - Append - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("UsageRepository - Append - ExecContext: %w", err)
	}
	return nil
}

func (r *UsageRepository) SumByKind(ctx context.Context, tenantID string, from, to time.Time) (map[model.UsageKind]int, error) {
	query, args, err := r.Builder.
		Select("kind", "COALESCE(SUM(amount), 0)").
		From("usage_records").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		Where(squirrel.GtOrEq{"period_start": from}).
		Where(squirrel.Lt{"period_start": to}).
		GroupBy("kind").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("UsageRepository - SumByKind - r.Builder.ToSql: %w", err)
	}

	rows, err := r.GetExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("UsageRepository - SumByKind - QueryContext: %w", err)
	}
	defer rows.Close()

	totals := map[model.UsageKind]int{}
	for rows.Next() {
		var (
			kind  model.UsageKind
			total int
		)
		if err := rows.Scan(&kind, &total); err != nil {
			return nil, fmt.Errorf("UsageRepository - SumByKind - Scan: %w", err)
		}
		totals[kind] = total
	}
	return totals, rows.Err()
}

func (r *UsageRepository) LockTenant(ctx context.Context, tenantID string) error {
	if _, err := r.GetExecutor(ctx).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tenantID); err != nil {
		return fmt.Errorf("UsageRepository - LockTenant - ExecContext: %w", err)
	}
	return nil
}
