// internal/repository/audit_repository.go
package repository

import (
	"context"
	"fmt"

	"github.com/unclebandit/revive-backend/internal/model"
)

type AuditRepositoryInterface interface {
	Create(ctx context.Context, entry *model.AuditLog) error
	ListRecent(ctx context.Context, limit int) ([]*model.AuditLog, error)
}

type AuditRepository struct {
	*Postgres
}

var _ AuditRepositoryInterface = (*AuditRepository)(nil)

func NewAuditRepository(pg *Postgres) *AuditRepository {
	return &AuditRepository{pg}
}

func (r *AuditRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	query, args, err := r.Builder.
		Insert("audit_logs").
		Columns("id", "tenant_id", "type", "data", "created_at").
		Values(entry.ID, entry.TenantID, entry.Type, jsonArg(entry.Data), entry.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("AuditRepository - Create - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("AuditRepository - Create - ExecContext: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]*model.AuditLog, error) {
	query, args, err := r.Builder.
		Select("id", "tenant_id", "type", "data", "created_at").
		From("audit_logs").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("AuditRepository - ListRecent - r.Builder.ToSql: %w", err)
	}

	rows, err := r.GetExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("AuditRepository - ListRecent - QueryContext: %w", err)
	}
	defer rows.Close()

	logs := []*model.AuditLog{}
	for rows.Next() {
		var (
			l    model.AuditLog
			data []byte
		)
		if err := rows.Scan(&l.ID, &l.TenantID, &l.Type, &data, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("AuditRepository - ListRecent - Scan: %w", err)
		}
		l.Data = data
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
