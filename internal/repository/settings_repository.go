// internal/repository/settings_repository.go
package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
)

const GlobalScope = "global"

type SettingsRepositoryInterface interface {
	// IsPaused reports whether outreach is paused globally or for the tenant.
	IsPaused(ctx context.Context, tenantID string) (bool, error)
	SetPaused(ctx context.Context, scope string, paused bool) error
}

type SettingsRepository struct {
	*Postgres
}

var _ SettingsRepositoryInterface = (*SettingsRepository)(nil)

func NewSettingsRepository(pg *Postgres) *SettingsRepository {
	return &SettingsRepository{pg}
}

func (r *SettingsRepository) IsPaused(ctx context.Context, tenantID string) (bool, error) {
	query, args, err := r.Builder.
		Select("COALESCE(bool_or(paused), false)").
		From("outreach_settings").
		Where(squirrel.Eq{"scope": []string{GlobalScope, tenantID}}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("SettingsRepository - IsPaused - r.Builder.ToSql: %w", err)
	}

	var paused bool
	if err := r.GetExecutor(ctx).QueryRowContext(ctx, query, args...).Scan(&paused); err != nil {
		return false, fmt.Errorf("SettingsRepository - IsPaused - Scan: %w", err)
	}
	return paused, nil
}

func (r *SettingsRepository) SetPaused(ctx context.Context, scope string, paused bool) error {
	query, args, err := r.Builder.
		Insert("outreach_settings").
		Columns("scope", "paused", "updated_at").
		Values(scope, paused, squirrel.Expr("now()")).
		Suffix("ON CONFLICT (scope) DO UPDATE SET paused = EXCLUDED.paused, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("SettingsRepository - SetPaused - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("SettingsRepository - SetPaused - ExecContext: %w", err)
	}
	return nil
}
