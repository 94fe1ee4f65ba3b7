// internal/repository/revive_lead_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/unclebandit/revive-backend/internal/model"
)

type ReviveLeadRepositoryInterface interface {
	Create(ctx context.Context, lead *model.ReviveLead) error
	GetByID(ctx context.Context, id string) (*model.ReviveLead, error)
	// ListEnqueueable returns leads in stage queued with no open job.
	ListEnqueueable(ctx context.Context, tenantID string, limit int) ([]*model.ReviveLead, error)
	MarkAttempted(ctx context.Context, id, stage string, at time.Time) error
}

type ReviveLeadRepository struct {
	*Postgres
}

var _ ReviveLeadRepositoryInterface = (*ReviveLeadRepository)(nil)

func NewReviveLeadRepository(pg *Postgres) *ReviveLeadRepository {
	return &ReviveLeadRepository{pg}
}

var leadColumns = []string{"id", "tenant_id", "name", "phone", "email", "stage", "timezone", "last_attempt_at", "created_at"}

func scanLead(row interface{ Scan(...any) error }) (*model.ReviveLead, error) {
	var (
		l           model.ReviveLead
		tz          sql.NullString
		lastAttempt sql.NullTime
	)
	if err := row.Scan(&l.ID, &l.TenantID, &l.Name, &l.Phone, &l.Email, &l.Stage, &tz, &lastAttempt, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.Timezone = stringPtr(tz)
	l.LastAttemptAt = timePtr(lastAttempt)
	return &l, nil
}

func (r *ReviveLeadRepository) Create(ctx context.Context, lead *model.ReviveLead) error {
	query, args, err := r.Builder.
		Insert("revive_leads").
		Columns(leadColumns...).
		Values(lead.ID, lead.TenantID, lead.Name, lead.Phone, lead.Email, lead.Stage,
			nullString(lead.Timezone), nullTime(lead.LastAttemptAt), lead.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("ReviveLeadRepository - Create - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("ReviveLeadRepository - Create - ExecContext: %w", err)
	}
	return nil
}

// GetByID returns nil, nil when the lead does not exist.
func (r *ReviveLeadRepository) GetByID(ctx context.Context, id string) (*model.ReviveLead, error) {
	query, args, err := r.Builder.
		Select(leadColumns...).
		From("revive_leads").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ReviveLeadRepository - GetByID - r.Builder.ToSql: %w", err)
	}

	lead, err := scanLead(r.GetExecutor(ctx).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ReviveLeadRepository - GetByID - scanLead: %w", err)
	}
	return lead, nil
}

func (r *ReviveLeadRepository) ListEnqueueable(ctx context.Context, tenantID string, limit int) ([]*model.ReviveLead, error) {
	query, args, err := r.Builder.
		Select(leadColumns...).
		From("revive_leads l").
		Where(squirrel.Eq{"l.tenant_id": tenantID, "l.stage": model.LeadStageQueued}).
		Where(`NOT EXISTS (SELECT 1 FROM outreach_jobs j WHERE j.revive_lead_id = l.id AND j.status IN (?, ?, ?))`,
			model.JobQueued, model.JobClaimed, model.JobRunning).
		OrderBy("l.created_at").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ReviveLeadRepository - ListEnqueueable - r.Builder.ToSql: %w", err)
	}

	rows, err := r.GetExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ReviveLeadRepository - ListEnqueueable - QueryContext: %w", err)
	}
	defer rows.Close()

	leads := []*model.ReviveLead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("ReviveLeadRepository - ListEnqueueable - scanLead: %w", err)
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

func (r *ReviveLeadRepository) MarkAttempted(ctx context.Context, id, stage string, at time.Time) error {
	query, args, err := r.Builder.
		Update("revive_leads").
		Set("stage", stage).
		Set("last_attempt_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("ReviveLeadRepository - MarkAttempted - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("ReviveLeadRepository - MarkAttempted - ExecContext: %w", err)
	}
	return nil
}
