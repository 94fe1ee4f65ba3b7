// internal/repository/outreach_job_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/unclebandit/revive-backend/internal/model"
)

type OutreachJobRepositoryInterface interface {
	Create(ctx context.Context, job *model.OutreachJob) error
	GetByID(ctx context.Context, id string) (*model.OutreachJob, error)
	// ClaimDue atomically moves the earliest due job to claimed. A job left
	// in claimed since before staleBefore counts as due again.
	// Returns nil, nil when nothing is due.
	ClaimDue(ctx context.Context, now, staleBefore time.Time) (*model.OutreachJob, error)
	UpdateStatus(ctx context.Context, id string, status model.JobStatus, lastError string) error
	Defer(ctx context.Context, id string, runAt time.Time) error
	MarkRunning(ctx context.Context, id string) error
}

type OutreachJobRepository struct {
	*Postgres
}

var _ OutreachJobRepositoryInterface = (*OutreachJobRepository)(nil)

func NewOutreachJobRepository(pg *Postgres) *OutreachJobRepository {
	return &OutreachJobRepository{pg}
}

var jobColumns = []string{"id", "tenant_id", "revive_lead_id", "status", "run_at", "attempts", "last_error", "claimed_at", "created_at", "updated_at"}

func scanJob(row interface{ Scan(...any) error }) (*model.OutreachJob, error) {
	var (
		j         model.OutreachJob
		claimedAt sql.NullTime
	)
	if err := row.Scan(&j.ID, &j.TenantID, &j.ReviveLeadID, &j.Status, &j.RunAt, &j.Attempts, &j.LastError, &claimedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.ClaimedAt = timePtr(claimedAt)
	return &j, nil
}

func (r *OutreachJobRepository) Create(ctx context.Context, job *model.OutreachJob) error {
	query, args, err := r.Builder.
		Insert("outreach_jobs").
		Columns(jobColumns...).
		Values(job.ID, job.TenantID, job.ReviveLeadID, job.Status, job.RunAt, job.Attempts, job.LastError, nullTime(job.ClaimedAt), job.CreatedAt, job.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("OutreachJobRepository - Create - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("OutreachJobRepository - Create - ExecContext: %w", err)
	}
	return nil
}

func (r *OutreachJobRepository) GetByID(ctx context.Context, id string) (*model.OutreachJob, error) {
	query, args, err := r.Builder.
		Select(jobColumns...).
		From("outreach_jobs").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("OutreachJobRepository - GetByID - r.Builder.ToSql: %w", err)
	}

	job, err := scanJob(r.GetExecutor(ctx).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("OutreachJobRepository - GetByID - scanJob: %w", err)
	}
	return job, nil
}

func (r *OutreachJobRepository) ClaimDue(ctx context.Context, now, staleBefore time.Time) (*model.OutreachJob, error) {
	query, args, err := r.Builder.
		Update("outreach_jobs").
		Set("status", model.JobClaimed).
		Set("claimed_at", now).
		Set("updated_at", now).
		Where(`id = (
			SELECT id FROM outreach_jobs
			WHERE (status = ? AND run_at <= ?)
			   OR (status = ? AND claimed_at <= ?)
			ORDER BY run_at, created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)`, model.JobQueued, now, model.JobClaimed, staleBefore).
		Suffix("RETURNING " + strings.Join(jobColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("OutreachJobRepository - ClaimDue - r.Builder.ToSql: %w", err)
	}

	job, err := scanJob(r.GetExecutor(ctx).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("OutreachJobRepository - ClaimDue - scanJob: %w", err)
	}
	return job, nil
}

func (r *OutreachJobRepository) UpdateStatus(ctx context.Context, id string, status model.JobStatus, lastError string) error {
	query, args, err := r.Builder.
		Update("outreach_jobs").
		Set("status", status).
		Set("last_error", lastError).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("OutreachJobRepository - UpdateStatus - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("OutreachJobRepository - UpdateStatus - ExecContext: %w", err)
	}
	return nil
}

// Defer puts a claimed job back in the queue without touching attempts.
func (r *OutreachJobRepository) Defer(ctx context.Context, id string, runAt time.Time) error {
	query, args, err := r.Builder.
		Update("outreach_jobs").
		Set("status", model.JobQueued).
		Set("run_at", runAt).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("OutreachJobRepository - Defer - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("OutreachJobRepository - Defer - ExecContext: %w", err)
	}
	return nil
}

func (r *OutreachJobRepository) MarkRunning(ctx context.Context, id string) error {
	query, args, err := r.Builder.
		Update("outreach_jobs").
		Set("status", model.JobRunning).
		Set("attempts", squirrel.Expr("attempts + 1")).
		Set("last_error", "").
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("OutreachJobRepository - MarkRunning - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("OutreachJobRepository - MarkRunning - ExecContext: %w", err)
	}
	return nil
}
