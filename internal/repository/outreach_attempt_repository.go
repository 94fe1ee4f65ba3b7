// internal/repository/outreach_attempt_repository.go
package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/unclebandit/revive-backend/internal/model"
)

type OutreachAttemptRepositoryInterface interface {
	Create(ctx context.Context, a *model.OutreachAttempt) error
	ListByJob(ctx context.Context, jobID string) ([]*model.OutreachAttempt, error)
}

type OutreachAttemptRepository struct {
	*Postgres
}

var _ OutreachAttemptRepositoryInterface = (*OutreachAttemptRepository)(nil)

func NewOutreachAttemptRepository(pg *Postgres) *OutreachAttemptRepository {
	return &OutreachAttemptRepository{pg}
}

func (r *OutreachAttemptRepository) Create(ctx context.Context, a *model.OutreachAttempt) error {
	query, args, err := r.Builder.
		Insert("outreach_attempts").
		Columns("id", "job_id", "outcome", "meta", "created_at").
		Values(a.ID, a.JobID, a.Outcome, jsonArg(a.Meta), a.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("OutreachAttemptRepository - Create - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("OutreachAttemptRepository - Create - ExecContext: %w", err)
	}
	return nil
}

func (r *OutreachAttemptRepository) ListByJob(ctx context.Context, jobID string) ([]*model.OutreachAttempt, error) {
	query, args, err := r.Builder.
		Select("id", "job_id", "outcome", "meta", "created_at").
		From("outreach_attempts").
		Where(squirrel.Eq{"job_id": jobID}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("OutreachAttemptRepository - ListByJob - r.Builder.ToSql: %w", err)
	}

	rows, err := r.GetExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("OutreachAttemptRepository - ListByJob - QueryContext: %w", err)
	}
	defer rows.Close()

	attempts := []*model.OutreachAttempt{}
	for rows.Next() {
		var (
			a    model.OutreachAttempt
			meta []byte
		)
		if err := rows.Scan(&a.ID, &a.JobID, &a.Outcome, &meta, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("OutreachAttemptRepository - ListByJob - Scan: %w", err)
		}
		a.Meta = meta
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}
