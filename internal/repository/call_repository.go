// internal/repository/call_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/unclebandit/revive-backend/internal/model"
)

type CallRepositoryInterface interface {
	// Create links the job to a call a webhook may already have inserted.
	Create(ctx context.Context, c *model.Call) error
	GetByID(ctx context.Context, id string) (*model.Call, error)
	// MarkStarted inserts the call if unknown, otherwise flips it to started.
	MarkStarted(ctx context.Context, c *model.Call) error
	UpdateSummary(ctx context.Context, id string, summary json.RawMessage) error
	// MarkEnded closes an open call. It returns nil, nil when the call is
	// unknown or already ended, so a call is settled at most once.
	MarkEnded(ctx context.Context, id string, status model.CallStatus, endedAt time.Time) (*model.Call, error)
	// CountActive counts calls with status started and no ended timestamp.
	CountActive(ctx context.Context, tenantID string) (int, error)
	AddTurn(ctx context.Context, turn *model.CallTurn) error
}

type CallRepository struct {
	*Postgres
}

var _ CallRepositoryInterface = (*CallRepository)(nil)

func NewCallRepository(pg *Postgres) *CallRepository {
	return &CallRepository{pg}
}

var callColumns = []string{"id", "tenant_id", "job_id", "from_number", "to_number", "status", "started_at", "ended_at", "summary", "created_at"}

func scanCall(row interface{ Scan(...any) error }) (*model.Call, error) {
	var (
		c         model.Call
		jobID     sql.NullString
		startedAt sql.NullTime
		endedAt   sql.NullTime
		summary   []byte
	)
	if err := row.Scan(&c.ID, &c.TenantID, &jobID, &c.From, &c.To, &c.Status, &startedAt, &endedAt, &summary, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.JobID = stringPtr(jobID)
	c.StartedAt = timePtr(startedAt)
	c.EndedAt = timePtr(endedAt)
	c.Summary = summary
	return &c, nil
}

func (r *CallRepository) Create(ctx context.Context, c *model.Call) error {
	query, args, err := r.Builder.
		Insert("calls").
		Columns(callColumns...).
		Values(c.ID, c.TenantID, nullString(c.JobID), c.From, c.To, c.Status,
			nullTime(c.StartedAt), nullTime(c.EndedAt), jsonArg(c.Summary), c.CreatedAt).
		Suffix("ON CONFLICT (id) DO UPDATE SET job_id = COALESCE(calls.job_id, EXCLUDED.job_id)").
		ToSql()
	if err != nil {
		return fmt.Errorf("CallRepository - Create - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("CallRepository - Create - ExecContext: %w", err)
	}
	return nil
}

func (r *CallRepository) GetByID(ctx context.Context, id string) (*model.Call, error) {
	query, args, err := r.Builder.
		Select(callColumns...).
		From("calls").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("CallRepository - GetByID - r.Builder.ToSql: %w", err)
	}

	c, err := scanCall(r.GetExecutor(ctx).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("CallRepository - GetByID - scanCall: %w", err)
	}
	return c, nil
}

func (r *CallRepository) MarkStarted(ctx context.Context, c *model.Call) error {
	query, args, err := r.Builder.
		Insert("calls").
		Columns("id", "tenant_id", "from_number", "to_number", "status", "started_at", "created_at").
		Values(c.ID, c.TenantID, c.From, c.To, model.CallStarted, nullTime(c.StartedAt), c.CreatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, started_at = EXCLUDED.started_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("CallRepository - MarkStarted - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("CallRepository - MarkStarted - ExecContext: %w", err)
	}
	return nil
}

func (r *CallRepository) UpdateSummary(ctx context.Context, id string, summary json.RawMessage) error {
	query, args, err := r.Builder.
		Update("calls").
		Set("summary", jsonArg(summary)).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("CallRepository - UpdateSummary - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("CallRepository - UpdateSummary - ExecContext: %w", err)
	}
	return nil
}

func (r *CallRepository) MarkEnded(ctx context.Context, id string, status model.CallStatus, endedAt time.Time) (*model.Call, error) {
	query, args, err := r.Builder.
		Update("calls").
		Set("status", status).
		Set("ended_at", endedAt).
		Where(squirrel.Eq{"id": id, "ended_at": nil}).
		Suffix("RETURNING " + strings.Join(callColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("CallRepository - MarkEnded - r.Builder.ToSql: %w", err)
	}

	c, err := scanCall(r.GetExecutor(ctx).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("CallRepository - MarkEnded - scanCall: %w", err)
	}
	return c, nil
}

func (r *CallRepository) CountActive(ctx context.Context, tenantID string) (int, error) {
	query, args, err := r.Builder.
		Select("COUNT(*)").
		From("calls").
		Where(squirrel.Eq{"tenant_id": tenantID, "status": model.CallStarted, "ended_at": nil}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("CallRepository - CountActive - r.Builder.ToSql: %w", err)
	}

	var n int
	if err := r.GetExecutor(ctx).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("CallRepository - CountActive - Scan: %w", err)
	}
	return n, nil
}

func (r *CallRepository) AddTurn(ctx context.Context, turn *model.CallTurn) error {
	query, args, err := r.Builder.
		Insert("call_turns").
		Columns("id", "call_id", "role", "text", "created_at").
		Values(turn.ID, turn.CallID, turn.Role, turn.Text, turn.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("CallRepository - AddTurn - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("CallRepository - AddTurn - ExecContext: %w", err)
	}
	return nil
}
