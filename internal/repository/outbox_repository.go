// internal/repository/outbox_repository.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/unclebandit/revive-backend/internal/model"
)

type OutboxRepositoryInterface interface {
	Create(ctx context.Context, item *model.WebhookOutbox) error
	// ListDue returns undelivered items whose next attempt is due, earliest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.WebhookOutbox, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	// MarkFailed increments try_count and pushes next_attempt_at forward.
	MarkFailed(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error
}

type OutboxRepository struct {
	*Postgres
}

var _ OutboxRepositoryInterface = (*OutboxRepository)(nil)

func NewOutboxRepository(pg *Postgres) *OutboxRepository {
	return &OutboxRepository{pg}
}

func (r *OutboxRepository) Create(ctx context.Context, item *model.WebhookOutbox) error {
	query, args, err := r.Builder.
		Insert("webhook_outbox").
		Columns("id", "kind", "payload", "try_count", "next_attempt_at", "created_at").
		Values(item.ID, item.Kind, jsonArg(item.Payload), item.TryCount, item.NextAttemptAt, item.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("OutboxRepository - Create - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("OutboxRepository - Create - ExecContext: %w", err)
	}
	return nil
}

func (r *OutboxRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.WebhookOutbox, error) {
	query, args, err := r.Builder.
		Select("id", "kind", "payload", "try_count", "next_attempt_at", "delivered_at", "last_error", "created_at").
		From("webhook_outbox").
		Where(squirrel.Eq{"delivered_at": nil}).
		Where(squirrel.LtOrEq{"next_attempt_at": now}).
		OrderBy("next_attempt_at", "created_at").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("OutboxRepository - ListDue - r.Builder.ToSql: %w", err)
	}

	rows, err := r.GetExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("OutboxRepository - ListDue - QueryContext: %w", err)
	}
	defer rows.Close()

	items := []*model.WebhookOutbox{}
	for rows.Next() {
		var (
			it          model.WebhookOutbox
			payload     []byte
			deliveredAt sql.NullTime
		)
		if err := rows.Scan(&it.ID, &it.Kind, &payload, &it.TryCount, &it.NextAttemptAt, &deliveredAt, &it.LastError, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("OutboxRepository - ListDue - Scan: %w", err)
		}
		it.Payload = payload
		it.DeliveredAt = timePtr(deliveredAt)
		items = append(items, &it)
	}
	return items, rows.Err()
}

func (r *OutboxRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	query, args, err := r.Builder.
		Update("webhook_outbox").
		Set("delivered_at", at).
		Set("last_error", "").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("OutboxRepository - MarkDelivered - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("OutboxRepository - MarkDelivered - ExecContext: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error {
	query, args, err := r.Builder.
		Update("webhook_outbox").
		Set("try_count", squirrel.Expr("try_count + 1")).
		Set("next_attempt_at", squirrel.Expr("GREATEST(next_attempt_at, ?)", nextAttemptAt)).
		Set("last_error", lastError).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("OutboxRepository - MarkFailed - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("OutboxRepository - MarkFailed - ExecContext: %w", err)
	}
	return nil
}
