// internal/service/outbox_service.go
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/revive-backend/internal/model"
	"github.com/unclebandit/revive-backend/internal/provider"
	"github.com/unclebandit/revive-backend/internal/repository"
)

const (
	DefaultFlushLimit = 20
	DefaultBaseDelay  = 5 * time.Second
	DefaultMaxDelay   = 600 * time.Second
)

// ErrCRMGated is returned by CRM handlers when credentials are absent so the item stays queued.
var ErrCRMGated = errors.New("crm not configured")

type OutboxHandler func(ctx context.Context, payload json.RawMessage) error

type OutboxService struct {
	Repo      repository.OutboxRepositoryInterface
	Handlers  map[string]OutboxHandler
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Log       *slog.Logger
	Now       func() time.Time
}

type FlushResult struct {
	Processed int `json:"processed"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Backoff returns min(maxDelay, base * 2^tryCount).
func Backoff(tryCount int, base, maxDelay time.Duration) time.Duration {
	d := base
	for i := 0; i < tryCount; i++ {
		d *= 2
		if d >= maxDelay || d <= 0 {
			return maxDelay
		}
	}
	return min(d, maxDelay)
}

func (s *OutboxService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *OutboxService) delays() (time.Duration, time.Duration) {
	base, maxDelay := s.BaseDelay, s.MaxDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	return base, maxDelay
}

// Enqueue stores an undelivered item due immediately. It joins any transaction on ctx.
func (s *OutboxService) Enqueue(ctx context.Context, kind string, payload any) (*model.WebhookOutbox, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("OutboxService - Enqueue - json.Marshal: %w", err)
	}

	now := s.now()
	item := &model.WebhookOutbox{
		ID:            uuid.NewString(),
		Kind:          kind,
		Payload:       raw,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	if err := s.Repo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("OutboxService - Enqueue - s.Repo.Create: %w", err)
	}
	return item, nil
}

// Flush delivers up to limit due items. One item failing never stops the batch.
func (s *OutboxService) Flush(ctx context.Context, limit int) (*FlushResult, error) {
	if limit <= 0 {
		limit = DefaultFlushLimit
	}

	items, err := s.Repo.ListDue(ctx, s.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("OutboxService - Flush - s.Repo.ListDue: %w", err)
	}

	res := &FlushResult{}
	for _, item := range items {
		res.Processed++
		if err := s.deliver(ctx, item); err != nil {
			res.Failed++
			s.fail(ctx, item, err)
			continue
		}

		if err := s.Repo.MarkDelivered(ctx, item.ID, s.now()); err != nil {
			s.Log.Error("outbox mark delivered failed", "outbox_id", item.ID, "err", err)
			res.Failed++
			continue
		}
		res.Delivered++
	}
	return res, nil
}

func (s *OutboxService) deliver(ctx context.Context, item *model.WebhookOutbox) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("outbox handler panic: %v", r)
		}
	}()

	handler, ok := s.Handlers[item.Kind]
	if !ok {
		return fmt.Errorf("no outbox handler for kind %q", item.Kind)
	}
	return handler(ctx, item.Payload)
}

func (s *OutboxService) fail(ctx context.Context, item *model.WebhookOutbox, cause error) {
	base, maxDelay := s.delays()
	next := s.now().Add(Backoff(item.TryCount, base, maxDelay))

	s.Log.Warn("outbox delivery failed",
		"outbox_id", item.ID, "kind", item.Kind, "try_count", item.TryCount+1, "next_attempt_at", next, "err", cause)

	if err := s.Repo.MarkFailed(ctx, item.ID, next, cause.Error()); err != nil {
		s.Log.Error("outbox mark failed failed", "outbox_id", item.ID, "err", err)
	}
}

// CRMHandlers wires the CRM write-back kinds to a CRM client.
func CRMHandlers(crm provider.CRMClient) map[string]OutboxHandler {
	return map[string]OutboxHandler{
		model.OutboxKindCRMNote: func(ctx context.Context, payload json.RawMessage) error {
			var p model.CRMNotePayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return fmt.Errorf("decode %s payload: %w", model.OutboxKindCRMNote, err)
			}
			res, err := crm.AddNote(ctx, p.PersonID, p.Text)
			return crmOutcome(res, err)
		},
		model.OutboxKindCRMTask: func(ctx context.Context, payload json.RawMessage) error {
			var p model.CRMTaskPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return fmt.Errorf("decode %s payload: %w", model.OutboxKindCRMTask, err)
			}
			res, err := crm.CreateTask(ctx, p.PersonID, p.Subject)
			return crmOutcome(res, err)
		},
	}
}

func crmOutcome(res provider.CRMResult, err error) error {
	if err != nil {
		return err
	}
	if res.Gated {
		return ErrCRMGated
	}
	if !res.OK {
		return errors.New("crm request not accepted")
	}
	return nil
}
