// internal/service/idempotency_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/unclebandit/revive-backend/internal/model"
	"github.com/unclebandit/revive-backend/internal/repository"
)

// Ledger admits each (kind, identity) pair exactly once.
type Ledger struct {
	Events repository.ProcessedEventRepositoryInterface
	Now    func() time.Time
}

// Admit returns false for a replay; the caller must skip all side effects.
func (l *Ledger) Admit(ctx context.Context, kind model.EventKind, identity string) (bool, error) {
	if identity == "" {
		return false, fmt.Errorf("Ledger - Admit: empty identity for kind %s", kind)
	}

	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}

	inserted, err := l.Events.Insert(ctx, &model.ProcessedEvent{ID: identity, Kind: kind, CreatedAt: now})
	if err != nil {
		return false, fmt.Errorf("Ledger - Admit - l.Events.Insert: %w", err)
	}
	return inserted, nil
}

// Release forgets an admitted identity whose effects did not complete.
func (l *Ledger) Release(ctx context.Context, kind model.EventKind, identity string) error {
	if err := l.Events.Release(ctx, kind, identity); err != nil {
		return fmt.Errorf("Ledger - Release - l.Events.Release: %w", err)
	}
	return nil
}

// VoiceEventKey prefers the provider event id, else callId:event:(turnId|timestamp|digest).
// digest is derived from the payload bytes, so a redelivered event keeps its key.
func VoiceEventKey(eventID, callID, eventType, turnID, timestamp, digest string) string {
	if eventID != "" {
		return eventID
	}
	discriminator := turnID
	if discriminator == "" {
		discriminator = timestamp
	}
	if discriminator == "" {
		discriminator = digest
	}
	return fmt.Sprintf("%s:%s:%s", callID, eventType, discriminator)
}

// SMSEventKey prefers the message sid, else from:to:body.
func SMSEventKey(messageSID, from, to, body string) string {
	if messageSID != "" {
		return messageSID
	}
	return fmt.Sprintf("%s:%s:%s", from, to, body)
}
