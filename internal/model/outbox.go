// internal/model/outbox.go
package model

import (
	"encoding/json"
	"time"
)

const (
	OutboxKindCRMNote = "fub.note"
	OutboxKindCRMTask = "fub.task"
)

type WebhookOutbox struct {
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
	TryCount      int             `json:"try_count"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	DeliveredAt   *time.Time      `json:"delivered_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type CRMNotePayload struct {
	PersonID int64  `json:"person_id"`
	Text     string `json:"text"`
}

type CRMTaskPayload struct {
	PersonID int64  `json:"person_id"`
	Subject  string `json:"subject"`
}
