// internal/model/processed_event.go
package model

import "time"

// EventKind partitions event identities by provider.
type EventKind string

const (
	EventKindVoice   EventKind = "retell"
	EventKindSMS     EventKind = "twilio"
	EventKindBilling EventKind = "stripe"
)

type ProcessedEvent struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}
