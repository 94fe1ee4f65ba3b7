// internal/model/call.go
package model

import (
	"encoding/json"
	"time"
)

type CallStatus string

const (
	CallQueued  CallStatus = "queued"
	CallStarted CallStatus = "started"
	CallEnded   CallStatus = "ended"
	CallMissed  CallStatus = "missed"
)

type Call struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	JobID     *string         `json:"job_id,omitempty"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Status    CallStatus      `json:"status"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Summary   json.RawMessage `json:"summary,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type CallTurn struct {
	ID        string    `json:"id"`
	CallID    string    `json:"call_id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
