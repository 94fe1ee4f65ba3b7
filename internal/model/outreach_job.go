// internal/model/outreach_job.go
package model

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobClaimed   JobStatus = "claimed"
	JobRunning   JobStatus = "running"
	JobSkipped   JobStatus = "skipped"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

type OutreachJob struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	ReviveLeadID string     `json:"revive_lead_id"`
	Status       JobStatus  `json:"status"`
	RunAt        time.Time  `json:"run_at"`
	Attempts     int        `json:"attempts"`
	LastError    string     `json:"last_error,omitempty"`
	// ClaimedAt is set each time a scheduler claims the job.
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type AttemptOutcome string

const (
	OutcomeDialed  AttemptOutcome = "dialed"
	OutcomeSkipped AttemptOutcome = "skipped"
)

// OutreachAttempt is written once per evaluated tick.
type OutreachAttempt struct {
	ID        string          `json:"id"`
	JobID     string          `json:"job_id"`
	Outcome   AttemptOutcome  `json:"outcome"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
