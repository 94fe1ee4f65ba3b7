// internal/model/revive_lead.go
package model

import "time"

const (
	LeadStageQueued    = "queued"
	LeadStageContacted = "contacted"
)

type ReviveLead struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	Name          string     `json:"name"`
	Phone         string     `json:"phone"`
	Email         string     `json:"email,omitempty"`
	Stage         string     `json:"stage"`
	Timezone      *string    `json:"timezone,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
