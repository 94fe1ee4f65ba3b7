// internal/model/compliance.go
package model

import "time"

// Suppression is an opt-out recorded from an inbound reply.
type Suppression struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Phone     string    `json:"phone"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

type DncEntry struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}
