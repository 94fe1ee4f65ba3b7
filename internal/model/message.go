// internal/model/message.go
package model

import "time"

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

type Message struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	ProviderID string    `json:"provider_id,omitempty"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Body       string    `json:"body"`
	Direction  string    `json:"direction"`
	CreatedAt  time.Time `json:"created_at"`
}

type Invoice struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Status      string    `json:"status"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
