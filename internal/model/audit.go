// internal/model/audit.go
package model

import (
	"encoding/json"
	"time"
)

const (
	AuditUsageWarning     = "usage.warning"
	AuditUsageBlocked     = "usage.blocked"
	AuditUsageOverage     = "usage.overage"
	AuditCheckoutComplete = "stripe.checkout.completed"
	AuditInvoicePaid      = "stripe.invoice.paid"
	AuditInvoiceFailed    = "stripe.invoice.payment_failed"
)

type AuditLog struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}
