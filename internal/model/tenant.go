// internal/model/tenant.go
package model

import "time"

const DefaultConcurrencyCap = 3

type Tenant struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Timezone             string    `json:"timezone"`
	ConcurrencyCap       *int      `json:"concurrency_cap,omitempty"`
	Plan                 string    `json:"plan"`
	StripeCustomerID     *string   `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string   `json:"stripe_subscription_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// Cap returns the configured concurrency cap, or the default when unset.
func (t *Tenant) Cap() int {
	if t == nil || t.ConcurrencyCap == nil {
		return DefaultConcurrencyCap
	}
	return *t.ConcurrencyCap
}
