// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

const CodeUsageLimitExceeded = "USAGE_LIMIT_EXCEEDED"

// ErrInvalidSignature is returned when a webhook signature does not verify.
var ErrInvalidSignature = errors.New("invalid webhook signature")

type ErrNotFound struct {
	Entity string
	ID     string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

func NewNotFound(entity, id string) error {
	return &ErrNotFound{Entity: entity, ID: id}
}

// ErrNotConfigured means a provider credential is missing. Not retryable.
type ErrNotConfigured struct {
	Provider string
}

func (e *ErrNotConfigured) Error() string {
	return fmt.Sprintf("%s provider not configured", e.Provider)
}

func NewNotConfigured(provider string) error {
	return &ErrNotConfigured{Provider: provider}
}

type UsageDetails struct {
	VoiceMinutes int `json:"voice_minutes"`
	SMS          int `json:"sms"`
	VoiceCap     int `json:"voice_cap"`
	SMSCap       int `json:"sms_cap"`
}

// ErrUsageLimitExceeded is the payment-required failure raised in hard mode.
type ErrUsageLimitExceeded struct {
	TenantID        string
	OverageEstimate int64
	Details         UsageDetails
}

func (e *ErrUsageLimitExceeded) Error() string {
	return fmt.Sprintf("usage limit exceeded for tenant %s (overage estimate %d)", e.TenantID, e.OverageEstimate)
}

func (e *ErrUsageLimitExceeded) Code() string {
	return CodeUsageLimitExceeded
}

func NewUsageLimitExceeded(tenantID string, estimate int64, details UsageDetails) error {
	return &ErrUsageLimitExceeded{TenantID: tenantID, OverageEstimate: estimate, Details: details}
}

// ErrProviderFailure carries a non-success response from a downstream provider.
type ErrProviderFailure struct {
	Provider string
	Status   int
	Body     string
}

func (e *ErrProviderFailure) Error() string {
	return fmt.Sprintf("%s request failed: %d %s", e.Provider, e.Status, e.Body)
}

func NewProviderFailure(provider string, status int, body string) error {
	return &ErrProviderFailure{Provider: provider, Status: status, Body: body}
}

func IsNotConfigured(err error) bool {
	var target *ErrNotConfigured
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *ErrNotFound
	return errors.As(err, &target)
}
