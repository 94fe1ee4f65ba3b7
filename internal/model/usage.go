// internal/model/usage.go
package model

import "time"

type UsageKind string

const (
	UsageVoiceMinutes UsageKind = "voice_minutes"
	UsageSMS          UsageKind = "sms"
)

type UsageRecord struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Kind        UsageKind `json:"kind"`
	Amount      int       `json:"amount"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	CreatedAt   time.Time `json:"created_at"`
}

// MonthWindow returns the calendar month containing t, in UTC.
func MonthWindow(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
