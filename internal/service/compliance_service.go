// internal/service/compliance_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	// quiet hours must not depend on the host's zoneinfo
	_ "time/tzdata"

	"github.com/unclebandit/revive-backend/internal/repository"
)

type BlockReason string

const (
	ReasonPaused     BlockReason = "OUTREACH_PAUSED"
	ReasonQuietHours BlockReason = "QUIET_HOURS"
	ReasonSuppressed BlockReason = "SUPPRESSED"
)

// Allowed local hours are [QuietHoursEnd, QuietHoursStart).
const (
	QuietHoursEnd   = 9
	QuietHoursStart = 20
)

type ComplianceDecision struct {
	Allowed bool        `json:"allowed"`
	Reason  BlockReason `json:"reason,omitempty"`
}

// EvaluateCompliance applies the pause flag, then quiet hours in the lead's
// timezone (falling back to the tenant's, then UTC when unresolvable).
// Suppression lists are not consulted here.
func EvaluateCompliance(paused bool, tenantTimezone, leadTimezone string, now time.Time) ComplianceDecision {
	if paused {
		return ComplianceDecision{Allowed: false, Reason: ReasonPaused}
	}

	tz := leadTimezone
	if tz == "" {
		tz = tenantTimezone
	}

	hour := LocalHour(now, tz)
	if hour < QuietHoursEnd || hour >= QuietHoursStart {
		return ComplianceDecision{Allowed: false, Reason: ReasonQuietHours}
	}
	return ComplianceDecision{Allowed: true}
}

// LocalHour returns the hour of now in tz, or the UTC hour when tz cannot be loaded.
// "Local" names the host's zone rather than the lead's, so it is unresolvable here.
func LocalHour(now time.Time, tz string) int {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.EqualFold(tz, "Local") {
		return now.UTC().Hour()
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return now.UTC().Hour()
	}
	return now.In(loc).Hour()
}

type ComplianceService struct {
	Settings repository.SettingsRepositoryInterface
}

func (s *ComplianceService) Check(ctx context.Context, tenantID, tenantTimezone, leadTimezone string, now time.Time) (ComplianceDecision, error) {
	paused, err := s.Settings.IsPaused(ctx, tenantID)
	if err != nil {
		return ComplianceDecision{}, fmt.Errorf("ComplianceService - Check - s.Settings.IsPaused: %w", err)
	}
	return EvaluateCompliance(paused, tenantTimezone, leadTimezone, now), nil
}

// SetPaused toggles the flag for one tenant, or globally when tenantID is empty.
func (s *ComplianceService) SetPaused(ctx context.Context, tenantID string, paused bool) error {
	scope := tenantID
	if scope == "" {
		scope = repository.GlobalScope
	}
	if err := s.Settings.SetPaused(ctx, scope, paused); err != nil {
		return fmt.Errorf("ComplianceService - SetPaused - s.Settings.SetPaused: %w", err)
	}
	return nil
}

func (s *ComplianceService) IsPaused(ctx context.Context, tenantID string) (bool, error) {
	paused, err := s.Settings.IsPaused(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("ComplianceService - IsPaused - s.Settings.IsPaused: %w", err)
	}
	return paused, nil
}
