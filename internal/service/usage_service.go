// internal/service/usage_service.go
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/revive-backend/internal/errors"
	"github.com/unclebandit/revive-backend/internal/model"
	"github.com/unclebandit/revive-backend/internal/repository"
)

type OverageMode string

const (
	OverageSoft OverageMode = "soft"
	OverageHard OverageMode = "hard"
)

const DefaultWarnThreshold = 0.9

type UsageSettings struct {
	Enforce       bool
	Mode          OverageMode
	WarnThreshold float64
}

type UsageDelta struct {
	Minutes int
	SMS     int
}

type UsageTotals struct {
	VoiceMinutes int `json:"voice_minutes"`
	SMS          int `json:"sms"`
}

type CapResult struct {
	Allowed          bool   `json:"allowed"`
	Warning          string `json:"warning,omitempty"`
	OverageEstimate  *int64 `json:"overage_estimate,omitempty"`
	RemainingMinutes *int   `json:"remaining_minutes,omitempty"`
	RemainingSMS     *int   `json:"remaining_sms,omitempty"`
}

type OverageSummary struct {
	Minutes  int   `json:"minutes"`
	SMS      int   `json:"sms"`
	Estimate int64 `json:"estimate"`
}

type UsageSummary struct {
	TenantID    string         `json:"tenant_id"`
	Plan        model.Plan     `json:"plan"`
	Usage       UsageTotals    `json:"usage"`
	Caps        UsageTotals    `json:"caps"`
	Remaining   UsageTotals    `json:"remaining"`
	Overage     OverageSummary `json:"overage"`
	PeriodStart time.Time      `json:"period_start"`
	PeriodEnd   time.Time      `json:"period_end"`
}

type UsageService struct {
	UsageRepo  repository.UsageRepositoryInterface
	AuditRepo  repository.AuditRepositoryInterface
	TenantRepo repository.TenantRepositoryInterface
	Tx         repository.Transactor
	Settings   UsageSettings
	Log        *slog.Logger
	Now        func() time.Time
}

// OverageEstimate returns the overage charge in minor currency units.
func OverageEstimate(voiceOver, smsOver int) int64 {
	return int64(math.Round(float64(voiceOver)*model.OverageRatePerMinute*100 + float64(smsOver)*model.OverageRatePerSMS*100))
}

func (s *UsageService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *UsageService) threshold() float64 {
	if s.Settings.WarnThreshold <= 0 {
		return DefaultWarnThreshold
	}
	return s.Settings.WarnThreshold
}

func (s *UsageService) planFor(ctx context.Context, tenantID string) (model.Plan, error) {
	tenant, err := s.TenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return model.Plan{}, fmt.Errorf("UsageService - planFor - s.TenantRepo.GetByID: %w", err)
	}
	if tenant == nil {
		return model.PlanFor(model.DefaultPlan), nil
	}
	return model.PlanFor(tenant.Plan), nil
}

// MonthlyUsage sums usage records in the current calendar month.
func (s *UsageService) MonthlyUsage(ctx context.Context, tenantID string) (UsageTotals, error) {
	from, to := model.MonthWindow(s.now())
	totals, err := s.UsageRepo.SumByKind(ctx, tenantID, from, to)
	if err != nil {
		return UsageTotals{}, fmt.Errorf("UsageService - MonthlyUsage - s.UsageRepo.SumByKind: %w", err)
	}
	return UsageTotals{
		VoiceMinutes: totals[model.UsageVoiceMinutes],
		SMS:          totals[model.UsageSMS],
	}, nil
}

// EnforceCaps checks a proposed delta against the tenant's plan. In hard mode
// an overage returns *appErrors.ErrUsageLimitExceeded after the blocked audit is written.
func (s *UsageService) EnforceCaps(ctx context.Context, tenantID string, delta UsageDelta) (*CapResult, error) {
	if !s.Settings.Enforce {
		return &CapResult{Allowed: true}, nil
	}

	plan, err := s.planFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	usage, err := s.MonthlyUsage(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	projected := UsageTotals{
		VoiceMinutes: usage.VoiceMinutes + delta.Minutes,
		SMS:          usage.SMS + delta.SMS,
	}
	voiceRatio := utilization(projected.VoiceMinutes, plan.Minutes)
	smsRatio := utilization(projected.SMS, plan.SMS)

	res := &CapResult{Allowed: true}

	if voiceRatio >= s.threshold() || smsRatio >= s.threshold() {
		res.Warning = fmt.Sprintf("Usage approaching limits: Voice %d%%, SMS %d%%", percent(voiceRatio), percent(smsRatio))
		if err := s.audit(ctx, tenantID, model.AuditUsageWarning, map[string]any{
			"voice_pct": percent(voiceRatio),
			"sms_pct":   percent(smsRatio),
			"projected": projected,
		}); err != nil {
			return nil, err
		}
	}

	voiceOver := max(0, projected.VoiceMinutes-plan.Minutes)
	smsOver := max(0, projected.SMS-plan.SMS)

	if voiceOver > 0 || smsOver > 0 {
		estimate := OverageEstimate(voiceOver, smsOver)
		details := map[string]any{
			"voice_over":       voiceOver,
			"sms_over":         smsOver,
			"overage_estimate": estimate,
			"plan":             plan.Key,
		}

		if s.Settings.Mode == OverageHard {
			if err := s.audit(ctx, tenantID, model.AuditUsageBlocked, details); err != nil {
				return nil, err
			}
			s.Log.Warn("usage blocked", "tenant_id", tenantID, "overage_estimate", estimate)
			return nil, appErrors.NewUsageLimitExceeded(tenantID, estimate, appErrors.UsageDetails{
				VoiceMinutes: projected.VoiceMinutes,
				SMS:          projected.SMS,
				VoiceCap:     plan.Minutes,
				SMSCap:       plan.SMS,
			})
		}

		if err := s.audit(ctx, tenantID, model.AuditUsageOverage, details); err != nil {
			return nil, err
		}
		res.OverageEstimate = &estimate
	}

	remainingMinutes := max(0, plan.Minutes-projected.VoiceMinutes)
	remainingSMS := max(0, plan.SMS-projected.SMS)
	res.RemainingMinutes = &remainingMinutes
	res.RemainingSMS = &remainingSMS
	return res, nil
}

func (s *UsageService) IncrementVoiceMinutes(ctx context.Context, tenantID string, minutes int) (*CapResult, error) {
	return s.increment(ctx, tenantID, model.UsageVoiceMinutes, minutes, UsageDelta{Minutes: minutes})
}

func (s *UsageService) IncrementSMS(ctx context.Context, tenantID string, count int) (*CapResult, error) {
	return s.increment(ctx, tenantID, model.UsageSMS, count, UsageDelta{SMS: count})
}

// increment enforces caps and appends the usage record under a per-tenant lock.
// A hard block commits its audit record and appends nothing.
func (s *UsageService) increment(ctx context.Context, tenantID string, kind model.UsageKind, amount int, delta UsageDelta) (*CapResult, error) {
	if amount < 0 {
		return nil, fmt.Errorf("UsageService - increment: negative amount %d", amount)
	}

	var (
		res     *CapResult
		blocked error
	)
	err := s.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.UsageRepo.LockTenant(ctx, tenantID); err != nil {
			return err
		}

		r, err := s.EnforceCaps(ctx, tenantID, delta)
		if err != nil {
			var limitErr *appErrors.ErrUsageLimitExceeded
			if errors.As(err, &limitErr) {
				blocked = err
				return nil
			}
			return err
		}
		res = r

		now := s.now()
		from, to := model.MonthWindow(now)
		return s.UsageRepo.Append(ctx, &model.UsageRecord{
			ID:          uuid.NewString(),
			TenantID:    tenantID,
			Kind:        kind,
			Amount:      amount,
			PeriodStart: from,
			PeriodEnd:   to,
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("UsageService - increment - s.Tx.WithinTransaction: %w", err)
	}
	if blocked != nil {
		return nil, blocked
	}
	return res, nil
}

// Summary reports month-to-date usage against the tenant's plan.
func (s *UsageService) Summary(ctx context.Context, tenantID string) (*UsageSummary, error) {
	plan, err := s.planFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	usage, err := s.MonthlyUsage(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	voiceOver := max(0, usage.VoiceMinutes-plan.Minutes)
	smsOver := max(0, usage.SMS-plan.SMS)
	from, to := model.MonthWindow(s.now())

	return &UsageSummary{
		TenantID: tenantID,
		Plan:     plan,
		Usage:    usage,
		Caps:     UsageTotals{VoiceMinutes: plan.Minutes, SMS: plan.SMS},
		Remaining: UsageTotals{
			VoiceMinutes: max(0, plan.Minutes-usage.VoiceMinutes),
			SMS:          max(0, plan.SMS-usage.SMS),
		},
		Overage: OverageSummary{
			Minutes:  voiceOver,
			SMS:      smsOver,
			Estimate: OverageEstimate(voiceOver, smsOver),
		},
		PeriodStart: from,
		PeriodEnd:   to,
	}, nil
}

func (s *UsageService) audit(ctx context.Context, tenantID, typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("UsageService - audit - json.Marshal: %w", err)
	}
	if err := s.AuditRepo.Create(ctx, &model.AuditLog{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Type:      typ,
		Data:      raw,
		CreatedAt: s.now(),
	}); err != nil {
		return fmt.Errorf("UsageService - audit - s.AuditRepo.Create: %w", err)
	}
	return nil
}

func utilization(used, limit int) float64 {
	if limit <= 0 {
		if used > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return float64(used) / float64(limit)
}

func percent(ratio float64) int {
	if math.IsInf(ratio, 1) {
		return 100
	}
	return int(math.Round(ratio * 100))
}
