package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/revive-backend/internal/errors"
	"github.com/unclebandit/revive-backend/internal/model"
	"github.com/unclebandit/revive-backend/internal/service"
)

var usageNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func starterTenant() *fakeTenants {
	return newFakeTenants(&model.Tenant{ID: "t1", Plan: "starter"})
}

func TestOverageEstimate(t *testing.T) {
	assert.Equal(t, int64(120), service.OverageEstimate(10, 0))
	assert.Equal(t, int64(2), service.OverageEstimate(0, 1))
	assert.Equal(t, int64(124), service.OverageEstimate(10, 2))
	assert.Equal(t, int64(0), service.OverageEstimate(0, 0))
}

func TestEnforceCaps_Disabled(t *testing.T) {
	usage, audit := &fakeUsage{}, &fakeAudit{}
	seedUsage(usage, "t1", model.UsageVoiceMinutes, 5000, usageNow)
	svc := newUsageService(usage, audit, starterTenant(), service.UsageSettings{Enforce: false}, usageNow)

	res, err := svc.EnforceCaps(context.Background(), "t1", service.UsageDelta{Minutes: 100})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Nil(t, res.OverageEstimate)
	assert.Empty(t, audit.logs)
}

func TestEnforceCaps_HardModeBlocksOverage(t *testing.T) {
	usage, audit := &fakeUsage{}, &fakeAudit{}
	seedUsage(usage, "t1", model.UsageVoiceMinutes, 490, usageNow)
	svc := newUsageService(usage, audit, starterTenant(), service.UsageSettings{Enforce: true, Mode: service.OverageHard}, usageNow)

	res, err := svc.EnforceCaps(context.Background(), "t1", service.UsageDelta{Minutes: 20})
	require.Error(t, err)
	assert.Nil(t, res)

	var limitErr *appErrors.ErrUsageLimitExceeded
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, "t1", limitErr.TenantID)
	assert.Equal(t, int64(120), limitErr.OverageEstimate)
	assert.Equal(t, 510, limitErr.Details.VoiceMinutes)
	assert.Equal(t, 500, limitErr.Details.VoiceCap)
	assert.Equal(t, appErrors.CodeUsageLimitExceeded, limitErr.Code())

	assert.Contains(t, audit.types(), model.AuditUsageBlocked)
}

func TestEnforceCaps_SoftModeAllowsAndAudits(t *testing.T) {
	usage, audit := &fakeUsage{}, &fakeAudit{}
	seedUsage(usage, "t1", model.UsageVoiceMinutes, 490, usageNow)
	svc := newUsageService(usage, audit, starterTenant(), service.UsageSettings{Enforce: true, Mode: service.OverageSoft}, usageNow)

	res, err := svc.EnforceCaps(context.Background(), "t1", service.UsageDelta{Minutes: 20})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	require.NotNil(t, res.OverageEstimate)
	assert.Equal(t, int64(120), *res.OverageEstimate)
	assert.Equal(t, 0, *res.RemainingMinutes)
	assert.Equal(t, 1000, *res.RemainingSMS)
	assert.Equal(t, []string{model.AuditUsageWarning, model.AuditUsageOverage}, audit.types())
}

func TestEnforceCaps_WarningAtThreshold(t *testing.T) {
	usage, audit := &fakeUsage{}, &fakeAudit{}
	seedUsage(usage, "t1", model.UsageVoiceMinutes, 440, usageNow)
	svc := newUsageService(usage, audit, starterTenant(), service.UsageSettings{Enforce: true, Mode: service.OverageHard}, usageNow)

	res, err := svc.EnforceCaps(context.Background(), "t1", service.UsageDelta{Minutes: 10})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, "Usage approaching limits: Voice 90%, SMS 0%", res.Warning)
	assert.Equal(t, 50, *res.RemainingMinutes)
	assert.Equal(t, []string{model.AuditUsageWarning}, audit.types())
}

func TestEnforceCaps_BelowThresholdIsQuiet(t *testing.T) {
	usage, audit := &fakeUsage{}, &fakeAudit{}
	svc := newUsageService(usage, audit, starterTenant(), service.UsageSettings{Enforce: true, Mode: service.OverageHard}, usageNow)

	res, err := svc.EnforceCaps(context.Background(), "t1", service.UsageDelta{SMS: 1})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Empty(t, res.Warning)
	assert.Empty(t, audit.logs)
}

func TestIncrementVoiceMinutes_HardBlockAppendsNothing(t *testing.T) {
	ctx := context.Background()
	usage, audit := &fakeUsage{}, &fakeAudit{}
	seedUsage(usage, "t1", model.UsageVoiceMinutes, 490, usageNow)
	svc := newUsageService(usage, audit, starterTenant(), service.UsageSettings{Enforce: true, Mode: service.OverageHard}, usageNow)

	for i := 0; i < 2; i++ {
		_, err := svc.IncrementVoiceMinutes(ctx, "t1", 20)
		var limitErr *appErrors.ErrUsageLimitExceeded
		require.True(t, errors.As(err, &limitErr))
		assert.Equal(t, int64(120), limitErr.OverageEstimate)
	}

	assert.Len(t, usage.records, 1)
	assert.Equal(t, 2, usage.locks)

	totals, err := svc.MonthlyUsage(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 490, totals.VoiceMinutes)
}

func TestIncrementSMS_AppendsRecord(t *testing.T) {
	ctx := context.Background()
	usage, audit := &fakeUsage{}, &fakeAudit{}
	svc := newUsageService(usage, audit, starterTenant(), service.UsageSettings{Enforce: true, Mode: service.OverageSoft}, usageNow)

	_, err := svc.IncrementSMS(ctx, "t1", 1)
	require.NoError(t, err)
	_, err = svc.IncrementSMS(ctx, "t1", 2)
	require.NoError(t, err)

	totals, err := svc.MonthlyUsage(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, totals.SMS)
	assert.Equal(t, 0, totals.VoiceMinutes)
}

func TestIncrement_RejectsNegativeAmount(t *testing.T) {
	svc := newUsageService(&fakeUsage{}, &fakeAudit{}, starterTenant(), service.UsageSettings{}, usageNow)

	_, err := svc.IncrementVoiceMinutes(context.Background(), "t1", -1)
	require.Error(t, err)
}

func TestMonthlyUsage_IgnoresPreviousMonth(t *testing.T) {
	usage := &fakeUsage{}
	seedUsage(usage, "t1", model.UsageVoiceMinutes, 300, usageNow.AddDate(0, -1, 0))
	seedUsage(usage, "t1", model.UsageVoiceMinutes, 12, usageNow)
	seedUsage(usage, "t2", model.UsageVoiceMinutes, 99, usageNow)
	svc := newUsageService(usage, &fakeAudit{}, starterTenant(), service.UsageSettings{}, usageNow)

	totals, err := svc.MonthlyUsage(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 12, totals.VoiceMinutes)
}

func TestUsageSummary(t *testing.T) {
	usage := &fakeUsage{}
	seedUsage(usage, "t1", model.UsageVoiceMinutes, 510, usageNow)
	seedUsage(usage, "t1", model.UsageSMS, 10, usageNow)
	svc := newUsageService(usage, &fakeAudit{}, starterTenant(), service.UsageSettings{}, usageNow)

	sum, err := svc.Summary(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "starter", sum.Plan.Key)
	assert.Equal(t, 0, sum.Remaining.VoiceMinutes)
	assert.Equal(t, 990, sum.Remaining.SMS)
	assert.Equal(t, 10, sum.Overage.Minutes)
	assert.Equal(t, int64(120), sum.Overage.Estimate)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), sum.PeriodStart)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), sum.PeriodEnd)
}
