package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/revive-backend/internal/service"
)

func TestEvaluateCompliance_QuietHoursInLeadTimezone(t *testing.T) {
	night := time.Date(2020, 1, 1, 3, 0, 0, 0, time.UTC)
	day := time.Date(2020, 1, 1, 16, 0, 0, 0, time.UTC)

	d := service.EvaluateCompliance(false, "", "America/Toronto", night)
	assert.False(t, d.Allowed)
	assert.Equal(t, service.ReasonQuietHours, d.Reason)

	d = service.EvaluateCompliance(false, "", "America/Toronto", day)
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Reason)
}

func TestEvaluateCompliance_WindowBoundaries(t *testing.T) {
	tests := []struct {
		hour    int
		allowed bool
	}{
		{8, false},
		{9, true},
		{19, true},
		{20, false},
		{0, false},
		{23, false},
	}

	for _, tt := range tests {
		now := time.Date(2024, 6, 3, tt.hour, 59, 0, 0, time.UTC)
		d := service.EvaluateCompliance(false, "UTC", "", now)
		assert.Equal(t, tt.allowed, d.Allowed, "hour %d", tt.hour)
	}
}

func TestEvaluateCompliance_PauseWinsOverWindow(t *testing.T) {
	now := time.Date(2020, 1, 1, 16, 0, 0, 0, time.UTC)
	d := service.EvaluateCompliance(true, "", "America/Toronto", now)
	assert.False(t, d.Allowed)
	assert.Equal(t, service.ReasonPaused, d.Reason)
}

func TestEvaluateCompliance_TimezoneFallbacks(t *testing.T) {
	// 14:00 UTC is 09:00 in Toronto and 06:00 in Los Angeles (winter)
	now := time.Date(2020, 1, 1, 14, 0, 0, 0, time.UTC)

	assert.True(t, service.EvaluateCompliance(false, "America/Los_Angeles", "America/Toronto", now).Allowed)
	assert.False(t, service.EvaluateCompliance(false, "America/Los_Angeles", "", now).Allowed)
	assert.True(t, service.EvaluateCompliance(false, "", "", now).Allowed)
	assert.True(t, service.EvaluateCompliance(false, "", "Not/AZone", now).Allowed)
}

func TestLocalHour_IgnoresHostZone(t *testing.T) {
	host := time.Local
	time.Local = time.FixedZone("HOST", 10*60*60)
	t.Cleanup(func() { time.Local = host })

	night := time.Date(2020, 1, 1, 3, 0, 0, 0, time.UTC)
	day := time.Date(2020, 1, 1, 16, 0, 0, 0, time.UTC)

	for _, tz := range []string{"Local", "local", " Local "} {
		assert.Equal(t, 3, service.LocalHour(night, tz), tz)
		assert.Equal(t, 16, service.LocalHour(day, tz), tz)
	}

	// 03:00 UTC would be 13:00 on the host
	d := service.EvaluateCompliance(false, "", "Local", night)
	assert.False(t, d.Allowed)
	assert.Equal(t, service.ReasonQuietHours, d.Reason)
	assert.True(t, service.EvaluateCompliance(false, "Local", "", day).Allowed)
}

func TestComplianceService_PauseScopes(t *testing.T) {
	ctx := context.Background()
	settings := newFakeSettings()
	svc := &service.ComplianceService{Settings: settings}
	now := time.Date(2020, 1, 1, 16, 0, 0, 0, time.UTC)

	require.NoError(t, svc.SetPaused(ctx, "t1", true))

	d, err := svc.Check(ctx, "t1", "UTC", "", now)
	require.NoError(t, err)
	assert.Equal(t, service.ReasonPaused, d.Reason)

	d, err = svc.Check(ctx, "t2", "UTC", "", now)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	require.NoError(t, svc.SetPaused(ctx, "", true))
	paused, err := svc.IsPaused(ctx, "t2")
	require.NoError(t, err)
	assert.True(t, paused)

	require.NoError(t, svc.SetPaused(ctx, "", false))
	require.NoError(t, svc.SetPaused(ctx, "t1", false))
	paused, err = svc.IsPaused(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, paused)
}
