package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/revive-backend/internal/logging"
	"github.com/unclebandit/revive-backend/internal/model"
	"github.com/unclebandit/revive-backend/internal/service"
)

func newSettingsService(s *fakeSuppressions, a *fakeAudit, tenants *fakeTenants, inv *fakeInvoices) *service.SettingsService {
	return &service.SettingsService{
		SuppressionRepo: s,
		AuditRepo:       a,
		TenantRepo:      tenants,
		InvoiceRepo:     inv,
		Log:             logging.Discard(),
		Now:             fixedClock(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)),
	}
}

func TestUploadDnc(t *testing.T) {
	ctx := context.Background()
	supp := newFakeSuppressions()
	svc := newSettingsService(supp, &fakeAudit{}, newFakeTenants(), newFakeInvoices())

	n, err := svc.UploadDnc(ctx, "t1", "5551234567,555-123-4567\n+15559876543 bogus,,")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	blocked, err := supp.IsSuppressed(ctx, "t1", "+15551234567")
	require.NoError(t, err)
	assert.True(t, blocked)

	blocked, err = supp.IsSuppressed(ctx, "t2", "+15551234567")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestAuditLogs_DefaultLimitNewestFirst(t *testing.T) {
	audit := &fakeAudit{}
	for i := 0; i < 60; i++ {
		audit.logs = append(audit.logs, &model.AuditLog{ID: string(rune('a' + i%26)), Type: model.AuditUsageWarning})
	}
	audit.logs = append(audit.logs, &model.AuditLog{ID: "latest", Type: model.AuditUsageBlocked})
	svc := newSettingsService(newFakeSuppressions(), audit, newFakeTenants(), newFakeInvoices())

	logs, err := svc.AuditLogs(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, logs, service.DefaultAuditLimit)
	assert.Equal(t, "latest", logs[0].ID)
}

func TestBillingSummary(t *testing.T) {
	ctx := context.Background()
	tenants := newFakeTenants(&model.Tenant{ID: "t1", StripeCustomerID: strPtr("cus_9")})
	invoices := newFakeInvoices()
	require.NoError(t, invoices.Upsert(ctx, &model.Invoice{ID: "in_1", TenantID: "t1", AmountCents: 4900}))
	require.NoError(t, invoices.Upsert(ctx, &model.Invoice{ID: "in_2", TenantID: "t2", AmountCents: 100}))
	svc := newSettingsService(newFakeSuppressions(), &fakeAudit{}, tenants, invoices)

	sum, err := svc.BillingSummary(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "cus_9", *sum.CustomerID)
	assert.Nil(t, sum.SubscriptionID)
	require.Len(t, sum.Invoices, 1)
	assert.Equal(t, "in_1", sum.Invoices[0].ID)

	sum, err = svc.BillingSummary(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, sum.CustomerID)
	assert.Empty(t, sum.Invoices)
}
