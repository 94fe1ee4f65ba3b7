// internal/service/settings_service.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/unclebandit/revive-backend/internal/model"
	"github.com/unclebandit/revive-backend/internal/repository"
)

const DefaultAuditLimit = 50

type BillingSummary struct {
	TenantID       string           `json:"tenant_id"`
	CustomerID     *string          `json:"customer_id"`
	SubscriptionID *string          `json:"subscription_id"`
	Invoices       []*model.Invoice `json:"invoices"`
}

type SettingsService struct {
	SuppressionRepo repository.SuppressionRepositoryInterface
	AuditRepo       repository.AuditRepositoryInterface
	TenantRepo      repository.TenantRepositoryInterface
	InvoiceRepo     repository.InvoiceRepositoryInterface
	Log             *slog.Logger
	Now             func() time.Time
}

// UploadDnc adds every normalizable phone in csv to the tenant's DNC list
// and returns how many distinct numbers were accepted.
func (s *SettingsService) UploadDnc(ctx context.Context, tenantID, csv string) (int, error) {
	fields := splitPhoneList(csv)

	seen := map[string]bool{}
	phones := []string{}
	for _, f := range fields {
		phone := NormalizePhone(f)
		if phone == "" || seen[phone] {
			continue
		}
		seen[phone] = true
		phones = append(phones, phone)
	}

	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	for _, phone := range phones {
		if _, err := s.SuppressionRepo.AddDnc(ctx, &model.DncEntry{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Phone:     phone,
			CreatedAt: now,
		}); err != nil {
			return 0, fmt.Errorf("SettingsService - UploadDnc - s.SuppressionRepo.AddDnc: %w", err)
		}
	}

	s.Log.Info("dnc list uploaded", "tenant_id", tenantID, "inserted", len(phones), "rejected", len(fields)-len(phones))
	return len(phones), nil
}

func (s *SettingsService) AuditLogs(ctx context.Context, limit int) ([]*model.AuditLog, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	logs, err := s.AuditRepo.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("SettingsService - AuditLogs - s.AuditRepo.ListRecent: %w", err)
	}
	return logs, nil
}

func (s *SettingsService) BillingSummary(ctx context.Context, tenantID string) (*BillingSummary, error) {
	tenant, err := s.TenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("SettingsService - BillingSummary - s.TenantRepo.GetByID: %w", err)
	}
	invoices, err := s.InvoiceRepo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("SettingsService - BillingSummary - s.InvoiceRepo.ListByTenant: %w", err)
	}

	summary := &BillingSummary{TenantID: tenantID, Invoices: invoices}
	if tenant != nil {
		summary.CustomerID = tenant.StripeCustomerID
		summary.SubscriptionID = tenant.StripeSubscriptionID
	}
	return summary, nil
}

func splitPhoneList(csv string) []string {
	return strings.FieldsFunc(csv, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}
