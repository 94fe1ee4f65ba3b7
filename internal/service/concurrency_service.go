// internal/service/concurrency_service.go
package service

import (
	"context"
	"fmt"

	"github.com/unclebandit/revive-backend/internal/repository"
)

// ConcurrencyService is a point-in-time admission check, not a reservation.
type ConcurrencyService struct {
	TenantRepo repository.TenantRepositoryInterface
	CallRepo   repository.CallRepositoryInterface
}

func (s *ConcurrencyService) ConcurrencyAllowed(ctx context.Context, tenantID string) (bool, error) {
	tenant, err := s.TenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("ConcurrencyService - ConcurrencyAllowed - s.TenantRepo.GetByID: %w", err)
	}

	running, err := s.CallRepo.CountActive(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("ConcurrencyService - ConcurrencyAllowed - s.CallRepo.CountActive: %w", err)
	}

	// a missing tenant gets the default cap
	return running < tenant.Cap(), nil
}
