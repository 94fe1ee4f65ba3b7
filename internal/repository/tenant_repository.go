// internal/repository/tenant_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	appErrors "github.com/unclebandit/revive-backend/internal/errors"
	"github.com/unclebandit/revive-backend/internal/model"
)

type TenantRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.Tenant, error)
	Create(ctx context.Context, t *model.Tenant) error
	UpdateBilling(ctx context.Context, id, customerID, subscriptionID string) error
}

type TenantRepository struct {
	*Postgres
}

var _ TenantRepositoryInterface = (*TenantRepository)(nil)

func NewTenantRepository(pg *Postgres) *TenantRepository {
	return &TenantRepository{pg}
}

// GetByID returns nil, nil when the tenant does not exist.
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	query, args, err := r.Builder.
		Select("id", "name", "timezone", "concurrency_cap", "plan", "stripe_customer_id", "stripe_subscription_id", "created_at").
		From("tenants").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("TenantRepository - GetByID - r.Builder.ToSql: %w", err)
	}

	var (
		t              model.Tenant
		concurrencyCap sql.NullInt64
		customerID     sql.NullString
		subscription   sql.NullString
	)
	err = r.GetExecutor(ctx).QueryRowContext(ctx, query, args...).
		Scan(&t.ID, &t.Name, &t.Timezone, &concurrencyCap, &t.Plan, &customerID, &subscription, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("TenantRepository - GetByID - Scan: %w", err)
	}

	if concurrencyCap.Valid {
		c := int(concurrencyCap.Int64)
		t.ConcurrencyCap = &c
	}
	t.StripeCustomerID = stringPtr(customerID)
	t.StripeSubscriptionID = stringPtr(subscription)
	return &t, nil
}

func (r *TenantRepository) Create(ctx context.Context, t *model.Tenant) error {
	var concurrencyCap any
	if t.ConcurrencyCap != nil {
		concurrencyCap = *t.ConcurrencyCap
	}
	plan := t.Plan
	if plan == "" {
		plan = model.DefaultPlan
	}

	query, args, err := r.Builder.
		Insert("tenants").
		Columns("id", "name", "timezone", "concurrency_cap", "plan", "created_at").
		Values(t.ID, t.Name, t.Timezone, concurrencyCap, plan, t.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("TenantRepository - Create - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("TenantRepository - Create - ExecContext: %w", err)
	}
	t.Plan = plan
	return nil
}

func (r *TenantRepository) UpdateBilling(ctx context.Context, id, customerID, subscriptionID string) error {
	query, args, err := r.Builder.
		Update("tenants").
		Set("stripe_customer_id", customerID).
		Set("stripe_subscription_id", subscriptionID).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("TenantRepository - UpdateBilling - r.Builder.ToSql: %w", err)
	}

	res, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("TenantRepository - UpdateBilling - ExecContext: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewNotFound("tenant", id)
	}
	return nil
}
