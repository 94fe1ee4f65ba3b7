// internal/repository/invoice_repository.go
package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/unclebandit/revive-backend/internal/model"
)

type InvoiceRepositoryInterface interface {
	Upsert(ctx context.Context, inv *model.Invoice) error
	ListByTenant(ctx context.Context, tenantID string) ([]*model.Invoice, error)
}

type InvoiceRepository struct {
	*Postgres
}

var _ InvoiceRepositoryInterface = (*InvoiceRepository)(nil)

func NewInvoiceRepository(pg *Postgres) *InvoiceRepository {
	return &InvoiceRepository{pg}
}

func (r *InvoiceRepository) Upsert(ctx context.Context, inv *model.Invoice) error {
	query, args, err := r.Builder.
		Insert("invoices").
		Columns("id", "tenant_id", "status", "amount_cents", "currency", "created_at", "updated_at").
		Values(inv.ID, inv.TenantID, inv.Status, inv.AmountCents, inv.Currency, inv.CreatedAt, inv.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
            status = EXCLUDED.status,
            amount_cents = EXCLUDED.amount_cents,
            currency = EXCLUDED.currency,
            updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("InvoiceRepository - Upsert - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("InvoiceRepository - Upsert - ExecContext: %w", err)
	}
	return nil
}

func (r *InvoiceRepository) ListByTenant(ctx context.Context, tenantID string) ([]*model.Invoice, error) {
	query, args, err := r.Builder.
		Select("id", "tenant_id", "status", "amount_cents", "currency", "created_at", "updated_at").
		From("invoices").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("InvoiceRepository - ListByTenant - r.Builder.ToSql: %w", err)
	}

	rows, err := r.GetExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("InvoiceRepository - ListByTenant - QueryContext: %w", err)
	}
	defer rows.Close()

	invoices := []*model.Invoice{}
	for rows.Next() {
		var inv model.Invoice
		if err := rows.Scan(&inv.ID, &inv.TenantID, &inv.Status, &inv.AmountCents, &inv.Currency, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("InvoiceRepository - ListByTenant - Scan: %w", err)
		}
		invoices = append(invoices, &inv)
	}
	return invoices, rows.Err()
}
