package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/database"
)

var invoiceColumns = []string{"id", "tenant_id", "client_id", "deal_id", "number", "amount", "currency", "status", "issued_at", "due_at", "created_at"}

// CurrencyTotal is a sum of amounts in one currency.
type CurrencyTotal struct {
	Currency string  `db:"currency"`
	Total    float64 `db:"total"`
}

// InvoiceRepository handles invoice persistence
type InvoiceRepository struct {
	db *database.DB
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *database.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// List returns the tenant's invoices, newest first, optionally by status.
func (r *InvoiceRepository) List(ctx context.Context, tenantID string, status domain.InvoiceStatus) ([]domain.Invoice, error) {
	sb := database.TenantSelect("invoices", tenantID, invoiceColumns...)
	if status != "" {
		sb.Where(sb.Equal("status", string(status)))
	}
	sb.OrderBy("created_at").Desc()
	query, args := sb.Build()

	invoices := []domain.Invoice{}
	if err := r.db.Q(ctx).SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, err
	}
	return invoices, nil
}

// Get returns one invoice of the tenant.
func (r *InvoiceRepository) Get(ctx context.Context, tenantID, id string) (*domain.Invoice, error) {
	sb := database.TenantSelect("invoices", tenantID, invoiceColumns...)
	sb.Where(sb.Equal("id", id))
	query, args := sb.Build()

	var inv domain.Invoice
	if err := r.db.Q(ctx).GetContext(ctx, &inv, query, args...); err != nil {
		return nil, notFound(err, "invoice")
	}
	return &inv, nil
}

// Create inserts an invoice.
func (r *InvoiceRepository) Create(ctx context.Context, inv *domain.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("invoices").
		Cols("id", "tenant_id", "client_id", "deal_id", "number", "amount", "currency", "status", "issued_at", "due_at").
		Values(inv.ID, inv.TenantID, inv.ClientID, inv.DealID, inv.Number, inv.Amount, inv.Currency, string(inv.Status), inv.IssuedAt, inv.DueAt)
	ib.Returning("created_at")
	query, args := ib.Build()

	err := r.db.Q(ctx).QueryRowxContext(ctx, query, args...).Scan(&inv.CreatedAt)
	return mapWriteErr(err)
}

// SetStatus changes an invoice's status.
func (r *InvoiceRepository) SetStatus(ctx context.Context, tenantID, id string, status domain.InvoiceStatus) error {
	res, err := r.db.Q(ctx).ExecContext(ctx,
		`UPDATE invoices SET status = $1 WHERE id = $2 AND tenant_id = $3`, string(status), id, tenantID)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectOne(res, "invoice")
}

// Delete removes an invoice.
func (r *InvoiceRepository) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.db.Q(ctx).ExecContext(ctx, `DELETE FROM invoices WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return err
	}
	return expectOne(res, "invoice")
}

// OutstandingByCurrency sums sent, unpaid invoices per currency.
func (r *InvoiceRepository) OutstandingByCurrency(ctx context.Context, tenantID string) ([]CurrencyTotal, error) {
	query := `SELECT currency, COALESCE(SUM(amount), 0) AS total FROM invoices
		WHERE tenant_id = $1 AND status = 'SENT' GROUP BY currency ORDER BY currency`

	totals := []CurrencyTotal{}
	if err := r.db.Q(ctx).SelectContext(ctx, &totals, query, tenantID); err != nil {
		return nil, err
	}
	return totals, nil
}
