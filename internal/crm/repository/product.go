package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/database"
)

var productColumns = []string{"id", "tenant_id", "name", "sku", "price", "currency", "active", "created_at", "updated_at"}

// ProductRepository handles product persistence. Only usable when the
// product tables exist.
type ProductRepository struct {
	db *database.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *database.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// List returns the tenant's products by name.
func (r *ProductRepository) List(ctx context.Context, tenantID string, activeOnly bool) ([]domain.Product, error) {
	sb := database.TenantSelect("products", tenantID, productColumns...)
	if activeOnly {
		sb.Where(sb.Equal("active", true))
	}
	sb.OrderBy("name")
	query, args := sb.Build()

	products := []domain.Product{}
	if err := r.db.Q(ctx).SelectContext(ctx, &products, query, args...); err != nil {
		return nil, err
	}
	return products, nil
}

// Get returns one product of the tenant.
func (r *ProductRepository) Get(ctx context.Context, tenantID, id string) (*domain.Product, error) {
	sb := database.TenantSelect("products", tenantID, productColumns...)
	sb.Where(sb.Equal("id", id))
	query, args := sb.Build()

	var p domain.Product
	if err := r.db.Q(ctx).GetContext(ctx, &p, query, args...); err != nil {
		return nil, notFound(err, "product")
	}
	return &p, nil
}

// FindActive returns the active tenant products among ids.
func (r *ProductRepository) FindActive(ctx context.Context, tenantID string, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}

	sb := database.TenantSelect("products", tenantID, productColumns...)
	sb.Where(sb.Equal("active", true), sb.In("id", database.Flatten(ids)...))
	query, args := sb.Build()

	products := []domain.Product{}
	if err := r.db.Q(ctx).SelectContext(ctx, &products, query, args...); err != nil {
		return nil, err
	}
	return products, nil
}

// Create inserts a product.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("products").
		Cols("id", "tenant_id", "name", "sku", "price", "currency", "active").
		Values(p.ID, p.TenantID, p.Name, p.SKU, p.Price, p.Currency, p.Active)
	ib.Returning("created_at", "updated_at")
	query, args := ib.Build()

	err := r.db.Q(ctx).QueryRowxContext(ctx, query, args...).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapWriteErr(err)
}

// Update replaces a product's fields.
func (r *ProductRepository) Update(ctx context.Context, p *domain.Product) error {
	ub := database.TenantUpdate("products", p.ID, p.TenantID)
	ub.Set(
		ub.Assign("name", p.Name),
		ub.Assign("sku", p.SKU),
		ub.Assign("price", p.Price),
		ub.Assign("currency", p.Currency),
		ub.Assign("active", p.Active),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	query, args := ub.Build()

	res, err := r.db.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectOne(res, "product")
}

// Deactivate hides a product from new deals. Existing line items keep it.
func (r *ProductRepository) Deactivate(ctx context.Context, tenantID, id string) error {
	query := `UPDATE products SET active = FALSE, updated_at = NOW() WHERE id = $1 AND tenant_id = $2`
	res, err := r.db.Q(ctx).ExecContext(ctx, query, id, tenantID)
	if err != nil {
		return err
	}
	return expectOne(res, "product")
}
