package service

import (
	"context"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/permissions"
)

// ProductService handles the product catalog
type ProductService struct {
	caps     CapsSource
	roles    *RoleResolver
	products ProductStore
	logger   *logger.Logger
}

// NewProductService creates a new product service
func NewProductService(caps CapsSource, roles *RoleResolver, products ProductStore, log *logger.Logger) *ProductService {
	return &ProductService{
		caps:     caps,
		roles:    roles,
		products: products,
		logger:   log.WithComponent("products"),
	}
}

func (s *ProductService) authorize(ctx context.Context, caller *actor.Actor, permission string) error {
	if _, err := s.roles.RequirePermission(ctx, caller, permission); err != nil {
		return err
	}
	caps, err := s.caps.Caps(ctx)
	if err != nil {
		return err
	}
	if !caps.HasProductTables {
		return errors.SchemaUpgradePending("products")
	}
	return nil
}

// List returns the catalog, optionally only active products.
func (s *ProductService) List(ctx context.Context, caller *actor.Actor, activeOnly bool) ([]domain.Product, error) {
	if err := s.authorize(ctx, caller, permissions.ProductsRead); err != nil {
		return nil, err
	}
	return s.products.List(ctx, caller.TenantID, activeOnly)
}

// Create adds a product. Requires ADMIN.
func (s *ProductService) Create(ctx context.Context, caller *actor.Actor, in domain.ProductInput) (*domain.Product, error) {
	if err := s.authorize(ctx, caller, permissions.ProductsWrite); err != nil {
		return nil, err
	}

	p := &domain.Product{
		TenantID: caller.TenantID,
		Name:     in.Name,
		SKU:      in.SKU,
		Price:    in.Price,
		Currency: currencyOr(in.Currency, domain.ReportingCurrency),
		Active:   in.Active == nil || *in.Active,
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update replaces a product's fields. Requires ADMIN.
func (s *ProductService) Update(ctx context.Context, caller *actor.Actor, id string, in domain.ProductInput) (*domain.Product, error) {
	if err := s.authorize(ctx, caller, permissions.ProductsWrite); err != nil {
		return nil, err
	}

	p, err := s.products.Get(ctx, caller.TenantID, id)
	if err != nil {
		return nil, err
	}
	p.Name = in.Name
	p.SKU = in.SKU
	p.Price = in.Price
	p.Currency = currencyOr(in.Currency, p.Currency)
	if in.Active != nil {
		p.Active = *in.Active
	}
	if err := s.products.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Deactivate hides a product from new deals. Existing line items keep it.
func (s *ProductService) Deactivate(ctx context.Context, caller *actor.Actor, id string) error {
	if err := s.authorize(ctx, caller, permissions.ProductsWrite); err != nil {
		return err
	}
	return s.products.Deactivate(ctx, caller.TenantID, id)
}
