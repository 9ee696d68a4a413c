package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/database"
)

// TenantRepository handles tenants and their settings
type TenantRepository struct {
	db *database.DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *database.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create inserts a tenant.
func (r *TenantRepository) Create(ctx context.Context, t *domain.Tenant) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	err := r.db.Q(ctx).QueryRowxContext(ctx,
		`INSERT INTO tenants (id, name) VALUES ($1, $2) RETURNING created_at`, t.ID, t.Name,
	).Scan(&t.CreatedAt)
	return mapWriteErr(err)
}

// Get returns a tenant.
func (r *TenantRepository) Get(ctx context.Context, id string) (*domain.Tenant, error) {
	var t domain.Tenant
	if err := r.db.Q(ctx).GetContext(ctx, &t, `SELECT id, name, created_at FROM tenants WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "tenant")
	}
	return &t, nil
}

// Settings returns branding and CRM settings. Needs the settings columns.
func (r *TenantRepository) Settings(ctx context.Context, tenantID string) (*domain.TenantSettings, error) {
	query := `SELECT logo_url, primary_color, default_pipeline_id, default_currency FROM tenants WHERE id = $1`

	var s domain.TenantSettings
	if err := r.db.Q(ctx).GetContext(ctx, &s, query, tenantID); err != nil {
		return nil, notFound(err, "tenant")
	}
	return &s, nil
}

// UpdateSettings replaces branding and CRM settings.
func (r *TenantRepository) UpdateSettings(ctx context.Context, tenantID string, s *domain.TenantSettings) error {
	query := `UPDATE tenants SET logo_url = $1, primary_color = $2, default_pipeline_id = $3, default_currency = $4
		WHERE id = $5`
	res, err := r.db.Q(ctx).ExecContext(ctx, query, s.LogoURL, s.PrimaryColor, s.DefaultPipelineID, s.DefaultCurrency, tenantID)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectOne(res, "tenant")
}
