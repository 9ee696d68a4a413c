package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/database"
)

// ClientRepository handles client persistence
type ClientRepository struct {
	db *database.DB
}

// NewClientRepository creates a new client repository
func NewClientRepository(db *database.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// ClientColumns returns the client columns the live schema has.
func ClientColumns(caps domain.Caps) []string {
	cols := []string{"id", "tenant_id", "name", "email", "company", "created_at", "updated_at"}
	if caps.HasClientProfile {
		cols = append(cols, "phone", "website", "address", "notes")
	}
	return cols
}

// List returns the tenant's clients by name.
func (r *ClientRepository) List(ctx context.Context, caps domain.Caps, tenantID string) ([]domain.Client, error) {
	sb := database.TenantSelect("clients", tenantID, ClientColumns(caps)...)
	sb.OrderBy("name")
	query, args := sb.Build()

	clients := []domain.Client{}
	if err := r.db.Q(ctx).SelectContext(ctx, &clients, query, args...); err != nil {
		return nil, err
	}
	return clients, nil
}

// Get returns one client of the tenant.
func (r *ClientRepository) Get(ctx context.Context, caps domain.Caps, tenantID, id string) (*domain.Client, error) {
	sb := database.TenantSelect("clients", tenantID, ClientColumns(caps)...)
	sb.Where(sb.Equal("id", id))
	query, args := sb.Build()

	var c domain.Client
	if err := r.db.Q(ctx).GetContext(ctx, &c, query, args...); err != nil {
		return nil, notFound(err, "client")
	}
	return &c, nil
}

// Exists reports whether the tenant owns a client with id.
func (r *ClientRepository) Exists(ctx context.Context, tenantID, id string) (bool, error) {
	var ok bool
	query := `SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1 AND tenant_id = $2)`
	if err := r.db.Q(ctx).GetContext(ctx, &ok, query, id, tenantID); err != nil {
		return false, err
	}
	return ok, nil
}

func clientValues(caps domain.Caps, c *domain.Client) ([]string, []any) {
	cols := []string{"name", "email", "company"}
	vals := []any{c.Name, c.Email, c.Company}
	if caps.HasClientProfile {
		cols = append(cols, "phone", "website", "address", "notes")
		vals = append(vals, c.Phone, c.Website, c.Address, c.Notes)
	}
	return cols, vals
}

// Create inserts a client.
func (r *ClientRepository) Create(ctx context.Context, caps domain.Caps, c *domain.Client) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	cols, vals := clientValues(caps, c)

	ib := database.NewInsertBuilder()
	ib.InsertInto("clients").
		Cols(append([]string{"id", "tenant_id"}, cols...)...).
		Values(append([]any{c.ID, c.TenantID}, vals...)...)
	ib.Returning("created_at", "updated_at")
	query, args := ib.Build()

	err := r.db.Q(ctx).QueryRowxContext(ctx, query, args...).Scan(&c.CreatedAt, &c.UpdatedAt)
	return mapWriteErr(err)
}

// Update replaces a client's fields.
func (r *ClientRepository) Update(ctx context.Context, caps domain.Caps, c *domain.Client) error {
	cols, vals := clientValues(caps, c)

	ub := database.TenantUpdate("clients", c.ID, c.TenantID)
	assignments := make([]string, 0, len(cols)+1)
	for i, col := range cols {
		assignments = append(assignments, ub.Assign(col, vals[i]))
	}
	assignments = append(assignments, ub.Assign("updated_at", sqlbuilder.Raw("NOW()")))
	ub.Set(assignments...)
	query, args := ub.Build()

	res, err := r.db.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectOne(res, "client")
}

// Delete removes a client.
func (r *ClientRepository) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.db.Q(ctx).ExecContext(ctx, `DELETE FROM clients WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectOne(res, "client")
}
