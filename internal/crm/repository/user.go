package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/database"
)

// UserRepository handles user persistence
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

func userColumns(caps domain.Caps) []string {
	cols := []string{"id", "tenant_id", "email", "name", "password_hash", "created_at"}
	if caps.HasUserRole {
		cols = append(cols, "role")
	}
	return cols
}

// Role returns the stored role of a tenant user. Errors from the database
// are returned as-is so callers can recognise schema drift.
func (r *UserRepository) Role(ctx context.Context, tenantID, id string) (domain.Role, error) {
	var role string
	err := r.db.Q(ctx).GetContext(ctx, &role, `SELECT role FROM users WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return "", notFound(err, "user")
	}
	return domain.Role(role), nil
}

// Get returns one user of the tenant.
func (r *UserRepository) Get(ctx context.Context, caps domain.Caps, tenantID, id string) (*domain.User, error) {
	sb := database.TenantSelect("users", tenantID, userColumns(caps)...)
	sb.Where(sb.Equal("id", id))
	query, args := sb.Build()

	var u domain.User
	if err := r.db.Q(ctx).GetContext(ctx, &u, query, args...); err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// GetByEmail looks a user up across tenants. Emails are globally unique.
func (r *UserRepository) GetByEmail(ctx context.Context, caps domain.Caps, email string) (*domain.User, error) {
	sb := database.NewSelectBuilder()
	sb.Select(userColumns(caps)...).From("users")
	sb.Where(sb.Equal("email", strings.ToLower(email)))
	query, args := sb.Build()

	var u domain.User
	if err := r.db.Q(ctx).GetContext(ctx, &u, query, args...); err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// List returns the tenant's users by name.
func (r *UserRepository) List(ctx context.Context, caps domain.Caps, tenantID string) ([]domain.User, error) {
	sb := database.TenantSelect("users", tenantID, userColumns(caps)...)
	sb.OrderBy("name")
	query, args := sb.Build()

	users := []domain.User{}
	if err := r.db.Q(ctx).SelectContext(ctx, &users, query, args...); err != nil {
		return nil, err
	}
	return users, nil
}

// Create inserts a user. The role is only written when the column exists.
func (r *UserRepository) Create(ctx context.Context, caps domain.Caps, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.Email = strings.ToLower(u.Email)

	cols := []string{"id", "tenant_id", "email", "name", "password_hash"}
	vals := []any{u.ID, u.TenantID, u.Email, u.Name, u.PasswordHash}
	if caps.HasUserRole {
		cols = append(cols, "role")
		vals = append(vals, string(u.Role))
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("users").Cols(cols...).Values(vals...)
	ib.Returning("created_at")
	query, args := ib.Build()

	err := r.db.Q(ctx).QueryRowxContext(ctx, query, args...).Scan(&u.CreatedAt)
	return mapWriteErr(err)
}

// SetRole changes a user's role.
func (r *UserRepository) SetRole(ctx context.Context, tenantID, id string, role domain.Role) error {
	res, err := r.db.Q(ctx).ExecContext(ctx,
		`UPDATE users SET role = $1 WHERE id = $2 AND tenant_id = $3`, string(role), id, tenantID)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectOne(res, "user")
}

// CountOwners returns how many owners the tenant has. The count locks the
// owner rows so concurrent demotions inside transactions serialise.
func (r *UserRepository) CountOwners(ctx context.Context, tenantID string) (int, error) {
	var ids []string
	err := r.db.Q(ctx).SelectContext(ctx, &ids,
		`SELECT id FROM users WHERE tenant_id = $1 AND role = 'OWNER' FOR UPDATE`, tenantID)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
