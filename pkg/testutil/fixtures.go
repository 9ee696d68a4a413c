package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// TenantFixture represents test tenant data
type TenantFixture struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// UserFixture represents test user data
type UserFixture struct {
	ID           string
	TenantID     string
	Email        string
	PasswordHash string
	Name         string
	Role         string
	CreatedAt    time.Time
}

// StageFixture represents a pipeline stage
type StageFixture struct {
	ID          string
	Name        string
	Position    int
	Probability float64
	Status      string
}

// PipelineFixture represents a pipeline with its stages
type PipelineFixture struct {
	ID       string
	TenantID string
	Name     string
	Stages   []StageFixture
}

// ProductFixture represents a catalog product
type ProductFixture struct {
	ID       string
	TenantID string
	Name     string
	Price    float64
	Currency string
	Active   bool
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Tenant creates a tenant fixture with defaults
func (f *FixtureFactory) Tenant() TenantFixture {
	return TenantFixture{
		ID:        uuid.New().String(),
		Name:      fmt.Sprintf("Tenant %d", f.nextSeq()),
		CreatedAt: time.Now(),
	}
}

// User creates a user fixture with defaults
func (f *FixtureFactory) User(tenantID string, opts ...func(*UserFixture)) UserFixture {
	seq := f.nextSeq()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)

	user := UserFixture{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		Email:        fmt.Sprintf("user%d@test.brightdesk.io", seq),
		PasswordHash: string(hash),
		Name:         fmt.Sprintf("Test User %d", seq),
		Role:         "MEMBER",
		CreatedAt:    time.Now(),
	}

	for _, opt := range opts {
		opt(&user)
	}

	return user
}

// WithRole sets the user's role
func WithRole(role string) func(*UserFixture) {
	return func(u *UserFixture) {
		u.Role = role
	}
}

// SalesPipeline creates a two-stage pipeline: Lead (10%) then Won.
func (f *FixtureFactory) SalesPipeline(tenantID string) PipelineFixture {
	f.nextSeq()
	return PipelineFixture{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Name:     "Sales",
		Stages: []StageFixture{
			{ID: uuid.New().String(), Name: "Lead", Position: 0, Probability: 0.1, Status: "OPEN"},
			{ID: uuid.New().String(), Name: "Won", Position: 1, Probability: 1, Status: "WON"},
		},
	}
}

// Product creates an active product fixture
func (f *FixtureFactory) Product(tenantID string) ProductFixture {
	seq := f.nextSeq()
	return ProductFixture{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Name:     fmt.Sprintf("Product %d", seq),
		Price:    100,
		Currency: "USD",
		Active:   true,
	}
}

// InsertTenant writes the tenant row
func InsertTenant(ctx context.Context, db *sqlx.DB, t TenantFixture) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, created_at) VALUES ($1, $2, $3)`,
		t.ID, t.Name, t.CreatedAt)
	return err
}

// InsertUser writes the user row. withRole must be false while the role
// column does not exist.
func InsertUser(ctx context.Context, db *sqlx.DB, u UserFixture, withRole bool) error {
	if !withRole {
		_, err := db.ExecContext(ctx,
			`INSERT INTO users (id, tenant_id, email, password_hash, name, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			u.ID, u.TenantID, u.Email, u.PasswordHash, u.Name, u.CreatedAt)
		return err
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO users (id, tenant_id, email, password_hash, name, role, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.TenantID, u.Email, u.PasswordHash, u.Name, u.Role, u.CreatedAt)
	return err
}

// InsertPipeline writes the pipeline and its stages
func InsertPipeline(ctx context.Context, db *sqlx.DB, p PipelineFixture) error {
	if _, err := db.ExecContext(ctx,
		`INSERT INTO pipelines (id, tenant_id, name) VALUES ($1, $2, $3)`,
		p.ID, p.TenantID, p.Name); err != nil {
		return err
	}
	for _, s := range p.Stages {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO stages (id, tenant_id, pipeline_id, name, position, probability, status) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			s.ID, p.TenantID, p.ID, s.Name, s.Position, s.Probability, s.Status); err != nil {
			return err
		}
	}
	return nil
}

// InsertProduct writes the product row
func InsertProduct(ctx context.Context, db *sqlx.DB, p ProductFixture) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO products (id, tenant_id, name, price, currency, active) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.TenantID, p.Name, p.Price, p.Currency, p.Active)
	return err
}
