package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/database"
	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/testutil"
)

func TestUserRepository_RoleDriftPassesThrough(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(`SELECT role FROM users WHERE id = $1 AND tenant_id = $2`).
		WithArgs(userA, tenantA).
		WillReturnError(&pq.Error{Code: "42703", Message: `column "role" does not exist`})

	repo := NewUserRepository(mockDB.Wrapped())
	_, err := repo.Role(context.Background(), tenantA, userA)

	require.Error(t, err)
	assert.True(t, database.IsSchemaDrift(err))
}

func TestUserRepository_RoleMissingUser(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(`SELECT role FROM users`).WillReturnError(sql.ErrNoRows)

	repo := NewUserRepository(mockDB.Wrapped())
	_, err := repo.Role(context.Background(), tenantA, userA)

	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestUserRepository_CreateWithoutRoleColumn(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(`INSERT INTO users (id, tenant_id, email, name, password_hash) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`).
		WithArgs(testutil.AnyUUID{}, tenantA, "ada@example.com", "Ada", "hash").
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))

	repo := NewUserRepository(mockDB.Wrapped())
	u := &domain.User{TenantID: tenantA, Email: "Ada@Example.com", Name: "Ada", PasswordHash: "hash", Role: domain.RoleOwner}
	require.NoError(t, repo.Create(context.Background(), domain.Caps{}, u))

	mockDB.ExpectationsWereMet(t)
}

func TestProductRepository_FindActive(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.Mock.ExpectQuery(regexp.QuoteMeta(
		"FROM products WHERE tenant_id = $1 AND active = $2 AND id IN ($3, $4)",
	)).WithArgs(tenantA, true, "pr1", "pr2").
		WillReturnRows(testutil.MockRows(productColumns...))

	repo := NewProductRepository(mockDB.Wrapped())
	products, err := repo.FindActive(context.Background(), tenantA, []string{"pr1", "pr2"})

	require.NoError(t, err)
	assert.Empty(t, products)
	mockDB.ExpectationsWereMet(t)
}

func TestProductRepository_FindActiveNoIDs(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := NewProductRepository(mockDB.Wrapped())
	products, err := repo.FindActive(context.Background(), tenantA, nil)

	require.NoError(t, err)
	assert.Empty(t, products)
	mockDB.ExpectationsWereMet(t)
}

func TestClientRepository_ProfileColumnsFollowCaps(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.Mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, tenant_id, name, email, company, created_at, updated_at FROM clients WHERE tenant_id = $1 ORDER BY name",
	)).WithArgs(tenantA).WillReturnRows(testutil.MockRows(ClientColumns(domain.Caps{})...))

	mockDB.Mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, tenant_id, name, email, company, created_at, updated_at, phone, website, address, notes FROM clients WHERE tenant_id = $1 ORDER BY name",
	)).WithArgs(tenantA).WillReturnRows(testutil.MockRows(ClientColumns(domain.AllCaps())...))

	repo := NewClientRepository(mockDB.Wrapped())
	ctx := context.Background()

	_, err := repo.List(ctx, domain.Caps{}, tenantA)
	require.NoError(t, err)
	_, err = repo.List(ctx, domain.AllCaps(), tenantA)
	require.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestClientRepository_DeleteUnknown(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectExec(`DELETE FROM clients WHERE id = $1 AND tenant_id = $2`).
		WithArgs("c1", tenantA).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewClientRepository(mockDB.Wrapped())
	err := repo.Delete(context.Background(), tenantA, "c1")

	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestInvoiceRepository_DuplicateNumberIsConflict(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.Mock.ExpectQuery("INSERT INTO invoices").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "invoices_number_key"})

	repo := NewInvoiceRepository(mockDB.Wrapped())
	err := repo.Create(context.Background(), &domain.Invoice{TenantID: tenantA, ClientID: "c1", Number: "INV-1", Status: domain.InvoiceDraft})

	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestTaskRepository_CountOpen(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.Mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT COUNT(*) FROM tasks WHERE tenant_id = $1 AND done = $2 AND assignee_id = $3",
	)).WithArgs(tenantA, false, userA).WillReturnRows(testutil.MockRows("count").AddRow(4))

	repo := NewTaskRepository(mockDB.Wrapped())
	n, err := repo.CountOpen(context.Background(), tenantA, userA)

	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
