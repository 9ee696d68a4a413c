package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/testutil"
)

const (
	tenantA = "11111111-1111-1111-1111-111111111111"
	userA   = "22222222-2222-2222-2222-222222222222"
	dealID  = "33333333-3333-3333-3333-333333333333"
)

var baseDealCols = []string{"id", "tenant_id", "pipeline_id", "stage_id", "title", "value", "currency", "created_at", "updated_at"}

func TestDealColumns(t *testing.T) {
	assert.Equal(t, baseDealCols, DealColumns(domain.Caps{}))

	full := DealColumns(domain.AllCaps())
	assert.Equal(t, append(append([]string{}, baseDealCols...), "client_id", "owner_id", "proposal_file_path"), full)
}

func TestDealRepository_ListMemberSeesOwnDeals(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	now := time.Now()
	owner := userA
	rows := testutil.MockRows(append(append([]string{}, baseDealCols...), "client_id", "owner_id", "proposal_file_path")...).
		AddRow(dealID, tenantA, "p1", "s1", "Acme", 1000.0, "USD", now, now, nil, owner, "/tmp/x.pdf")

	mockDB.Mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, tenant_id, pipeline_id, stage_id, title, value, currency, created_at, updated_at, client_id, owner_id, proposal_file_path FROM deals WHERE tenant_id = $1 AND pipeline_id = $2 AND owner_id = $3 ORDER BY created_at DESC",
	)).WithArgs(tenantA, "p1", userA).WillReturnRows(rows)

	repo := NewDealRepository(mockDB.Wrapped())
	deals, err := repo.List(context.Background(), domain.AllCaps(), DealFilter{TenantID: tenantA, PipelineID: "p1", OwnerID: userA})

	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.Equal(t, "Acme", deals[0].Title)
	assert.True(t, deals[0].HasProposal)
	assert.Equal(t, userA, *deals[0].OwnerID)
	mockDB.ExpectationsWereMet(t)
}

func TestDealRepository_ListWithoutOptionalColumns(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	// The owner filter is dropped when the column does not exist
	mockDB.Mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, tenant_id, pipeline_id, stage_id, title, value, currency, created_at, updated_at FROM deals WHERE tenant_id = $1 ORDER BY created_at DESC",
	)).WithArgs(tenantA).WillReturnRows(testutil.MockRows(baseDealCols...))

	repo := NewDealRepository(mockDB.Wrapped())
	deals, err := repo.List(context.Background(), domain.Caps{}, DealFilter{TenantID: tenantA, OwnerID: userA})

	require.NoError(t, err)
	assert.Empty(t, deals)
	mockDB.ExpectationsWereMet(t)
}

func TestDealRepository_GetNotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.Mock.ExpectQuery(regexp.QuoteMeta("FROM deals WHERE tenant_id = $1 AND id = $2")).
		WithArgs(tenantA, dealID).
		WillReturnError(sql.ErrNoRows)

	repo := NewDealRepository(mockDB.Wrapped())
	_, err := repo.Get(context.Background(), domain.Caps{}, DealFilter{TenantID: tenantA}, dealID)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestDealRepository_InsertWritesOnlyExistingColumns(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	now := time.Now()
	mockDB.Mock.ExpectQuery(regexp.QuoteMeta(
		"INSERT INTO deals (id, tenant_id, pipeline_id, stage_id, title, value, currency, owner_id) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at, updated_at",
	)).WithArgs(testutil.AnyUUID{}, tenantA, "p1", "s1", "Acme", 1000.0, "USD", userA).
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(now, now))

	owner := userA
	deal := &domain.Deal{TenantID: tenantA, PipelineID: "p1", StageID: "s1", Title: "Acme", Value: 1000, Currency: "USD", OwnerID: &owner}

	repo := NewDealRepository(mockDB.Wrapped())
	err := repo.Insert(context.Background(), domain.Caps{HasOwnerID: true}, deal)

	require.NoError(t, err)
	assert.NotEmpty(t, deal.ID)
	assert.Equal(t, now, deal.CreatedAt)
	mockDB.ExpectationsWereMet(t)
}

func TestDealRepository_UpdateSkipsMissingClientColumn(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.Mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE deals SET title = $1, updated_at = NOW() WHERE id = $2 AND tenant_id = $3",
	)).WithArgs("Renamed", dealID, tenantA).WillReturnResult(sqlmock.NewResult(0, 1))

	title := "Renamed"
	client := "c1"
	repo := NewDealRepository(mockDB.Wrapped())
	err := repo.Update(context.Background(), domain.Caps{}, tenantA, dealID, DealPatch{
		Title:       &title,
		ClientIDSet: true,
		ClientID:    &client,
	})

	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestDealRepository_UpdateUnknownDeal(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.Mock.ExpectExec("UPDATE deals SET").WillReturnResult(sqlmock.NewResult(0, 0))

	value := 10.0
	repo := NewDealRepository(mockDB.Wrapped())
	err := repo.Update(context.Background(), domain.AllCaps(), tenantA, dealID, DealPatch{Value: &value})

	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestDealRepository_InsertItemsSingleStatement(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.Mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO deal_items (id, tenant_id, deal_id, product_id, quantity, unit_price) VALUES ($1, $2, $3, $4, $5, $6), ($7, $8, $9, $10, $11, $12)",
	)).WillReturnResult(sqlmock.NewResult(0, 2))

	repo := NewDealRepository(mockDB.Wrapped())
	err := repo.InsertItems(context.Background(), []domain.DealItem{
		{TenantID: tenantA, DealID: dealID, ProductID: "pr1", Quantity: 1, UnitPrice: 10},
		{TenantID: tenantA, DealID: dealID, ProductID: "pr2", Quantity: 3, UnitPrice: 5},
	})

	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestDealRepository_WritesAreTenantScoped(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectExec(`UPDATE deals SET stage_id = $1, updated_at = NOW() WHERE id = $2 AND tenant_id = $3`).
		WithArgs("s2", dealID, tenantA).WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec(`DELETE FROM deal_items WHERE tenant_id = $1 AND deal_id = $2`).
		WithArgs(tenantA, dealID).WillReturnResult(sqlmock.NewResult(0, 2))
	mockDB.ExpectExec(`DELETE FROM deal_stage_history WHERE tenant_id = $1 AND deal_id = $2`).
		WithArgs(tenantA, dealID).WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec(`DELETE FROM deals WHERE id = $1 AND tenant_id = $2`).
		WithArgs(dealID, tenantA).WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewDealRepository(mockDB.Wrapped())
	ctx := context.Background()

	require.NoError(t, repo.SetStage(ctx, tenantA, dealID, "s2"))
	require.NoError(t, repo.DeleteItems(ctx, tenantA, dealID))
	require.NoError(t, repo.DeleteHistory(ctx, tenantA, dealID))
	require.NoError(t, repo.Delete(ctx, tenantA, dealID))
	mockDB.ExpectationsWereMet(t)
}
