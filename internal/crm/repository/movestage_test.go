package repository

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/testutil"
)

const (
	insertHistorySQL = `INSERT INTO deal_stage_history (id, tenant_id, deal_id, from_stage_id, to_stage_id, changed_by)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING changed_at`
	setStageSQL = `UPDATE deals SET stage_id = $1, updated_at = NOW() WHERE id = $2 AND tenant_id = $3`
)

func moveStage(ctx context.Context, mockDB *testutil.MockDB, repo *DealRepository) error {
	from, by := "s1", userA
	return mockDB.Wrapped().WithinTx(ctx, func(ctx context.Context) error {
		if err := repo.InsertHistory(ctx, &domain.StageHistory{
			TenantID:    tenantA,
			DealID:      dealID,
			FromStageID: &from,
			ToStageID:   "s2",
			ChangedBy:   &by,
		}); err != nil {
			return err
		}
		return repo.SetStage(ctx, tenantA, dealID, "s2")
	})
}

func TestStageMove_CommitsHistoryAndStageTogether(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	repo := NewDealRepository(mockDB.Wrapped())

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(insertHistorySQL).
		WithArgs(testutil.AnyUUID{}, tenantA, dealID, "s1", "s2", userA).
		WillReturnRows(sqlmock.NewRows([]string{"changed_at"}).AddRow(time.Now()))
	mockDB.ExpectExec(setStageSQL).
		WithArgs("s2", dealID, tenantA).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	require.NoError(t, moveStage(context.Background(), mockDB, repo))
	mockDB.ExpectationsWereMet(t)
}

func TestStageMove_FailedUpdateRollsBackHistory(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	repo := NewDealRepository(mockDB.Wrapped())

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(insertHistorySQL).
		WillReturnRows(sqlmock.NewRows([]string{"changed_at"}).AddRow(time.Now()))
	mockDB.ExpectExec(setStageSQL).
		WithArgs("s2", dealID, tenantA).
		WillReturnError(stderrors.New("connection reset"))
	mockDB.ExpectRollback()

	err := moveStage(context.Background(), mockDB, repo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	mockDB.ExpectationsWereMet(t)
}

func TestStageMove_DealGoneRollsBack(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	repo := NewDealRepository(mockDB.Wrapped())

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(insertHistorySQL).
		WillReturnRows(sqlmock.NewRows([]string{"changed_at"}).AddRow(time.Now()))
	mockDB.ExpectExec(setStageSQL).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectRollback()

	require.Error(t, moveStage(context.Background(), mockDB, repo))
	mockDB.ExpectationsWereMet(t)
}
