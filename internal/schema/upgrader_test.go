package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/messaging"
	"github.com/brightdesk/crm-backend/pkg/testutil"
)

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) Invalidate() { c.calls++ }

// expectCheck sets up the existence check of step i.
func expectCheck(mockDB *testutil.MockDB, i int, exists bool) {
	steps := Steps()
	step := steps[i]

	switch {
	case i == 0:
		mockDB.ExpectQuery(typeExistsQuery).WithArgs("user_role").
			WillReturnRows(testutil.MockRows("exists").AddRow(exists))
	case step.Name == "products" || step.Name == "deal_items" || step.Name == "subscriptions":
		mockDB.ExpectQuery(tableExistsQuery).WithArgs(step.Name).
			WillReturnRows(testutil.MockRows("exists").AddRow(exists))
	default:
		n := columnCount(step.Name)
		if !exists {
			n = 0
		}
		mockDB.ExpectQuery(columnCountQuery).
			WillReturnRows(testutil.MockRows("count").AddRow(n))
	}
}

func columnCount(step string) int {
	switch step {
	case "clients.profile", "tenants.settings":
		return 4
	}
	return 1
}

func expectApply(mockDB *testutil.MockDB, i int) {
	mockDB.ExpectBegin()
	for range Steps()[i].DDL {
		mockDB.Mock.ExpectExec(".+").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mockDB.ExpectCommit()
}

func TestSteps_Order(t *testing.T) {
	var names []string
	for _, s := range Steps() {
		names = append(names, s.Name)
	}

	assert.Equal(t, []string{
		"user_role_enum",
		"users.role",
		"deals.client_id",
		"deals.owner_id",
		"deals.proposal_file_path",
		"products",
		"deal_items",
		"clients.profile",
		"subscriptions",
		"tenants.settings",
	}, names)
}

func TestUpgrader_UpToDateSkipsEverything(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	for i := range Steps() {
		expectCheck(mockDB, i, true)
	}

	probe := &countingInvalidator{}
	pub := testutil.NewMockPublisher()
	report := NewUpgrader(mockDB.Wrapped(), probe, pub, logger.Nop()).Run(context.Background())

	assert.Len(t, report.Skipped, len(Steps()))
	assert.Empty(t, report.Applied)
	assert.Empty(t, report.Failed)
	assert.False(t, report.Changed())
	assert.Zero(t, probe.calls)
	pub.AssertNoEventsPublished(t)
	mockDB.ExpectationsWereMet(t)
}

func TestUpgrader_AppliesMissingSteps(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	for i := range Steps() {
		missing := i == 2 || i == 3 // deals.client_id, deals.owner_id
		expectCheck(mockDB, i, !missing)
		if missing {
			expectApply(mockDB, i)
		}
	}

	probe := &countingInvalidator{}
	pub := testutil.NewMockPublisher()
	report := NewUpgrader(mockDB.Wrapped(), probe, pub, logger.Nop()).Run(context.Background())

	assert.Equal(t, []string{"deals.client_id", "deals.owner_id"}, report.Applied)
	assert.Len(t, report.Skipped, len(Steps())-2)
	assert.Equal(t, 1, probe.calls)

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, messaging.EventSchemaUpgraded, events[0].Type)
	payload := events[0].Payload.(messaging.SchemaUpgradedEvent)
	assert.Equal(t, report.Applied, payload.Applied)
	mockDB.ExpectationsWereMet(t)
}

func TestUpgrader_FailedStepDoesNotBlockLaterSteps(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	// Enum creation is denied; the role column then fails its own check;
	// everything after still runs.
	expectCheck(mockDB, 0, false)
	mockDB.ExpectBegin()
	mockDB.Mock.ExpectExec("CREATE TYPE user_role").WillReturnError(errors.New("permission denied"))
	mockDB.ExpectRollback()

	mockDB.ExpectQuery(columnCountQuery).WillReturnError(errors.New("catalog unavailable"))

	for i := 2; i < len(Steps()); i++ {
		expectCheck(mockDB, i, i != len(Steps())-1)
	}
	expectApply(mockDB, len(Steps())-1)

	report := NewUpgrader(mockDB.Wrapped(), nil, nil, logger.Nop()).Run(context.Background())

	assert.Equal(t, []string{"user_role_enum", "users.role"}, report.Failed)
	assert.Contains(t, report.Errors["user_role_enum"], "permission denied")
	assert.Contains(t, report.Errors["users.role"], "existence check")
	assert.Equal(t, []string{"tenants.settings"}, report.Applied)
	mockDB.ExpectationsWereMet(t)
}

func TestUpgrader_PublishFailureIsNotFatal(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	for i := range Steps() {
		expectCheck(mockDB, i, i != 4)
		if i == 4 {
			expectApply(mockDB, i)
		}
	}

	pub := testutil.NewMockPublisher()
	pub.Err = errors.New("broker down")

	report := NewUpgrader(mockDB.Wrapped(), nil, pub, logger.Nop()).Run(context.Background())

	assert.Equal(t, []string{"deals.proposal_file_path"}, report.Applied)
	assert.Empty(t, report.Failed)
}
