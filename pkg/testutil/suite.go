package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/brightdesk/crm-backend/pkg/database"
	"github.com/brightdesk/crm-backend/pkg/logger"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	DB        *database.DB
	Fixtures  *FixtureFactory
	Logger    *logger.Logger
}

// NewIntegrationSuite creates a new integration test suite.
// Call this in TestMain to set up shared test infrastructure. The schema
// starts empty: apply migrations with the schema package.
//
// Usage:
//
//	var suite *testutil.IntegrationSuite
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//
//	    suite, err := testutil.NewIntegrationSuite(ctx)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer testutil.TerminateContainer(ctx)
//
//	    os.Exit(m.Run())
//	}
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.New("test", "test")
	wrappedDB, err := database.NewWithDSN(container.DSN, log)
	if err != nil {
		return nil, err
	}

	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		DB:        wrappedDB,
		Fixtures:  NewFixtureFactory(),
		Logger:    log,
	}, nil
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// Reset empties the database. Each test that needs a known schema version
// resets and migrates.
func (s *IntegrationSuite) Reset(t *testing.T, ctx context.Context) {
	t.Helper()
	if err := s.Container.ResetSchema(ctx, s.RawDB); err != nil {
		t.Fatalf("failed to reset schema: %v", err)
	}
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}
