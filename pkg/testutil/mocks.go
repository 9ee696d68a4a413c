package testutil

import (
	"context"
	"database/sql/driver"
	"regexp"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/brightdesk/crm-backend/pkg/database"
	"github.com/brightdesk/crm-backend/pkg/logger"
)

// MockDB wraps sqlmock for easier testing
type MockDB struct {
	DB   *sqlx.DB
	Mock sqlmock.Sqlmock
}

// NewMockDB creates a new mock database for unit testing.
// Use this when you want to test repository logic without a real database.
//
// Usage:
//
//	mockDB := testutil.NewMockDB(t)
//	defer mockDB.Close()
//
//	// Set up expectations
//	mockDB.ExpectQuery("SELECT").WillReturnRows(...)
//
//	// Use mockDB.Wrapped() with your repository
//	repo := repository.NewDealRepository(mockDB.Wrapped())
func NewMockDB(t *testing.T) *MockDB {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	sqlxDB := sqlx.NewDb(db, "postgres")

	return &MockDB{
		DB:   sqlxDB,
		Mock: mock,
	}
}

// Wrapped returns the mock as the application's database handle
func (m *MockDB) Wrapped() *database.DB {
	return database.Wrap(m.DB, logger.Nop())
}

// Close closes the mock database connection
func (m *MockDB) Close() error {
	return m.DB.Close()
}

// ExpectQuery sets up an expected query
func (m *MockDB) ExpectQuery(query string) *sqlmock.ExpectedQuery {
	return m.Mock.ExpectQuery(regexp.QuoteMeta(query))
}

// ExpectExec sets up an expected exec
func (m *MockDB) ExpectExec(query string) *sqlmock.ExpectedExec {
	return m.Mock.ExpectExec(regexp.QuoteMeta(query))
}

// ExpectBegin sets up an expected transaction begin
func (m *MockDB) ExpectBegin() *sqlmock.ExpectedBegin {
	return m.Mock.ExpectBegin()
}

// ExpectCommit sets up an expected commit
func (m *MockDB) ExpectCommit() *sqlmock.ExpectedCommit {
	return m.Mock.ExpectCommit()
}

// ExpectRollback sets up an expected rollback
func (m *MockDB) ExpectRollback() *sqlmock.ExpectedRollback {
	return m.Mock.ExpectRollback()
}

// ExpectationsWereMet verifies all expectations were met
func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	if err := m.Mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// MockRows creates a new mock rows object
func MockRows(columns ...string) *sqlmock.Rows {
	return sqlmock.NewRows(columns)
}

// AnyUUID is a matcher for any UUID string
type AnyUUID struct{}

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Match satisfies the sqlmock.Argument interface
func (a AnyUUID) Match(v driver.Value) bool {
	s, ok := v.(string)
	return ok && uuidPattern.MatchString(s)
}

// MockPublisher is a mock event publisher for testing
type MockPublisher struct {
	mu              sync.Mutex
	PublishedEvents []PublishedEvent
	Err             error
}

// PublishedEvent represents an event that was published
type PublishedEvent struct {
	Type    string
	Payload any
}

// NewMockPublisher creates a new mock publisher
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		PublishedEvents: make([]PublishedEvent, 0),
	}
}

// Publish records an event for later verification
func (m *MockPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.PublishedEvents = append(m.PublishedEvents, PublishedEvent{
		Type:    eventType,
		Payload: payload,
	})
	return nil
}

// Events returns a copy of the recorded events
func (m *MockPublisher) Events() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedEvent, len(m.PublishedEvents))
	copy(out, m.PublishedEvents)
	return out
}

// AssertEventPublished checks if an event of the given type was published
func (m *MockPublisher) AssertEventPublished(t *testing.T, eventType string) {
	t.Helper()
	for _, e := range m.Events() {
		if e.Type == eventType {
			return
		}
	}
	t.Errorf("expected event %q to be published, but it wasn't", eventType)
}

// AssertNoEventsPublished checks that no events were published
func (m *MockPublisher) AssertNoEventsPublished(t *testing.T) {
	t.Helper()
	if events := m.Events(); len(events) > 0 {
		t.Errorf("expected no events, but got %d: %+v", len(events), events)
	}
}

// Reset clears all published events
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	m.PublishedEvents = make([]PublishedEvent, 0)
	m.mu.Unlock()
}
