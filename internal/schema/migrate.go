package schema

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/brightdesk/crm-backend/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLogger adapts our logger to migrate.Logger
type migrationLogger struct {
	log *logger.Logger
}

func (l migrationLogger) Printf(format string, v ...any) {
	l.log.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrationLogger) Verbose() bool {
	return false
}

// Migrator runs the embedded SQL migrations. It owns the database handle it
// was created with: Close closes it.
type Migrator struct {
	m      *migrate.Migrate
	logger *logger.Logger
}

// NewMigrator prepares migrations against db.
func NewMigrator(db *sql.DB, log *logger.Logger) (*Migrator, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrationLogger{log: log}

	return &Migrator{m: m, logger: log}, nil
}

// Up applies all pending migrations.
func (mg *Migrator) Up() error {
	return mg.handle(mg.m.Up())
}

// Down reverts the most recent migration.
func (mg *Migrator) Down() error {
	return mg.handle(mg.m.Steps(-1))
}

// To migrates up or down to version.
func (mg *Migrator) To(version uint) error {
	return mg.handle(mg.m.Migrate(version))
}

// Version returns the current version. A database with no migrations
// applied reports version 0.
func (mg *Migrator) Version() (uint, bool, error) {
	version, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Close releases the source and database handles.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}

func (mg *Migrator) handle(err error) error {
	if err == nil {
		mg.logger.Info().Msg("migrations applied")
		return nil
	}
	if errors.Is(err, migrate.ErrNoChange) {
		mg.logger.Info().Msg("no new migrations to apply")
		return nil
	}
	return fmt.Errorf("migration failed: %w", err)
}
