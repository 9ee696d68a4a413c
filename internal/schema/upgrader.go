package schema

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/brightdesk/crm-backend/pkg/database"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/messaging"
	"github.com/brightdesk/crm-backend/pkg/metrics"
)

const (
	typeExistsQuery = `SELECT EXISTS (
		SELECT 1 FROM pg_type t JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = current_schema() AND t.typname = $1)`

	tableExistsQuery = `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1)`

	columnCountQuery = `SELECT COUNT(*) FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1 AND column_name = ANY($2)`
)

// Step is one idempotent upgrade. Exists is checked before the DDL runs.
type Step struct {
	Name   string
	Exists func(ctx context.Context, q database.Querier) (bool, error)
	DDL    []string
}

// Report lists the outcome of every step in run order.
type Report struct {
	Applied []string          `json:"applied"`
	Skipped []string          `json:"skipped"`
	Failed  []string          `json:"failed"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Changed reports whether any step altered the schema.
func (r *Report) Changed() bool {
	return len(r.Applied) > 0
}

// Invalidator drops cached capability state.
type Invalidator interface {
	Invalidate()
}

// Upgrader brings a lagging database up to the shape the code expects. It
// is a fallback for deployments whose migrations have not run; the SQL
// migrations remain the primary mechanism.
type Upgrader struct {
	db        *database.DB
	steps     []Step
	probe     Invalidator
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewUpgrader creates an upgrader with the standard CRM steps.
func NewUpgrader(db *database.DB, probe Invalidator, publisher messaging.EventPublisher, log *logger.Logger) *Upgrader {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	return &Upgrader{
		db:        db,
		steps:     Steps(),
		probe:     probe,
		publisher: publisher,
		logger:    log.WithComponent("schema_upgrader"),
	}
}

// Run executes every step in order. A failing step is logged and skipped so
// later steps still get their chance.
func (u *Upgrader) Run(ctx context.Context) *Report {
	report := &Report{Errors: map[string]string{}}

	for _, step := range u.steps {
		applied, err := u.runStep(ctx, step)
		switch {
		case err != nil:
			u.logger.Warn().Err(err).Str("step", step.Name).Msg("schema upgrade step failed")
			metrics.SchemaUpgradeStepsTotal.WithLabelValues(step.Name, metrics.ResultFailed).Inc()
			report.Failed = append(report.Failed, step.Name)
			report.Errors[step.Name] = err.Error()
		case applied:
			u.logger.Info().Str("step", step.Name).Msg("schema upgrade step applied")
			metrics.SchemaUpgradeStepsTotal.WithLabelValues(step.Name, metrics.ResultApplied).Inc()
			report.Applied = append(report.Applied, step.Name)
		default:
			metrics.SchemaUpgradeStepsTotal.WithLabelValues(step.Name, metrics.ResultSkipped).Inc()
			report.Skipped = append(report.Skipped, step.Name)
		}
	}

	if report.Changed() {
		if u.probe != nil {
			u.probe.Invalidate()
		}
		host, _ := os.Hostname()
		if err := u.publisher.Publish(ctx, messaging.EventSchemaUpgraded, messaging.SchemaUpgradedEvent{
			Applied: report.Applied,
			Host:    host,
		}); err != nil {
			u.logger.Warn().Err(err).Msg("failed to publish schema upgrade")
		}
	}

	u.logger.Info().
		Int("applied", len(report.Applied)).
		Int("skipped", len(report.Skipped)).
		Int("failed", len(report.Failed)).
		Msg("schema upgrade finished")

	return report
}

func (u *Upgrader) runStep(ctx context.Context, step Step) (bool, error) {
	exists, err := step.Exists(ctx, u.db.DB)
	if err != nil {
		return false, fmt.Errorf("existence check: %w", err)
	}
	if exists {
		return false, nil
	}

	err = u.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, stmt := range step.DDL {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func typeExists(name string) func(context.Context, database.Querier) (bool, error) {
	return func(ctx context.Context, q database.Querier) (bool, error) {
		var ok bool
		err := q.GetContext(ctx, &ok, typeExistsQuery, name)
		return ok, err
	}
}

func tableExists(name string) func(context.Context, database.Querier) (bool, error) {
	return func(ctx context.Context, q database.Querier) (bool, error) {
		var ok bool
		err := q.GetContext(ctx, &ok, tableExistsQuery, name)
		return ok, err
	}
}

func columnsExist(table string, columns ...string) func(context.Context, database.Querier) (bool, error) {
	return func(ctx context.Context, q database.Querier) (bool, error) {
		var n int
		if err := q.GetContext(ctx, &n, columnCountQuery, table, pq.Array(columns)); err != nil {
			return false, err
		}
		return n == len(columns), nil
	}
}

// Steps returns the upgrade steps in the order they must run.
func Steps() []Step {
	return []Step{
		{
			Name:   "user_role_enum",
			Exists: typeExists("user_role"),
			DDL:    []string{`CREATE TYPE user_role AS ENUM ('OWNER', 'ADMIN', 'MEMBER')`},
		},
		{
			Name:   "users.role",
			Exists: columnsExist("users", "role"),
			DDL: []string{
				`ALTER TABLE users ADD COLUMN IF NOT EXISTS role user_role NOT NULL DEFAULT 'MEMBER'`,
				`UPDATE users u SET role = 'OWNER'
				WHERE u.id IN (SELECT DISTINCT ON (tenant_id) id FROM users ORDER BY tenant_id, created_at)
				AND NOT EXISTS (SELECT 1 FROM users o WHERE o.tenant_id = u.tenant_id AND o.role = 'OWNER')`,
			},
		},
		{
			Name:   "deals.client_id",
			Exists: columnsExist("deals", "client_id"),
			DDL:    []string{`ALTER TABLE deals ADD COLUMN IF NOT EXISTS client_id UUID REFERENCES clients(id) ON DELETE SET NULL`},
		},
		{
			Name:   "deals.owner_id",
			Exists: columnsExist("deals", "owner_id"),
			DDL: []string{
				`ALTER TABLE deals ADD COLUMN IF NOT EXISTS owner_id UUID REFERENCES users(id) ON DELETE SET NULL`,
				`CREATE INDEX IF NOT EXISTS idx_deals_owner ON deals(tenant_id, owner_id)`,
			},
		},
		{
			Name:   "deals.proposal_file_path",
			Exists: columnsExist("deals", "proposal_file_path"),
			DDL:    []string{`ALTER TABLE deals ADD COLUMN IF NOT EXISTS proposal_file_path TEXT`},
		},
		{
			Name:   "products",
			Exists: tableExists("products"),
			DDL: []string{
				`CREATE TABLE IF NOT EXISTS products (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					sku VARCHAR(100),
					price NUMERIC(14,2) NOT NULL DEFAULT 0,
					currency VARCHAR(3) NOT NULL DEFAULT 'USD',
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					CONSTRAINT products_sku_key UNIQUE (tenant_id, sku))`,
				`CREATE INDEX IF NOT EXISTS idx_products_tenant ON products(tenant_id)`,
			},
		},
		{
			Name:   "deal_items",
			Exists: tableExists("deal_items"),
			DDL: []string{
				`CREATE TABLE IF NOT EXISTS deal_items (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					deal_id UUID NOT NULL REFERENCES deals(id) ON DELETE CASCADE,
					product_id UUID NOT NULL REFERENCES products(id),
					quantity INTEGER NOT NULL DEFAULT 1,
					unit_price NUMERIC(14,2) NOT NULL DEFAULT 0,
					CONSTRAINT deal_items_quantity_check CHECK (quantity >= 1))`,
				`CREATE INDEX IF NOT EXISTS idx_deal_items_deal ON deal_items(tenant_id, deal_id)`,
				`CREATE INDEX IF NOT EXISTS idx_deal_items_product ON deal_items(product_id)`,
			},
		},
		{
			Name:   "clients.profile",
			Exists: columnsExist("clients", clientProfileColumns...),
			DDL: []string{
				`ALTER TABLE clients ADD COLUMN IF NOT EXISTS phone VARCHAR(50)`,
				`ALTER TABLE clients ADD COLUMN IF NOT EXISTS website VARCHAR(255)`,
				`ALTER TABLE clients ADD COLUMN IF NOT EXISTS address TEXT`,
				`ALTER TABLE clients ADD COLUMN IF NOT EXISTS notes TEXT`,
			},
		},
		{
			Name:   "subscriptions",
			Exists: tableExists("subscriptions"),
			DDL: []string{
				`CREATE TABLE IF NOT EXISTS subscriptions (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					plan VARCHAR(50) NOT NULL DEFAULT 'free',
					status VARCHAR(20) NOT NULL DEFAULT 'active',
					current_period_end TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					CONSTRAINT subscriptions_tenant_key UNIQUE (tenant_id))`,
			},
		},
		{
			Name:   "tenants.settings",
			Exists: columnsExist("tenants", tenantSettingsColumns...),
			DDL: []string{
				`ALTER TABLE tenants ADD COLUMN IF NOT EXISTS logo_url TEXT`,
				`ALTER TABLE tenants ADD COLUMN IF NOT EXISTS primary_color VARCHAR(7)`,
				`ALTER TABLE tenants ADD COLUMN IF NOT EXISTS default_pipeline_id UUID REFERENCES pipelines(id) ON DELETE SET NULL`,
				`ALTER TABLE tenants ADD COLUMN IF NOT EXISTS default_currency VARCHAR(3)`,
			},
		},
	}
}
