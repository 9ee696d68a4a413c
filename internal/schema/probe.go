// Package schema detects and repairs gaps between the live database and the
// columns and tables the CRM code can use.
package schema

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/cache"
	"github.com/brightdesk/crm-backend/pkg/database"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/metrics"
)

const (
	probeColumnsQuery = `SELECT table_name, column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = ANY($1) AND column_name = ANY($2)`

	probeTablesQuery = `SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = ANY($1)`
)

var (
	clientProfileColumns  = []string{"phone", "website", "address", "notes"}
	tenantSettingsColumns = []string{"logo_url", "primary_color", "default_pipeline_id", "default_currency"}
)

// Probe reports which optional schema elements exist. Results are cached
// for the configured TTL and concurrent refreshes share one catalog round trip.
type Probe struct {
	db     *database.DB
	cache  *cache.TTL[domain.Caps]
	logger *logger.Logger
}

// NewProbe creates a capability probe with the given cache window.
func NewProbe(db *database.DB, ttl time.Duration, log *logger.Logger) *Probe {
	p := &Probe{
		db:     db,
		logger: log.WithComponent("schema_probe"),
	}
	p.cache = cache.NewTTL(ttl, p.load)
	return p
}

// Caps returns the cached capability set, probing the catalog when stale.
func (p *Probe) Caps(ctx context.Context) (domain.Caps, error) {
	return p.cache.Get(ctx)
}

// Invalidate forces the next Caps call to re-probe.
func (p *Probe) Invalidate() {
	p.cache.Invalidate()
}

func (p *Probe) load(ctx context.Context) (domain.Caps, error) {
	caps, err := p.query(ctx)
	if err != nil {
		metrics.SchemaProbeTotal.WithLabelValues(metrics.ResultError).Inc()
		return domain.Caps{}, err
	}
	metrics.SchemaProbeTotal.WithLabelValues(metrics.ResultOK).Inc()

	if caps != domain.AllCaps() {
		p.logger.Warn().Interface("caps", caps).Msg("database schema is behind, optional features disabled")
	}
	return caps, nil
}

func (p *Probe) query(ctx context.Context) (domain.Caps, error) {
	var cols []struct {
		Table  string `db:"table_name"`
		Column string `db:"column_name"`
	}
	tables := []string{"users", "deals", "clients", "tenants"}
	names := append([]string{"role", "client_id", "owner_id", "proposal_file_path"}, clientProfileColumns...)
	names = append(names, tenantSettingsColumns...)

	if err := p.db.SelectContext(ctx, &cols, probeColumnsQuery, pq.Array(tables), pq.Array(names)); err != nil {
		return domain.Caps{}, fmt.Errorf("failed to probe columns: %w", err)
	}

	var found []string
	if err := p.db.SelectContext(ctx, &found, probeTablesQuery, pq.Array([]string{"products", "deal_items", "subscriptions"})); err != nil {
		return domain.Caps{}, fmt.Errorf("failed to probe tables: %w", err)
	}

	has := make(map[string]bool, len(cols)+len(found))
	for _, c := range cols {
		has[c.Table+"."+c.Column] = true
	}
	for _, t := range found {
		has[t] = true
	}

	return domain.Caps{
		HasClientID:         has["deals.client_id"],
		HasOwnerID:          has["deals.owner_id"],
		HasProductTables:    has["products"] && has["deal_items"],
		HasProposalFilePath: has["deals.proposal_file_path"],
		HasUserRole:         has["users.role"],
		HasClientProfile:    hasAll(has, "clients", clientProfileColumns),
		HasSubscriptions:    has["subscriptions"],
		HasTenantSettings:   hasAll(has, "tenants", tenantSettingsColumns),
	}, nil
}

func hasAll(has map[string]bool, table string, columns []string) bool {
	for _, c := range columns {
		if !has[table+"."+c] {
			return false
		}
	}
	return true
}
