// Package metrics provides Prometheus metrics for the CRM API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crm"

var (
	// HTTPRequestsTotal tracks inbound requests by route pattern
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks inbound request latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// SchemaProbeTotal counts capability catalog queries (cache misses only)
	SchemaProbeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_probe_total",
			Help:      "Schema capability probes by result",
		},
		[]string{"result"},
	)

	// FXFetchTotal counts exchange-rate provider fetches
	FXFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fx_fetch_total",
			Help:      "FX snapshot fetches by result",
		},
		[]string{"result"},
	)

	// SchemaUpgradeStepsTotal counts upgrader steps by outcome
	SchemaUpgradeStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_upgrade_steps_total",
			Help:      "Schema upgrade steps by step and result",
		},
		[]string{"step", "result"},
	)

	// VisibilityDegradedTotal counts member reads served without owner filtering
	// because the owner column does not exist yet
	VisibilityDegradedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visibility_degraded_total",
			Help:      "Member deal reads that could not be restricted to owned deals",
		},
	)

	// RoleFallbackTotal counts role lookups answered by the configured fallback
	RoleFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_fallback_total",
			Help:      "Role resolutions that used the schema-drift fallback role",
		},
	)

	// AIRequestsTotal counts text generation calls by kind and result
	AIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_requests_total",
			Help:      "Text generation requests by kind and result",
		},
		[]string{"kind", "result"},
	)
)

// Result labels
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultApplied  = "applied"
	ResultSkipped  = "skipped"
	ResultFailed   = "failed"
	ResultShared   = "shared"
	ResultFallback = "fallback"
	ResultLimited  = "limited"
)

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
