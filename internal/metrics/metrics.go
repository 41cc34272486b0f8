// Package metrics exposes the Prometheus collectors the Lifecycle
// Engine, the reverification jobs and the application's pool loop
// report through. Grounded on the
// teacher's metrics call site (internal/app/application.go:
// `metrics.DatabaseConnectionsGauge.WithLabelValues(...).Set(...)`)
// generalized from connection-pool gauges to this domain's
// engine/breaker counters, using the teacher's declared
// prometheus/client_golang dependency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseConnectionsGauge mirrors the teacher's own gauge shape
	// (state label: open/idle/in_use), kept for the same connection-pool
	// reporting loop in internal/app.
	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procguard",
		Name:      "database_connections",
		Help:      "Database connection pool stats by state.",
	}, []string{"state"})

	// LifecycleTransitionsTotal counts every Lifecycle Engine outcome,
	// labeled by the admitted event and whether it succeeded or was
	// denied.
	LifecycleTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procguard",
		Name:      "lifecycle_transitions_total",
		Help:      "Count of lifecycle transition attempts by event and outcome.",
	}, []string{"event", "outcome"})

	// ViolationsTotal counts denials by the rule that fired.
	ViolationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procguard",
		Name:      "violations_total",
		Help:      "Count of invariant violations by rule code.",
	}, []string{"rule_code"})

	// BreakerStateGauge is labeled for a resilience endpoint/track's
	// state (0=closed, 1=half_open, 2=open). internal/resilience does
	// not set it; no code in this module writes to it.
	BreakerStateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procguard",
		Name:      "breaker_state",
		Help:      "Current circuit breaker state by endpoint and track.",
	}, []string{"endpoint", "track"})

	// EvidenceVerificationsTotal counts evidence chain verifications by
	// resulting level.
	EvidenceVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procguard",
		Name:      "evidence_verifications_total",
		Help:      "Count of evidence chain verifications by resulting level.",
	}, []string{"level"})
)
