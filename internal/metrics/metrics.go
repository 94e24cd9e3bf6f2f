// Package metrics exposes Prometheus instrumentation for the control
// engine and the telemetry gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StatusChanges counts committed actuator transitions by target
	// status.
	StatusChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farmctl_actuator_status_changes_total",
		Help: "Committed actuator status transitions, by target status.",
	}, []string{"status"})

	// ConsumedUnits accumulates resource units drawn through
	// consumption accounting.
	ConsumedUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farmctl_resource_consumed_units_total",
		Help: "Resource units consumed by actuator activity.",
	})

	// TelemetrySyncFailures counts best-effort pushes to the remote
	// platform that failed after retries.
	TelemetrySyncFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farmctl_telemetry_sync_failures_total",
		Help: "Failed telemetry pushes to the remote platform.",
	})

	// ReconcileCycles counts completed background reconciliation
	// sweeps.
	ReconcileCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farmctl_reconcile_cycles_total",
		Help: "Completed consumption reconciliation sweeps.",
	})
)
