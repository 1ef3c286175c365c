// Package metrics provides Prometheus metrics for PatchWatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "patchwatch"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks concurrent HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)
)

// Ingestion metrics
var (
	// EventsIngestedTotal counts events that produced or refreshed an alert.
	EventsIngestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "ingested_total",
			Help:      "Total events accepted into the pipeline",
		},
	)

	// EventsDroppedTotal counts events dropped at a gate.
	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Total events dropped before alert creation",
		},
		[]string{"reason"}, // global_disabled, type_disabled
	)

	// AlertsCreatedTotal counts newly created alerts.
	AlertsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "created_total",
			Help:      "Total alerts created",
		},
	)

	// AlertsDedupedTotal counts events folded into an existing open alert.
	AlertsDedupedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "deduped_total",
			Help:      "Total events merged into an existing open alert",
		},
	)

	// AlertActionsTotal counts recorded lifecycle actions.
	AlertActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "actions_total",
			Help:      "Total recorded alert actions",
		},
		[]string{"action"},
	)
)

// Dispatch metrics
var (
	// DispatchAttemptsTotal counts delivery attempts by channel kind and outcome.
	DispatchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "attempts_total",
			Help:      "Total notification delivery attempts",
		},
		[]string{"kind", "status"}, // sent, failed
	)

	// DispatchDuration tracks per-channel send latency.
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Notification send latency in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)

	// DispatchRateLimitedTotal counts notifications shed by the rate limiter.
	DispatchRateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "rate_limited_total",
			Help:      "Total notifications dropped by the dispatch rate limiter",
		},
	)
)

// Cleanup metrics
var (
	// CleanupDeletedTotal counts alerts deleted by retention.
	CleanupDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "deleted_total",
			Help:      "Total alerts deleted by retention cleanup",
		},
	)

	// CleanupAutoResolvedTotal counts alerts auto-resolved by the scheduler.
	CleanupAutoResolvedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "auto_resolved_total",
			Help:      "Total alerts auto-resolved by the scheduler",
		},
	)

	// CleanupEscalatedTotal counts alerts escalated by the scheduler.
	CleanupEscalatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "escalated_total",
			Help:      "Total alerts escalated by the scheduler",
		},
	)

	// CleanupHistoryDeletedTotal counts delivery history rows deleted by retention.
	CleanupHistoryDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "history_deleted_total",
			Help:      "Total delivery history rows deleted by retention cleanup",
		},
	)

	// CleanupErrors counts failed cleanup steps.
	CleanupErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "errors_total",
			Help:      "Total cleanup step errors",
		},
		[]string{"step"}, // auto_resolve, escalate, delete, history_delete
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
