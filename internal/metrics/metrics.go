// Package metrics provides Prometheus metrics for Guardrail.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "guardrail"
)

// Matching engine metrics
var (
	// ResultsProcessed counts test results consumed by the engine.
	ResultsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "results_processed_total",
			Help:      "Total test results processed by the matching engine",
		},
	)

	// AlertsFired counts alerts created, by alert severity.
	AlertsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "alerts_fired_total",
			Help:      "Total alerts fired by the matching engine",
		},
		[]string{"severity"},
	)

	// FiringsSuppressed counts firings suppressed by cooldown, by rule.
	FiringsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "firings_suppressed_total",
			Help:      "Total rule firings suppressed by the cooldown window",
		},
		[]string{"rule_id"},
	)
)

// Delivery metrics
var (
	// DeliveryAttempts counts delivery attempts by channel and outcome.
	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Total notification delivery attempts",
		},
		[]string{"channel", "outcome"},
	)

	// DeliveryDuration tracks per-channel send latency.
	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "duration_seconds",
			Help:      "Notification send latency in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)

	// DeliveriesInFlight tracks concurrent delivery attempts.
	DeliveriesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "in_flight",
			Help:      "Number of delivery attempts currently in flight",
		},
	)

	// DeliveriesRateLimited counts deliveries dropped by the rate limiter.
	DeliveriesRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "rate_limited_total",
			Help:      "Total deliveries dropped by the notification rate limiter",
		},
	)
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
