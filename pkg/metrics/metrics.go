package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leave_app_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leave_app_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Workflow

	// Transitions counts engine actions by outcome. result is "ok" or the
	// error code the action failed with.
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leave_app_transitions_total",
			Help: "Application workflow actions by action and result",
		},
		[]string{"action", "result"},
	)

	LeaveHoursDeducted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leave_app_hours_deducted_total",
			Help: "Leave hours deducted from balances on final approval",
		},
	)

	TransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leave_app_tx_duration_seconds",
			Help:    "Unit of work duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)

	// Template cache

	TemplateCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leave_app_template_cache_lookups_total",
			Help: "Template cache lookups by result (hit, miss, error)",
		},
		[]string{"kind", "result"},
	)
)
