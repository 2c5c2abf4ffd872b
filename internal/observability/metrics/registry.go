// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion metrics track pipeline runs and per-item outcomes
var (
	// IngestRunsTotal counts orchestrator runs by final status
	IngestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_runs_total",
			Help: "Total number of ingestion runs",
		},
		[]string{"status"}, // status: completed, canceled
	)

	// IngestRunDuration measures a full run
	IngestRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_run_duration_seconds",
			Help:    "Duration of an ingestion run in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// IngestPhaseFailuresTotal counts phases that ended in a failed step
	IngestPhaseFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_phase_failures_total",
			Help: "Total number of failed pipeline steps by phase",
		},
		[]string{"phase"},
	)

	// IngestItemsTotal counts items by source kind and outcome
	IngestItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_items_total",
			Help: "Total number of items processed by outcome",
		},
		[]string{"kind", "outcome"},
	)

	// NewsTotal tracks total number of stored news records
	NewsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "news_records_total",
			Help: "Total number of news records in the database",
		},
	)

	// FeedsTotal tracks the number of active feeds
	FeedsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feeds_active_total",
			Help: "Number of active feeds",
		},
	)
)

// AI metrics track calls to chat-completion providers
var (
	// AICallsTotal counts AI calls by task, provider and status
	AICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_calls_total",
			Help: "Total number of AI completion calls",
		},
		[]string{"task", "provider", "status"},
	)

	// AICallDuration measures provider latency
	AICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_call_duration_seconds",
			Help:    "AI completion call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"task", "provider"},
	)

	// AIRepairStepsTotal counts which repair step produced a usable reply
	AIRepairStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_repair_steps_total",
			Help: "Total number of AI replies by repair step",
		},
		[]string{"task", "step"},
	)

	// BreakerOpen is 1 while the named breaker is open
	BreakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_open",
			Help: "Whether the circuit breaker is open (1) or closed (0)",
		},
		[]string{"name"},
	)
)

// Source metrics track feed and search requests
var (
	// FeedFetchDuration measures time to fetch and parse a feed
	FeedFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_fetch_duration_seconds",
			Help:    "Time taken to fetch and parse a feed",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"feed_id"},
	)

	// FeedFetchErrors counts errors during feed fetching
	FeedFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_fetch_errors_total",
			Help: "Total number of feed fetch errors",
		},
		[]string{"feed_id", "error_type"},
	)

	// SearchRequestsTotal counts search API requests by status
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_requests_total",
			Help: "Total number of search API requests",
		},
		[]string{"status"},
	)

	// SearchResultsTotal counts results returned by the search API
	SearchResultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "search_results_total",
			Help: "Total number of search results received",
		},
	)

	// ContentFetchAttemptsTotal counts content fetch attempts by result
	ContentFetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_fetch_attempts_total",
			Help: "Total number of content fetch attempts",
		},
		[]string{"result"}, // result: success, failure, skipped
	)

	// ContentFetchDuration measures time to fetch article content
	ContentFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "content_fetch_duration_seconds",
			Help:    "Time taken to fetch article content",
			Buckets: []float64{0.1, 0.2, 0.4, 0.8, 1.6, 3.2, 6.4, 12.8},
		},
	)
)

// Database metrics track database performance
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)
)
