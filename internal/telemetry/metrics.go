/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mixtape"

// HTTP API
var (
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "HTTP request latency by method, route pattern and status.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "HTTP requests by method, route pattern and status.",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "api_active_connections",
		Help:      "In-flight HTTP requests.",
	})

	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_connections",
		Help:      "Open event stream websocket connections.",
	})
)

// Database
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "database_query_duration_seconds",
			Help:      "Database operation latency by operation and table.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DatabaseErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_errors_total",
			Help:      "Failed database operations.",
		},
		[]string{"operation"},
	)
)

// Recommendation pipeline
var (
	// RecommendationRequestsTotal labels: outcome = ok | empty | unavailable | fault.
	RecommendationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendation_requests_total",
			Help:      "Recommendation calls by outcome.",
		},
		[]string{"outcome"},
	)

	RecommendationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "recommendation_duration_seconds",
		Help:      "End to end latency of one recommendation call.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	CandidatesScoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "candidates_scored_total",
		Help:      "Tracks scored across all recommendation calls.",
	})

	ScoringFaultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scoring_faults_total",
		Help:      "Candidates that failed to score and were assigned zero.",
	})

	CatalogCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_cache_total",
			Help:      "Catalog snapshot cache lookups by result (hit, miss, error).",
		},
		[]string{"result"},
	)
)

// Preference ledger
var (
	LedgerEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_events_total",
			Help:      "Ledger mutations by event (played, skipped, completed, replayed, recommended, set_score, reset, mood).",
		},
		[]string{"event"},
	)

	LedgerPersistFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_persist_failures_total",
			Help:      "Ledger load or save failures; in-memory state stays authoritative.",
		},
		[]string{"op"},
	)

	LedgerPersistDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_persist_duration_seconds",
			Help:      "Ledger save latency by backend.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"backend"},
	)

	LedgerTrackedTracks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ledger_tracked_tracks",
		Help:      "Tracks with a learned score.",
	})
)

// Autoplay
var (
	// AutoplayChecksTotal labels: result = noop | extended | fallback | empty | dropped | discarded.
	AutoplayChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autoplay_checks_total",
			Help:      "Continue checks by result.",
		},
		[]string{"result"},
	)

	AutoplayTracksAddedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autoplay_tracks_added_total",
			Help:      "Tracks appended to the live queue by source (recommended, fallback).",
		},
		[]string{"source"},
	)

	AutoplayFilteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autoplay_filtered_total",
			Help:      "Recommended tracks dropped by the local re-filter, by reason.",
		},
		[]string{"reason"},
	)

	AutoplayQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "autoplay_queue_length",
		Help:      "Tracks in the live queue.",
	})
)

// Event bus
var (
	EventBusPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eventbus_published_total",
			Help:      "Events published by backend and event type.",
		},
		[]string{"backend", "event"},
	)

	EventBusErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eventbus_errors_total",
			Help:      "Event bus publish or decode errors by backend.",
		},
		[]string{"backend"},
	)

	EventBusDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eventbus_dropped_total",
			Help:      "Events not delivered to a local subscriber because its buffer was full.",
		},
		[]string{"event"},
	)
)

// Handler exposes metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
