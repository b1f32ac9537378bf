// Package metrics holds the Prometheus collectors of the soup service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SoupRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soup_requests_total",
			Help: "Soup requests by sort method and outcome",
		},
		[]string{"sort", "outcome"},
	)

	SoupQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soup_query_duration_seconds",
			Help:    "Duration of soup repository operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	SoupDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soup_degraded_total",
			Help: "Frecency soups served by updated_at because the scorer was unavailable",
		},
	)

	FrecencyEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frecency_events_total",
			Help: "Tracking events by outcome (stored, buffered, rejected, failed)",
		},
		[]string{"outcome"},
	)

	FrecencyUpsertRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "frecency_upsert_retries_total",
			Help: "Optimistic aggregate upserts retried after a concurrent write",
		},
	)

	// FrecencyBreakerState is 0 closed, 1 half-open, 2 open.
	FrecencyBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "frecency_breaker_state",
			Help: "State of the frecency storage circuit breaker",
		},
		[]string{"name"},
	)

	RankingCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_cache_requests_total",
			Help: "Ranking cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	BufferedEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracking_buffer_size",
			Help: "Tracking events waiting in the offline buffer",
		},
	)
)

// ObserveQuery records the duration of a repository operation started at start.
func ObserveQuery(operation string, start time.Time) {
	SoupQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
