// Package metrics holds the Prometheus registry for the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for swapd.
type Registry struct {
	// HTTP surface
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec

	// Cache performance
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Matching and search
	MatchesComputed  prometheus.Counter
	SearchesServed   *prometheus.CounterVec
	EmbeddingCalls   *prometheus.CounterVec
	VectorIndexCalls *prometheus.CounterVec

	// Lifecycle and economy
	SwapTransitions *prometheus.CounterVec
	Settlements     *prometheus.CounterVec
	PointsAwarded   prometheus.Counter
	CreditsAwarded  prometheus.Counter

	// Background work
	SweepRuns      prometheus.Counter
	SweepFinalized prometheus.Counter

	// Notifications
	EmailsSent *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers the swapd metrics.
func New() *Registry {
	r := &Registry{
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swapd_http_request_duration_seconds",
				Help:    "Duration of HTTP requests by route and status",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"route", "method", "status"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapd_http_requests_total",
				Help: "Total HTTP requests by route and status",
			},
			[]string{"route", "method", "status"},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapd_cache_hits_total",
				Help: "Cache hits by key prefix",
			},
			[]string{"prefix"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapd_cache_misses_total",
				Help: "Cache misses by key prefix",
			},
			[]string{"prefix"},
		),
		MatchesComputed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "swapd_reciprocal_matches_total",
				Help: "Reciprocal match computations served",
			},
		),
		SearchesServed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapd_searches_total",
				Help: "Semantic searches by mode",
			},
			[]string{"mode"},
		),
		EmbeddingCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapd_embedding_calls_total",
				Help: "Embedding provider calls by result",
			},
			[]string{"result"},
		),
		VectorIndexCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapd_vector_index_calls_total",
				Help: "Vector index calls by operation and result",
			},
			[]string{"op", "result"},
		),
		SwapTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapd_swap_transitions_total",
				Help: "Swap request state transitions",
			},
			[]string{"to"},
		),
		Settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapd_settlements_total",
				Help: "Completed swap settlements by swap type",
			},
			[]string{"swap_type"},
		),
		PointsAwarded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "swapd_points_awarded_total",
				Help: "Points awarded across all settlements",
			},
		),
		CreditsAwarded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "swapd_credits_awarded_total",
				Help: "Credits awarded across all settlements",
			},
		),
		SweepRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "swapd_autocomplete_sweeps_total",
				Help: "Auto-complete sweep executions",
			},
		),
		SweepFinalized: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "swapd_autocomplete_finalized_total",
				Help: "Swaps finalized by the auto-complete sweep",
			},
		),
		EmailsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapd_emails_sent_total",
				Help: "Notification emails by kind",
			},
			[]string{"kind"},
		),
		registry: prometheus.NewRegistry(),
	}

	r.registry.MustRegister(
		r.RequestDuration, r.RequestsTotal,
		r.CacheHits, r.CacheMisses,
		r.MatchesComputed, r.SearchesServed, r.EmbeddingCalls, r.VectorIndexCalls,
		r.SwapTransitions, r.Settlements, r.PointsAwarded, r.CreditsAwarded,
		r.SweepRuns, r.SweepFinalized,
		r.EmailsSent,
	)
	return r
}

// Handler serves the exposition endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one served HTTP request.
func (r *Registry) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	r.RequestDuration.WithLabelValues(route, method, code).Observe(elapsed.Seconds())
	r.RequestsTotal.WithLabelValues(route, method, code).Inc()
}
