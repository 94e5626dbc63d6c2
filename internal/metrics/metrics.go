package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backend metrics
	BackendInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartsearch_backend_invocations_total",
			Help: "Backend invocations by terminal status",
		},
		[]string{"backend", "status"},
	)

	BackendAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartsearch_backend_attempts_total",
			Help: "Individual backend call attempts by outcome",
		},
		[]string{"backend", "outcome"},
	)

	BackendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartsearch_backend_latency_seconds",
			Help:    "Wall-clock time from dispatch to terminal state per backend",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"backend"},
	)

	BackendEvidenceItems = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartsearch_backend_evidence_items",
			Help:    "Evidence items returned per successful invocation",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"backend"},
	)

	// Research pipeline metrics
	ResearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartsearch_research_requests_total",
			Help: "Research requests by outcome",
		},
		[]string{"outcome"},
	)

	ResearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smartsearch_research_duration_seconds",
			Help:    "End-to-end research latency",
			Buckets: prometheus.DefBuckets,
		},
	)

	RoutedIntents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartsearch_routed_intents_total",
			Help: "Intents detected by the router",
		},
		[]string{"intent"},
	)

	EvidenceGroups = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smartsearch_evidence_groups",
			Help:    "Dedup groups produced per query",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	Contradictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartsearch_contradictions_total",
			Help: "Evidence groups flagged as contradictory",
		},
	)

	SynthesisFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartsearch_synthesis_fallbacks_total",
			Help: "Answers composed by the extractive fallback",
		},
		[]string{"reason"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartsearch_http_requests_total",
			Help: "HTTP requests by method and status class",
		},
		[]string{"method", "status"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartsearch_http_rate_limited_total",
			Help: "HTTP requests rejected by the per-client rate limiter",
		},
	)
)
