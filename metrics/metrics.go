package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Model invocation
	ModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lavraseats_model_calls_total",
			Help: "Model invocations by model and result",
		},
		[]string{"model", "result"}, // "ok", "error", "rejected"
	)

	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lavraseats_model_call_duration_seconds",
			Help:    "Duration of a single model round-trip",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"model"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lavraseats_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	// Pipeline outcomes
	ScoringOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lavraseats_scoring_outcomes_total",
			Help: "Sentiment scoring results by outcome",
		},
		[]string{"outcome"},
	)

	RecommendationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lavraseats_recommendation_outcomes_total",
			Help: "Recommendation results by outcome",
		},
		[]string{"outcome"},
	)

	ReviewsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lavraseats_reviews_stored_total",
			Help: "Stored reviews by sentiment",
		},
		[]string{"sentiment"},
	)

	Embeddings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lavraseats_embeddings_total",
			Help: "Embedding updates by table and result",
		},
		[]string{"table", "result"},
	)

	// Pipeline plumbing
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lavraseats_deliveries_total",
			Help: "JetStream deliveries settled by worker pools, by pool and outcome",
		},
		[]string{"pool", "outcome"}, // "ack", "nak", "settle_failed", "dropped"
	)

	CDCChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lavraseats_cdc_changes_total",
			Help: "Replicated row changes by table and result",
		},
		[]string{"table", "result"}, // "published", "skipped", "failed"
	)

	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lavraseats_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	LiveFeedConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lavraseats_live_feed_connections",
			Help: "Open websocket connections on the live review feed",
		},
	)
)

func RecordModelCall(model, result string, took time.Duration) {
	ModelCalls.WithLabelValues(model, result).Inc()
	if result != "rejected" {
		ModelCallDuration.WithLabelValues(model).Observe(took.Seconds())
	}
}

func RecordHTTPRequest(method, route string, status int, took time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(took.Seconds())
}
