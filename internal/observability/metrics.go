// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the assist pipeline.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for assist requests.
const (
	OutcomeOK             = "ok"
	OutcomeUnknownUser    = "unknown_user"
	OutcomeProviderError  = "provider_error"
	OutcomePartialPersist = "partial_persist"
	OutcomeError          = "error"
)

// Persistence failure kinds.
const (
	PersistPartial = "partial"
	PersistTotal   = "total"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	AssistRequests     *prometheus.CounterVec
	EmbeddingFallbacks prometheus.Counter
	PersistFailures    *prometheus.CounterVec
	AssistDuration     prometheus.Histogram
}

// NewMetrics registers the service instruments on reg.
// A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		AssistRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "assist_requests_total",
			Help:      "Assist requests by outcome.",
		}, []string{"outcome"}),
		EmbeddingFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "embedding_fallbacks_total",
			Help:      "Embeddings degraded to the zero vector after a provider failure.",
		}),
		PersistFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "persist_failures_total",
			Help:      "Turn persistence failures by kind (partial = one of two stores written).",
		}, []string{"kind"}),
		AssistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "concierge",
			Name:      "assist_duration_seconds",
			Help:      "End-to-end assist request duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
	}
}

// MetricsHandler exposes the default registry for the /metrics endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
