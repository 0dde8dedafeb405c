package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concierge-ai/concierge/internal/log"
)

func TestNewMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.AssistRequests.WithLabelValues(OutcomeOK).Inc()
	m.EmbeddingFallbacks.Inc()
	m.EmbeddingFallbacks.Inc()
	m.PersistFailures.WithLabelValues(PersistPartial).Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssistRequests.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmbeddingFallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures.WithLabelValues(PersistPartial)))
}

func TestSetupTracing_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TracingConfig{}, log.NewNop())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
