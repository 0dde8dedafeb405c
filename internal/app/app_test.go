package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concierge-ai/concierge/internal/config"
	"github.com/concierge-ai/concierge/internal/log"
)

// fakeChromaServer answers the collection get-or-create call so Setup
// can complete without a running Chroma instance.
func fakeChromaServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/collections", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "col-1", "name": "user_context"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DatabasePath:     filepath.Join(t.TempDir(), "test.db"),
		OllamaHost:       "http://localhost:11434",
		CompletionModel:  "mistral:7b-instruct-q4_K_M",
		EmbedModel:       "nomic-embed-text",
		EmbedDimensions:  config.DefaultEmbedDimensions,
		VectorBackend:    config.VectorBackendChroma,
		ChromaCollection: "user_context",
		MaxResults:       5,
	}
}

func TestSetup_Chroma(t *testing.T) {
	chroma := fakeChromaServer(t)
	cfg := testConfig(t)
	cfg.ChromaURL = chroma.URL

	a, err := Setup(context.Background(), cfg, log.NewNop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	assert.NotNil(t, a.Orchestrator)
	assert.NotNil(t, a.Profiles)
	assert.NotNil(t, a.Log)
	assert.NotNil(t, a.Index)
	assert.NotNil(t, a.Metrics)

	// The migrated schema is usable immediately.
	require.NoError(t, a.DB.Ping())
}

func TestSetup_UnknownVectorBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.VectorBackend = "bogus"

	_, err := Setup(context.Background(), cfg, log.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidVectorBackend)
}

func TestSetup_ChromaUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.ChromaURL = "http://127.0.0.1:1"

	_, err := Setup(context.Background(), cfg, log.NewNop())
	require.Error(t, err)
}
