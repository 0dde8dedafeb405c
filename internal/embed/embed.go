// Package embed turns text into fixed-length vectors via a local
// Ollama embeddings endpoint.
//
// The provider degrades per item: a text whose embedding call fails is
// represented by the zero vector of the declared dimensionality so one
// bad item never aborts a batch. The trade is retrieval quality for
// availability; a zero vector still participates in similarity search
// as a near-orthogonal point.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/concierge-ai/concierge/internal/observability"
)

// Embedder generates one vector per input text, in input order, each
// of length Dimensions().
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// defaultTimeout caps a single embedding call.
const defaultTimeout = 30 * time.Second

// Ollama calls the Ollama /api/embeddings endpoint.
//
// Ollama is safe for concurrent use by multiple goroutines.
type Ollama struct {
	host    string
	model   string
	dims    int
	client  *http.Client
	logger  *slog.Logger
	metrics *observability.Metrics
}

// OllamaConfig contains the parameters for an Ollama embedder.
type OllamaConfig struct {
	// Host is the Ollama base URL, e.g. http://localhost:11434.
	Host string
	// Model is the embedding model name, e.g. nomic-embed-text.
	Model string
	// Dimensions is the model's declared output dimensionality.
	Dimensions int
	// HTTPClient overrides the default client (nil = 30s timeout client).
	HTTPClient *http.Client
	// Logger for fallback warnings (nil = slog.Default()).
	Logger *slog.Logger
	// Metrics counts degraded embeddings (nil = not counted).
	Metrics *observability.Metrics
}

// NewOllama creates an Ollama embedder.
func NewOllama(cfg OllamaConfig) *Ollama {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ollama{
		host:    cfg.Host,
		model:   cfg.Model,
		dims:    cfg.Dimensions,
		client:  client,
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

// Dimensions returns the declared vector length.
func (o *Ollama) Dimensions() int {
	return o.dims
}

// Embed returns exactly one vector per text, in order. A failed item
// is logged, counted, and replaced with the zero vector; the batch
// itself never fails. Context cancellation is honored between items.
func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vec, err := o.embedOne(ctx, text)
		if err != nil {
			o.logger.Warn("embedding generation failed, using zero vector", "error", err)
			if o.metrics != nil {
				o.metrics.EmbeddingFallbacks.Inc()
			}
			vec = make([]float32, o.dims)
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

// embedRequest is the Ollama /api/embeddings request body.
type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// embedResponse is the Ollama /api/embeddings response body.
type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (o *Ollama) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling embeddings endpoint: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings endpoint returned HTTP %d", resp.StatusCode)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}

	return out.Embedding, nil
}
