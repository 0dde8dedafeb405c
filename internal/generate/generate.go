// Package generate invokes the local Ollama completion endpoint.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ErrUnavailable indicates the completion service was unreachable,
// returned a non-success status, or produced no response text.
var ErrUnavailable = errors.New("completion provider unavailable")

// defaultTimeout caps a single completion call. Local models can be
// slow on first load.
const defaultTimeout = 2 * time.Minute

// Options are the sampling knobs passed through to the provider
// unmodified. Unset knobs are omitted from the request body so the
// provider applies its own defaults (the warmup call sends only
// num_predict).
type Options struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	NumCtx      int     `json:"num_ctx,omitempty"`
}

// Completer produces a completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Ollama calls the Ollama /api/generate endpoint.
//
// Ollama is safe for concurrent use by multiple goroutines.
type Ollama struct {
	host    string
	model   string
	options Options
	limiter *rate.Limiter
	client  *http.Client
	logger  *slog.Logger
}

// OllamaConfig contains the parameters for an Ollama completer.
type OllamaConfig struct {
	// Host is the Ollama base URL, e.g. http://localhost:11434.
	Host string
	// Model is the completion model name.
	Model string
	// Options are the bounded sampling parameters.
	Options Options
	// Limiter proactively rate-limits completion calls (nil = no limit).
	Limiter *rate.Limiter
	// HTTPClient overrides the default client (nil = 2m timeout client).
	HTTPClient *http.Client
	// Logger (nil = slog.Default()).
	Logger *slog.Logger
}

// NewOllama creates an Ollama completer.
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
		options: cfg.Options,
		limiter: cfg.Limiter,
		client:  client,
		logger:  logger,
	}
}

// generateRequest is the Ollama /api/generate request body.
type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options Options `json:"options"`
}

// generateResponse is the Ollama /api/generate response body.
type generateResponse struct {
	Response string `json:"response"`
}

// Complete generates text for the prompt. Any transport or protocol
// failure is reported as ErrUnavailable.
func (o *Ollama) Complete(ctx context.Context, prompt string) (string, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}
	return o.generate(ctx, prompt, o.options)
}

// Warmup issues a best-effort single-token generation so the model is
// resident before the first real request. Failures are logged only.
func (o *Ollama) Warmup(ctx context.Context) {
	start := time.Now()
	_, err := o.generate(ctx, "test", Options{NumPredict: 1})
	if err != nil {
		o.logger.Warn("model warmup failed", "error", err)
		return
	}
	o.logger.Info("model warmed up", "model", o.model, "duration", time.Since(start))
}

func (o *Ollama) generate(ctx context.Context, prompt string, opts Options) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  false,
		Options: opts,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	if out.Response == "" {
		return "", fmt.Errorf("%w: no response text", ErrUnavailable)
	}

	return out.Response, nil
}
