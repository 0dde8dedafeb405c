// Package app provides application initialization and dependency wiring.
//
// App is the container that builds the store, provider, and pipeline
// components from configuration and owns their lifecycle.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/concierge-ai/concierge/internal/config"
	"github.com/concierge-ai/concierge/internal/conversation"
	"github.com/concierge-ai/concierge/internal/database"
	"github.com/concierge-ai/concierge/internal/embed"
	"github.com/concierge-ai/concierge/internal/generate"
	"github.com/concierge-ai/concierge/internal/log"
	"github.com/concierge-ai/concierge/internal/observability"
	"github.com/concierge-ai/concierge/internal/profile"
	"github.com/concierge-ai/concierge/internal/rag"
	"github.com/concierge-ai/concierge/internal/vector"
)

// completionsPerSecond bounds outbound Ollama generation calls so a
// burst of requests cannot pile up on the model server.
const completionsPerSecond = 1

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	// Stores
	DB       *sql.DB
	Profiles *profile.Store
	Log      *conversation.Log
	Index    vector.Index

	// Providers
	Embedder  *embed.Ollama
	Completer *generate.Ollama

	// Pipeline
	Orchestrator *rag.Orchestrator
	Metrics      *observability.Metrics
}

// Setup builds all application components from cfg.
// The returned App must be closed with Close.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	index, err := newIndex(ctx, cfg, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	// Instruments register on the process-wide default registry; create
	// them only after the fallible steps.
	metrics := observability.NewMetrics(nil)

	embedder := embed.NewOllama(embed.OllamaConfig{
		Host:       cfg.OllamaHost,
		Model:      cfg.EmbedModel,
		Dimensions: cfg.EmbedDimensions,
		Logger:     logger,
		Metrics:    metrics,
	})

	completer := generate.NewOllama(generate.OllamaConfig{
		Host:  cfg.OllamaHost,
		Model: cfg.CompletionModel,
		Options: generate.Options{
			NumPredict:  cfg.NumPredict,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			TopK:        cfg.TopK,
			NumCtx:      cfg.NumCtx,
		},
		Limiter: rate.NewLimiter(rate.Every(time.Second/completionsPerSecond), 2),
		Logger:  logger,
	})

	a := &App{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Profiles:  profile.New(db, logger),
		Log:       conversation.New(db, logger),
		Index:     index,
		Embedder:  embedder,
		Completer: completer,
		Metrics:   metrics,
	}

	a.Orchestrator, err = rag.New(rag.Config{
		Profiles:   a.Profiles,
		Log:        a.Log,
		Index:      a.Index,
		Embedder:   a.Embedder,
		Completer:  a.Completer,
		MaxResults: cfg.MaxResults,
		Logger:     logger,
		Metrics:    metrics,
	})
	if err != nil {
		a.closeStores()
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	return a, nil
}

// newIndex builds the configured vector index backend.
func newIndex(ctx context.Context, cfg *config.Config, logger log.Logger) (vector.Index, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendChroma:
		idx, err := vector.NewChroma(ctx, vector.ChromaConfig{
			BaseURL:    cfg.ChromaURL,
			Collection: cfg.ChromaCollection,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to chroma: %w", err)
		}
		return idx, nil
	case config.VectorBackendPgvector:
		idx, err := vector.NewPgvector(ctx, cfg.PostgresURL, cfg.EmbedDimensions, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to pgvector: %w", err)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidVectorBackend, cfg.VectorBackend)
	}
}

// Warmup primes the completion model in the background so the first
// request does not pay the model load cost. Best effort.
func (a *App) Warmup(ctx context.Context) {
	a.Completer.Warmup(ctx)
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")
	return a.closeStores()
}

func (a *App) closeStores() error {
	if p, ok := a.Index.(*vector.Pgvector); ok && p != nil {
		p.Close()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			return fmt.Errorf("closing database: %w", err)
		}
	}
	return nil
}
