// Package api provides the HTTP REST API for the assistant backend.
//
// Endpoints:
//
//	GET  /health                       liveness probe
//	GET  /ready                        readiness probe (database ping)
//	GET  /metrics                      Prometheus metrics
//	POST /api/users                    register a user profile
//	GET  /api/users/{id}               fetch a stored profile
//	GET  /api/users/{id}/history       full conversation history
//	GET  /api/users/{id}/consistency   log/index consistency audit
//	POST /api/assist                   run one query through the pipeline
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - health.go: Health check endpoints (/health, /ready)
//   - users.go: Profile registration and history endpoints
//   - assist.go: Assist pipeline and consistency endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/concierge-ai/concierge/internal/log"
	"github.com/concierge-ai/concierge/internal/observability"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:3500"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout = 60 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the assistant's REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	// Handlers
	health *HealthHandler
	users  *UserHandler
	assist *AssistHandler
}

// NewServer creates a new HTTP server with all routes registered.
// assistant may be nil, which disables the assist endpoints; store may
// be nil, which disables the user endpoints. db is used for readiness
// checks only.
func NewServer(assistant Assistant, store Registrar, history Historian, db *sql.DB, logger log.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	s := &Server{
		mux:    mux,
		logger: logger,
		health: NewHealthHandler(db, logger),
	}
	s.health.RegisterRoutes(mux)

	if store != nil {
		s.users = NewUserHandler(store, history, logger)
		s.users.RegisterRoutes(mux)
	}
	if assistant != nil {
		s.assist = NewAssistHandler(assistant, logger)
		s.assist.RegisterRoutes(mux)
	}

	mux.Handle("GET /metrics", observability.MetricsHandler())

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
