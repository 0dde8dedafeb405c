package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/concierge-ai/concierge/api"
	"github.com/concierge-ai/concierge/internal/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes and starts the HTTP API server.
func runServe(parent context.Context) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Endpoint:    a.Config.OTLPEndpoint,
		Environment: a.Config.Environment,
		ServiceName: "concierge",
	}, logger)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		if shutdownErr := shutdownTracing(context.Background()); shutdownErr != nil {
			logger.Warn("tracing shutdown error", "error", shutdownErr)
		}
	}()

	// Load the completion model before the first request arrives.
	go a.Warmup(ctx)

	srv := api.NewServer(a.Orchestrator, a.Profiles, a.Log, a.DB, logger)

	logger.Info("HTTP server ready",
		"addr", a.Config.ServerAddr,
		"api", "/api/*",
		"health", "/health, /ready",
	)
	return srv.Run(ctx, a.Config.ServerAddr)
}
