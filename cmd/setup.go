package cmd

import (
	"context"
	"fmt"

	"github.com/concierge-ai/concierge/internal/app"
	"github.com/concierge-ai/concierge/internal/config"
	"github.com/concierge-ai/concierge/internal/log"
)

// setup loads configuration and builds the application container.
// Every subcommand that touches the stores or providers goes through
// here so they all share the same wiring.
func setup(ctx context.Context) (*app.App, log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("validating config: %w", err)
	}

	logger := log.New(log.Config{
		Level: cfg.SlogLevel(),
		JSON:  cfg.LogJSON,
	})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing application: %w", err)
	}
	return a, logger, nil
}
