// Package bootstrap handles application initialization and lifecycle
// management for the rawaudit service.
//
// Serve runs these phases:
//   - Phase 1: Config & Logger - load configuration and create the logger
//   - Phase 2: Storage - PostgreSQL with migrations, or the in-memory store
//   - Phase 3: Events - optional Redis activity stream
//   - Phase 4: Services - metrics, suggestion provider, drafts, orchestrator, sweeper;
//     audits a previous process left queued or running are failed
//   - Phase 5: Server - build and start the HTTP server
//   - Phase 6: Run - wait for a signal or server error, then shut down
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rawinstinctart/rawauditpro/internal/logger"
)

// Options are the command-line overrides applied on top of the config file.
type Options struct {
	ConfigPath string
	Debug      bool
	LogLevel   string
	// InMemory swaps PostgreSQL for the in-memory store.
	InMemory bool
}

// Serve starts the API server and blocks until ctx is cancelled, a signal
// arrives or the server fails.
func Serve(ctx context.Context, opts Options) error {
	// Phase 1: Load config and create logger
	cfg, err := LoadConfig(opts)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := CreateLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// Phase 2: Setup storage
	storage, err := SetupStorage(ctx, cfg, log, opts.InMemory)
	if err != nil {
		return fmt.Errorf("failed to setup storage: %w", err)
	}
	defer storage.Close()

	// Phase 3: Setup activity stream (optional)
	events := SetupActivityStream(ctx, cfg, log)
	defer events.Close()

	// Phase 4: Setup services
	services, err := SetupServices(cfg, storage, events, log)
	if err != nil {
		return fmt.Errorf("failed to setup services: %w", err)
	}
	if _, err = services.Orchestrator.RecoverInterrupted(ctx); err != nil {
		return fmt.Errorf("failed to recover audits: %w", err)
	}

	// Phase 5: Setup and start HTTP server
	srv := SetupHTTPServer(cfg, storage, events, services, log)
	if err = services.Sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}
	errCh := srv.StartAsync()

	log.Info("rawaudit started",
		logger.Int("port", cfg.Service.Port),
		logger.String("storage", storage.Backend),
		logger.Bool("activity_stream", events.Client != nil),
		logger.String("suggest_provider", services.Provider.Name()),
	)

	// Phase 6: Run until interrupt or error
	return RunUntilInterrupt(ctx, log, srv, services, errCh)
}
