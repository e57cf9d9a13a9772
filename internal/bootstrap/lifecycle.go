package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rawinstinctart/rawauditpro/internal/logger"
	"github.com/rawinstinctart/rawauditpro/internal/server"
)

const auditDrainTimeout = 30 * time.Second

// RunUntilInterrupt blocks until ctx ends, SIGINT/SIGTERM arrives or the
// server fails, then shuts everything down.
func RunUntilInterrupt(
	ctx context.Context,
	log logger.Logger,
	srv *server.Server,
	services *ServiceComponents,
	errCh <-chan error,
) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case serverErr, ok := <-errCh:
		if ok && serverErr != nil {
			log.Error("Server error", logger.Error(serverErr))
			services.Sweeper.Stop()
			_ = services.Orchestrator.Shutdown(context.Background())
			return fmt.Errorf("server error: %w", serverErr)
		}
		log.Info("Server exited")
		return Shutdown(log, nil, services)
	case <-sigCtx.Done():
		log.Info("Shutdown signal received")
		return Shutdown(log, srv, services)
	}
}

// Shutdown stops the sweeper, then the HTTP server, then drains running
// audits. Audits still running after the drain timeout are cancelled and
// marked failed.
func Shutdown(log logger.Logger, srv *server.Server, services *ServiceComponents) error {
	log.Info("Stopping auto-apply sweeper")
	services.Sweeper.Stop()

	var errs []error
	if srv != nil {
		log.Info("Stopping HTTP server")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Failed to stop server", logger.Error(err))
			errs = append(errs, err)
		}
	}

	log.Info("Draining audits", logger.Duration("timeout", auditDrainTimeout))
	ctx, cancel := context.WithTimeout(context.Background(), auditDrainTimeout)
	defer cancel()
	if err := services.Orchestrator.Shutdown(ctx); err != nil {
		log.Warn("Audits cancelled during shutdown", logger.Error(err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	log.Info("Server stopped successfully")
	return nil
}
