package bootstrap

import (
	"fmt"

	"github.com/rawinstinctart/rawauditpro/internal/api"
	"github.com/rawinstinctart/rawauditpro/internal/circuitbreaker"
	"github.com/rawinstinctart/rawauditpro/internal/config"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
	"github.com/rawinstinctart/rawauditpro/internal/server"
)

// SetupHTTPServer creates the HTTP server with the API routes, /metrics and
// health checks for storage and, when enabled, Redis and the model breaker.
func SetupHTTPServer(
	cfg *config.Config,
	storage *StorageComponents,
	events *EventComponents,
	services *ServiceComponents,
	log logger.Logger,
) *server.Server {
	handler := api.NewHandler(storage.Store, services.Orchestrator, services.Drafts, log)

	b := server.NewBuilder(cfg.Service.Name, cfg.Service.Port).
		WithLogger(log).
		WithDebug(cfg.Service.Debug).
		WithVersion(cfg.Service.Version).
		WithMetrics(services.Metrics.Handler()).
		WithHealthCheck(storage.Backend, server.PingChecker(storage.Ping)).
		WithRoutes(handler.RegisterRoutes)

	if events != nil && events.Client != nil {
		b = b.WithHealthCheck("redis", server.OptionalPingChecker(events.Ping))
	}
	if services.Breaker != nil {
		b = b.WithHealthCheck("suggest_provider", breakerChecker(services.Breaker))
	}
	return b.Build()
}

// breakerChecker reports an open or half-open circuit as degraded; audits
// still run on rule fallback.
func breakerChecker(b *circuitbreaker.Breaker) server.HealthChecker {
	return func() server.CheckResult {
		st := b.Stats()
		r := server.CheckResult{
			Status:  server.HealthStatusHealthy,
			Message: fmt.Sprintf("circuit %s, %d consecutive failures", st.State, st.Failures),
		}
		if st.State != circuitbreaker.StateClosed {
			r.Status = server.HealthStatusDegraded
		}
		return r
	}
}
