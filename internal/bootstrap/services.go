package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rawinstinctart/rawauditpro/internal/activity"
	"github.com/rawinstinctart/rawauditpro/internal/analyzer"
	"github.com/rawinstinctart/rawauditpro/internal/audit"
	"github.com/rawinstinctart/rawauditpro/internal/circuitbreaker"
	"github.com/rawinstinctart/rawauditpro/internal/config"
	"github.com/rawinstinctart/rawauditpro/internal/crawler"
	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/drafts"
	"github.com/rawinstinctart/rawauditpro/internal/imaging"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
	"github.com/rawinstinctart/rawauditpro/internal/scheduler"
	"github.com/rawinstinctart/rawauditpro/internal/suggest"
	"github.com/rawinstinctart/rawauditpro/internal/telemetry"
)

// ServiceComponents holds the wired domain services.
type ServiceComponents struct {
	Metrics      *telemetry.Metrics
	Provider     suggest.Provider
	Breaker      *circuitbreaker.Breaker // nil with the rule provider
	Drafts       *drafts.Manager
	Orchestrator *audit.Orchestrator
	Sweeper      *scheduler.Sweeper
}

// SetupServices wires metrics, the suggestion provider, the draft manager,
// the audit orchestrator and the auto-apply sweeper.
func SetupServices(
	cfg *config.Config,
	storage *StorageComponents,
	events *EventComponents,
	log logger.Logger,
) (*ServiceComponents, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.New(reg)

	provider, breaker := SetupProvider(cfg.Suggest, metrics, log)

	manager := drafts.NewManager(storage.Store, log,
		drafts.WithDefaultPolicy(cfg.Audit.DefaultPolicy),
		drafts.WithOnApplied(func(_ context.Context, _ *domain.Draft, _ *domain.Change, trigger drafts.Trigger) {
			metrics.RecordDraftApplied(string(trigger))
		}),
	)

	sinks := activity.Multi{activity.NewLogSink(log), activity.NewRepositorySink(storage.Store)}
	if events != nil && events.Stream != nil {
		sinks = append(sinks, events.Stream)
	}

	orch := audit.New(audit.Config{
		MaxPages:            cfg.Crawler.MaxPages,
		DefaultPolicy:       cfg.Audit.DefaultPolicy,
		MaxConcurrentAudits: cfg.Audit.MaxConcurrentAudits,
		AutoFixOnFinalize:   cfg.Audit.AutoFixOnFinalize,
		AutoApplyOnFinalize: cfg.Audit.AutoApplyOnFinalize,
	}, audit.Dependencies{
		Store:    storage.Store,
		Crawler:  newCrawler(cfg, log),
		Images:   newInspector(cfg, log),
		Provider: provider,
		Drafts:   manager,
		Events:   sinks,
		Metrics:  metrics,
		Logger:   log,
	})

	sweeper, err := scheduler.New(scheduler.Config{
		Schedule: cfg.Sweeps.Schedule,
		Lookback: cfg.Sweeps.Lookback,
	}, storage.Store, orch, log)
	if err != nil {
		return nil, fmt.Errorf("create sweeper: %w", err)
	}

	return &ServiceComponents{
		Metrics:      metrics,
		Provider:     provider,
		Breaker:      breaker,
		Drafts:       manager,
		Orchestrator: orch,
		Sweeper:      sweeper,
	}, nil
}

// SetupProvider returns the rule provider, or the Anthropic model behind a
// circuit breaker with the rule fallback. The breaker is nil for the rule
// provider.
func SetupProvider(
	cfg config.SuggestConfig,
	metrics *telemetry.Metrics,
	log logger.Logger,
) (suggest.Provider, *circuitbreaker.Breaker) {
	if strings.ToLower(cfg.Provider) != config.ProviderAnthropic {
		return suggest.NewRuleProvider(), nil
	}

	breaker := circuitbreaker.DefaultConfig()
	if cfg.BreakerFailures > 0 {
		breaker.FailureThreshold = cfg.BreakerFailures
	}
	if cfg.BreakerCooldown > 0 {
		breaker.Cooldown = cfg.BreakerCooldown
	}
	breaker.OnStateChange = func(from, to circuitbreaker.State) {
		log.Warn("Suggestion circuit breaker state changed",
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}

	model := suggest.NewModelProvider(suggest.ModelConfig{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Timeout:   cfg.Timeout,
		Breaker:   breaker,
	})
	log.Info("Model suggestions enabled", logger.String("model", cfg.Model))

	fallback := suggest.NewFallbackProvider(model, log, func(context.Context, analyzer.Finding, error) {
		metrics.RecordFallback()
	})
	return fallback, model.Breaker()
}

func newCrawler(cfg *config.Config, log logger.Logger) *crawler.Crawler {
	return crawler.New(crawler.Config{
		MaxPages:         cfg.Crawler.MaxPages,
		RequestTimeout:   cfg.Crawler.RequestTimeout,
		MaxBodySize:      cfg.Crawler.MaxBodySize,
		BodyTextLimit:    cfg.Crawler.BodyTextLimit,
		UserAgent:        cfg.Crawler.UserAgent,
		RespectRobotsTxt: cfg.Crawler.RespectRobotsTxt,
	}, log)
}

func newInspector(cfg *config.Config, log logger.Logger) *imaging.Inspector {
	return imaging.New(imaging.Config{
		Timeout:         cfg.Images.FetchTimeout,
		MaxBytes:        cfg.Images.MaxBytes,
		Concurrency:     cfg.Images.Concurrency,
		UserAgent:       cfg.Crawler.UserAgent,
		MaxDecodePixels: cfg.Images.MaxDecodePixels,
	}, log)
}
