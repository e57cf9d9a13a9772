// Package scheduler runs periodic maintenance sweeps over finished audits.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
)

// AuditLister finds the audits a sweep should visit.
type AuditLister interface {
	ListAudits(ctx context.Context, f domain.AuditFilter) ([]*domain.Audit, error)
}

// Applier auto-applies the drafts of one audit.
type Applier interface {
	AutoApply(ctx context.Context, auditID string) (int, error)
}

// Config controls the auto-apply sweep.
type Config struct {
	// Schedule is a five-field cron expression or a descriptor such as
	// "@hourly". Empty disables the sweep.
	Schedule string
	// Lookback bounds how far back finalized audits are revisited.
	Lookback time.Duration
}

// Result summarizes one sweep.
type Result struct {
	Audits  int
	Applied int
	Failed  int
}

// Sweeper re-runs auto-apply over recently finalized audits on a cron
// schedule, picking up drafts that became eligible after a policy or
// variant change.
type Sweeper struct {
	cfg     Config
	audits  AuditLister
	applier Applier
	log     logger.Logger
	now     func() time.Time

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

// New validates cfg.Schedule and returns an idle Sweeper.
func New(cfg Config, audits AuditLister, applier Applier, log logger.Logger) (*Sweeper, error) {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With(logger.Component("scheduler"))

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if cfg.Schedule != "" {
		if _, err := parser.Parse(cfg.Schedule); err != nil {
			return nil, fmt.Errorf("parse sweep schedule %q: %w", cfg.Schedule, err)
		}
	}

	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		cfg:     cfg,
		audits:  audits,
		applier: applier,
		log:     log,
		now:     time.Now,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
			cron.WithLogger(cl),
		),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Enabled reports whether a schedule is configured.
func (s *Sweeper) Enabled() bool {
	return s.cfg.Schedule != ""
}

// Start registers the sweep and starts the cron loop. It is a no-op when
// the sweep is disabled.
func (s *Sweeper) Start() error {
	if !s.Enabled() {
		s.log.Info("Auto-apply sweep disabled")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("sweeper already started")
	}

	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.Sweep(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("Auto-apply sweep failed", logger.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	s.started = true

	s.log.Info("Auto-apply sweep scheduled",
		logger.String("schedule", s.cfg.Schedule),
		logger.Duration("lookback", s.cfg.Lookback),
	)
	return nil
}

// Stop cancels an in-flight sweep and waits for it to return.
func (s *Sweeper) Stop() {
	s.cancel()

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	<-s.cron.Stop().Done()
	s.log.Info("Auto-apply sweep stopped")
}

// Sweep auto-applies every audit finalized within the lookback window.
// A failing audit is logged and counted; the sweep moves on.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	f := domain.AuditFilter{Statuses: []domain.AuditStatus{domain.AuditFinalized}}
	if s.cfg.Lookback > 0 {
		since := s.now().UTC().Add(-s.cfg.Lookback)
		f.CompletedAfter = &since
	}

	audits, err := s.audits.ListAudits(ctx, f)
	if err != nil {
		return res, fmt.Errorf("list audits: %w", err)
	}

	start := s.now()
	for _, a := range audits {
		if err = ctx.Err(); err != nil {
			return res, err
		}
		res.Audits++
		n, applyErr := s.applier.AutoApply(ctx, a.ID)
		res.Applied += n
		if applyErr != nil {
			res.Failed++
			s.log.Warn("Auto-apply failed during sweep", logger.AuditID(a.ID), logger.Error(applyErr))
		}
	}

	s.log.Info("Auto-apply sweep finished",
		logger.Int("audits", res.Audits),
		logger.Int("applied", res.Applied),
		logger.Int("failed", res.Failed),
		logger.Duration("elapsed", s.now().Sub(start)),
	)
	return res, nil
}

// cronLogger routes cron's key/value logging into the service logger.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug(msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error(msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []any) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logger.Any(key, kv[i+1]))
	}
	return fields
}
