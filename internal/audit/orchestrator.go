package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rawinstinctart/rawauditpro/internal/activity"
	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/drafts"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
	"github.com/rawinstinctart/rawauditpro/internal/policy"
	"github.com/rawinstinctart/rawauditpro/internal/suggest"
	"github.com/rawinstinctart/rawauditpro/internal/telemetry"
)

// Config holds orchestrator settings.
type Config struct {
	// MaxPages is the crawl ceiling per audit; zero uses the crawler default.
	MaxPages            int
	DefaultPolicy       string
	MaxConcurrentAudits int
	// AutoFixOnFinalize and AutoApplyOnFinalize run the sweeps right after
	// a successful run.
	AutoFixOnFinalize   bool
	AutoApplyOnFinalize bool
}

// Dependencies are the collaborators an Orchestrator drives.
type Dependencies struct {
	Store    Store
	Crawler  SiteCrawler
	Images   ImageInspector
	Provider suggest.Provider
	Drafts   *drafts.Manager
	Events   activity.Sink
	Metrics  *telemetry.Metrics
	Logger   logger.Logger
}

// Orchestrator is the only component that changes audit status.
type Orchestrator struct {
	cfg      Config
	store    Store
	crawler  SiteCrawler
	images   ImageInspector
	provider suggest.Provider
	drafts   *drafts.Manager
	events   activity.Sink
	metrics  *telemetry.Metrics
	log      logger.Logger
	runner   *Runner
	now      func() time.Time

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func New(cfg Config, deps Dependencies) *Orchestrator {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.DefaultPolicy == "" {
		cfg.DefaultPolicy = string(policy.Balanced)
	}
	events := deps.Events
	if events == nil {
		events = activity.Nop
	}
	provider := deps.Provider
	if provider == nil {
		provider = suggest.NewRuleProvider()
	}

	return &Orchestrator{
		cfg:      cfg,
		store:    deps.Store,
		crawler:  deps.Crawler,
		images:   deps.Images,
		provider: provider,
		drafts:   deps.Drafts,
		events:   events,
		metrics:  deps.Metrics,
		log:      log.With(logger.Component("audit")),
		runner:   NewRunner(cfg.MaxConcurrentAudits, log),
		now:      time.Now,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Trigger validates the policy and creates a queued audit for the website.
func (o *Orchestrator) Trigger(ctx context.Context, websiteID, policyName string) (*domain.Audit, error) {
	profile, err := policy.Resolve(policyName, o.cfg.DefaultPolicy)
	if err != nil {
		return nil, err
	}
	if _, err = o.store.GetWebsite(ctx, websiteID); err != nil {
		return nil, fmt.Errorf("get website %s: %w", websiteID, err)
	}

	a := &domain.Audit{
		ID:        domain.NewID(),
		WebsiteID: websiteID,
		Status:    domain.AuditQueued,
		Policy:    string(profile.Name),
	}
	if err = o.store.CreateAudit(ctx, a); err != nil {
		return nil, fmt.Errorf("create audit: %w", err)
	}

	o.log.Info("Audit queued",
		logger.AuditID(a.ID),
		logger.String("website_id", websiteID),
		logger.String("policy", a.Policy),
	)
	o.emit(ctx, a, activity.AgentOrchestrator, "queued", "Audit queued", domain.JSONBMap{"policy": a.Policy})
	return a, nil
}

// Start runs the audit in the background. Cancel stops it.
func (o *Orchestrator) Start(auditID string) error {
	ctx, cancel := context.WithCancel(context.Background())

	o.mu.Lock()
	if _, running := o.cancels[auditID]; running {
		o.mu.Unlock()
		cancel()
		return fmt.Errorf("audit %s: %w", auditID, ErrAuditInProgress)
	}
	o.cancels[auditID] = cancel
	o.mu.Unlock()

	err := o.runner.Submit("audit:"+auditID, func() {
		defer o.release(auditID)
		if runErr := o.Run(ctx, auditID); runErr != nil {
			o.log.Error("Audit run failed", logger.AuditID(auditID), logger.Error(runErr))
		}
	}, func() {
		o.release(auditID)
		o.abandon(auditID, cancelledMessage)
	})
	if err != nil {
		o.release(auditID)
		o.abandon(auditID, err.Error())
		return err
	}
	return nil
}

// abandon fails an audit that will never run, so it does not block its
// website.
func (o *Orchestrator) abandon(auditID, reason string) {
	if err := o.store.FailAudit(context.Background(), auditID, reason, o.now().UTC()); err != nil {
		o.log.Warn("Could not fail unstarted audit", logger.AuditID(auditID), logger.Error(err))
		return
	}
	o.log.Warn("Audit abandoned before it ran", logger.AuditID(auditID), logger.String("reason", reason))
}

// RecoverInterrupted fails every audit left queued or running by a previous
// process. Call it once at startup, before any audit is started.
func (o *Orchestrator) RecoverInterrupted(ctx context.Context) (int, error) {
	n, err := o.store.FailActiveAudits(ctx, interruptedMessage, o.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("recover interrupted audits: %w", err)
	}
	if n > 0 {
		o.log.Warn("Failed audits interrupted by a restart", logger.Int("audits", n))
	}
	return n, nil
}

// Cancel stops a run started with Start. It reports whether one was found.
func (o *Orchestrator) Cancel(auditID string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[auditID]
	o.mu.Unlock()
	if ok {
		o.log.Info("Cancelling audit", logger.AuditID(auditID))
		cancel()
	}
	return ok
}

func (o *Orchestrator) release(auditID string) {
	o.mu.Lock()
	cancel, ok := o.cancels[auditID]
	delete(o.cancels, auditID)
	o.mu.Unlock()
	if ok {
		cancel()
	}
}

// Shutdown drains the runner. When ctx ends first, in-flight audits are
// cancelled and marked failed before Shutdown returns.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	err := o.runner.Drain(ctx)
	if err == nil || errors.Is(err, ErrRunnerStopped) {
		return nil
	}

	o.mu.Lock()
	for id, cancel := range o.cancels {
		o.log.Warn("Cancelling audit on shutdown", logger.AuditID(id))
		cancel()
	}
	o.mu.Unlock()
	o.runner.Wait()
	return err
}

// AutoFix moves every pending, auto-fixable, low-risk issue of the audit to
// auto_fixed and records a Change for each. Issues that changed state
// underneath are skipped.
func (o *Orchestrator) AutoFix(ctx context.Context, auditID string) (int, error) {
	a, err := o.store.GetAudit(ctx, auditID)
	if err != nil {
		return 0, fmt.Errorf("get audit %s: %w", auditID, err)
	}
	pending, err := o.store.ListIssues(ctx, domain.IssueFilter{
		AuditID:  auditID,
		Statuses: []domain.IssueStatus{domain.IssuePending},
	})
	if err != nil {
		return 0, fmt.Errorf("list issues: %w", err)
	}

	fixed := 0
	for _, issue := range pending {
		if !issue.AutoFixable || issue.Risk != domain.RiskLow {
			continue
		}
		if err = ctx.Err(); err != nil {
			return fixed, err
		}
		if _, err = o.store.AutoFixIssue(ctx, issue.ID, o.now().UTC()); err != nil {
			if errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrNotFound) {
				o.log.Debug("Skipping stale issue", logger.String("issue_id", issue.ID), logger.Error(err))
				continue
			}
			return fixed, fmt.Errorf("auto-fix issue %s: %w", issue.ID, err)
		}
		fixed++
	}

	o.log.Info("Auto-fix finished", logger.AuditID(auditID), logger.Int("fixed", fixed))
	if fixed > 0 {
		o.emit(ctx, a, activity.AgentOrchestrator, "auto_fix",
			fmt.Sprintf("Auto-fixed %d low-risk issues", fixed), domain.JSONBMap{"fixed": fixed})
	}
	return fixed, nil
}

// AutoApply approves and applies the audit's drafts that clear its policy
// threshold.
func (o *Orchestrator) AutoApply(ctx context.Context, auditID string) (int, error) {
	if o.drafts == nil {
		return 0, errors.New("auto-apply: no draft manager configured")
	}
	applied, err := o.drafts.AutoApply(ctx, auditID)
	if err != nil {
		return applied, err
	}
	if applied > 0 {
		if a, getErr := o.store.GetAudit(ctx, auditID); getErr == nil {
			o.emit(ctx, a, activity.AgentDrafts, "auto_apply",
				fmt.Sprintf("Auto-applied %d drafts", applied), domain.JSONBMap{"applied": applied})
		}
	}
	return applied, nil
}

// emit delivers an activity event. Sink failures are logged only.
func (o *Orchestrator) emit(ctx context.Context, a *domain.Audit, agent, action, message string, meta domain.JSONBMap) {
	e := &domain.ActivityEvent{
		AuditID:   a.ID,
		WebsiteID: a.WebsiteID,
		Agent:     agent,
		Action:    action,
		Message:   message,
		Metadata:  meta,
		CreatedAt: o.now().UTC(),
	}
	if err := o.events.Emit(ctx, e); err != nil {
		o.log.Warn("Activity sink failed", logger.AuditID(a.ID), logger.Error(err))
	}
}
