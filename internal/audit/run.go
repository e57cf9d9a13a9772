package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rawinstinctart/rawauditpro/internal/activity"
	"github.com/rawinstinctart/rawauditpro/internal/analyzer"
	"github.com/rawinstinctart/rawauditpro/internal/crawler"
	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/imaging"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
	"github.com/rawinstinctart/rawauditpro/internal/policy"
	"github.com/rawinstinctart/rawauditpro/internal/suggest"
)

// auditRun is the state of one Run call.
type auditRun struct {
	audit    *domain.Audit
	website  *domain.Website
	profile  policy.Profile
	progress *progressTracker
	log      logger.Logger
	started  time.Time

	pages     []*crawler.PageRecord
	images    map[string][]*imaging.ImageRecord
	issues    int
	drafts    int
	fallbacks int
}

// Run executes a queued audit to a terminal state. Any error fails the
// audit with its message; partial issues and drafts are kept.
func (o *Orchestrator) Run(ctx context.Context, auditID string) error {
	started := o.now()
	a, err := o.store.ClaimAudit(ctx, auditID, started.UTC())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			return fmt.Errorf("%w: %w", ErrAuditNotQueued, err)
		}
		return fmt.Errorf("claim audit %s: %w", auditID, err)
	}

	run := &auditRun{
		audit:    a,
		progress: newProgressTracker(o.store, a),
		log:      o.log.With(logger.AuditID(a.ID), logger.String("website_id", a.WebsiteID)),
		started:  started,
	}
	run.log.Info("Audit claimed")

	if err = o.execute(ctx, run); err != nil {
		o.fail(ctx, run, err)
		return err
	}

	elapsed := o.now().Sub(started)
	o.metrics.RecordAudit(string(domain.AuditFinalized), elapsed)
	run.log.Info("Audit finalized",
		logger.Int("pages", len(run.pages)),
		logger.Int("issues", run.issues),
		logger.Int("drafts", run.drafts),
		logger.Int("fallbacks", run.fallbacks),
		logger.Duration("elapsed", elapsed),
	)
	o.sweep(ctx, run)
	return nil
}

// execute turns a panic in any phase into an error so Run fails the audit.
func (o *Orchestrator) execute(ctx context.Context, run *auditRun) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			run.log.Error("Recovered panic in audit run", logger.String("panic", fmt.Sprint(r)))
		}
	}()

	website, err := o.store.GetWebsite(ctx, run.audit.WebsiteID)
	if err != nil {
		return fmt.Errorf("get website: %w", err)
	}
	run.website = website

	profile, err := policy.Resolve(run.audit.Policy, o.cfg.DefaultPolicy)
	if err != nil {
		return err
	}
	run.profile = profile

	if err = o.crawl(ctx, run); err != nil {
		return err
	}
	if err = o.analyze(ctx, run); err != nil {
		return err
	}
	if err = o.score(ctx, run); err != nil {
		return err
	}

	if err = o.store.FinalizeAudit(ctx, run.audit.ID, o.now().UTC()); err != nil {
		return fmt.Errorf("finalize audit: %w", err)
	}
	run.progress.finalized()
	o.emit(ctx, run.audit, activity.AgentOrchestrator, "completed", "Audit completed", domain.JSONBMap{
		"pages_scanned": len(run.pages),
		"total_issues":  run.issues,
		"drafts":        run.drafts,
	})
	return nil
}

func (o *Orchestrator) crawl(ctx context.Context, run *auditRun) error {
	if err := run.progress.report(ctx, string(domain.AuditCrawling), progressCrawlStart); err != nil {
		return err
	}
	o.emit(ctx, run.audit, activity.AgentCrawler, "phase", "Crawl started", domain.JSONBMap{
		"seed":      run.website.URL,
		"max_pages": o.pageLimit(),
	})

	maxPages := o.pageLimit()
	var progressErr error
	pages, err := o.crawler.Crawl(ctx, run.website.URL, maxPages, func(visited int, page *crawler.PageRecord) {
		o.metrics.RecordPageCrawled()
		if progressErr != nil || maxPages <= 0 {
			return
		}
		step := fmt.Sprintf("crawling (%d/%d)", visited, maxPages)
		progressErr = run.progress.report(ctx, step, band(progressCrawlStart, progressCrawlEnd, visited, maxPages))
	})
	if err != nil {
		return fmt.Errorf("crawl %s: %w", run.website.URL, err)
	}
	if progressErr != nil {
		return progressErr
	}
	run.pages = pages

	if err = o.store.SaveCrawl(ctx, run.audit.ID, len(pages), crawlSnapshot(run.website.URL, pages)); err != nil {
		return fmt.Errorf("save crawl: %w", err)
	}
	return run.progress.report(ctx, string(domain.AuditCrawling), progressCrawlEnd)
}

func (o *Orchestrator) analyze(ctx context.Context, run *auditRun) error {
	if err := run.progress.advance(ctx, domain.AuditAnalyzing, progressAnalyzeStart); err != nil {
		return err
	}

	refs := make([]crawler.ImageRef, 0)
	for _, p := range run.pages {
		if p.OK() {
			refs = append(refs, p.Images...)
		}
	}
	o.emit(ctx, run.audit, activity.AgentImages, "phase", "Image inspection started", domain.JSONBMap{"images": len(refs)})

	records, err := o.images.InspectAll(ctx, refs)
	if err != nil {
		return fmt.Errorf("inspect images: %w", err)
	}
	duplicates := imaging.MarkDuplicates(records)
	run.images = make(map[string][]*imaging.ImageRecord, len(run.pages))
	for _, rec := range records {
		run.images[rec.Ref.PageURL] = append(run.images[rec.Ref.PageURL], rec)
	}

	o.emit(ctx, run.audit, activity.AgentAnalyzer, "phase", "Analysis started", domain.JSONBMap{
		"pages":      len(run.pages),
		"duplicates": duplicates,
		"policy":     string(run.profile.Name),
	})

	for i, page := range run.pages {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = o.analyzePage(ctx, run, page); err != nil {
			return err
		}
		step := fmt.Sprintf("analyzing (%d/%d)", i+1, len(run.pages))
		if err = run.progress.report(ctx, step, band(progressAnalyzeStart, progressAnalyzeEnd, i+1, len(run.pages))); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) analyzePage(ctx context.Context, run *auditRun, page *crawler.PageRecord) error {
	images := run.images[page.URL]
	findings := analyzer.Analyze(page, images)
	if len(findings) == 0 {
		return nil
	}
	pc := suggest.NewPageContext(page, run.pages)

	for _, f := range findings {
		issue, props, err := o.recordIssue(ctx, run, f, pageContextFor(pc, f, images))
		if err != nil {
			return err
		}
		if analyzer.Remediable(f.Type) {
			if err = o.recordDraft(ctx, run, newIssueDraft(run.audit, issue, props, run.profile.Variant())); err != nil {
				return err
			}
		}
		if f.Type == analyzer.TypeLowInternalLinks && len(pc.LinkCandidates) > 0 {
			if err = o.recordOpportunity(ctx, run, f, pc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) recordIssue(
	ctx context.Context, run *auditRun, f analyzer.Finding, pc *suggest.PageContext,
) (*domain.Issue, *suggest.Proposals, error) {
	props, err := o.propose(ctx, run, f, pc)
	if err != nil {
		return nil, nil, err
	}

	issue := newIssue(run.audit, f, props, run.profile.Variant())
	if err = o.store.CreateIssue(ctx, issue); err != nil {
		return nil, nil, fmt.Errorf("create issue %s: %w", f.Type, err)
	}
	run.issues++
	o.metrics.RecordIssue(string(issue.Severity))
	return issue, props, nil
}

func (o *Orchestrator) recordOpportunity(ctx context.Context, run *auditRun, f analyzer.Finding, pc *suggest.PageContext) error {
	opportunity := f
	opportunity.Type = analyzer.TypeInternalLinkOpportunity
	props, err := o.propose(ctx, run, opportunity, pc)
	if err != nil {
		return err
	}
	return o.recordDraft(ctx, run, newOpportunityDraft(run.audit, opportunity, props, run.profile.Variant()))
}

func (o *Orchestrator) recordDraft(ctx context.Context, run *auditRun, d *domain.Draft) error {
	if err := o.store.CreateDraft(ctx, d); err != nil {
		return fmt.Errorf("create draft %s: %w", d.Type, err)
	}
	run.drafts++
	return nil
}

// pageLimit is the crawl ceiling, falling back to the crawler's own default
// so per-page progress is always reported.
func (o *Orchestrator) pageLimit() int {
	if o.cfg.MaxPages > 0 {
		return o.cfg.MaxPages
	}
	if l, ok := o.crawler.(interface{ MaxPages() int }); ok {
		return l.MaxPages()
	}
	return 0
}

// propose checks for cancellation before every provider call.
func (o *Orchestrator) propose(ctx context.Context, run *auditRun, f analyzer.Finding, pc *suggest.PageContext) (*suggest.Proposals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	props, err := o.provider.GenerateProposals(ctx, f, pc)
	if err != nil {
		return nil, fmt.Errorf("generate proposals for %s on %s: %w", f.Type, f.PageURL, err)
	}
	if props.Source == suggest.SourceRuleFallback {
		run.fallbacks++
		o.emit(ctx, run.audit, activity.AgentSuggest, "fallback", "Suggestion provider unavailable, used rule fallback",
			domain.JSONBMap{"issue_type": f.Type, "page_url": f.PageURL, "provider": o.provider.Name()})
	}
	return props, nil
}

func (o *Orchestrator) score(ctx context.Context, run *auditRun) error {
	if err := run.progress.advance(ctx, domain.AuditScoring, progressScoring); err != nil {
		return err
	}

	issues, err := o.store.ListIssues(ctx, domain.IssueFilter{AuditID: run.audit.ID})
	if err != nil {
		return fmt.Errorf("list issues: %w", err)
	}
	score := domain.AuditScore{
		HealthScore: analyzer.ScoreIssues(issues),
		Counts:      analyzer.CountBySeverity(issues),
	}
	if err = o.store.SaveScore(ctx, run.audit.ID, score, o.now().UTC()); err != nil {
		return fmt.Errorf("save score: %w", err)
	}

	o.emit(ctx, run.audit, activity.AgentScorer, "scored", fmt.Sprintf("Health score %d", score.HealthScore), domain.JSONBMap{
		"health_score": score.HealthScore,
		"critical":     score.Counts.Critical,
		"high":         score.Counts.High,
		"medium":       score.Counts.Medium,
		"low":          score.Counts.Low,
	})
	return nil
}

// fail records the failure with a context that outlives cancellation.
func (o *Orchestrator) fail(ctx context.Context, run *auditRun, cause error) {
	msg := cause.Error()
	if errors.Is(cause, context.Canceled) {
		msg = cancelledMessage
	}

	writeCtx := context.WithoutCancel(ctx)
	if err := o.store.FailAudit(writeCtx, run.audit.ID, msg, o.now().UTC()); err != nil {
		run.log.Error("Failed to mark audit failed", logger.Error(err))
	}
	o.metrics.RecordAudit(string(domain.AuditFailed), o.now().Sub(run.started))
	o.emit(writeCtx, run.audit, activity.AgentOrchestrator, "failed", "Audit failed", domain.JSONBMap{
		"error":    msg,
		"progress": run.progress.current,
	})
	run.log.Warn("Audit failed", logger.String("reason", msg), logger.Int("issues", run.issues))
}

// sweep runs the configured post-finalize sweeps. Their errors never change
// the finalized audit.
func (o *Orchestrator) sweep(ctx context.Context, run *auditRun) {
	if o.cfg.AutoFixOnFinalize {
		if _, err := o.AutoFix(ctx, run.audit.ID); err != nil {
			run.log.Warn("Auto-fix sweep failed", logger.Error(err))
		}
	}
	if o.cfg.AutoApplyOnFinalize && o.drafts != nil {
		if _, err := o.AutoApply(ctx, run.audit.ID); err != nil {
			run.log.Warn("Auto-apply sweep failed", logger.Error(err))
		}
	}
}

// crawlSnapshot summarizes the crawl for the audit row.
func crawlSnapshot(seed string, pages []*crawler.PageRecord) domain.JSONBMap {
	summary := make([]map[string]any, 0, len(pages))
	for _, p := range pages {
		entry := map[string]any{
			"url":          p.URL,
			"status_code":  p.StatusCode,
			"load_time_ms": p.LoadTimeMs,
			"word_count":   p.WordCount,
			"images":       len(p.Images),
		}
		if p.FetchError != "" {
			entry["fetch_error"] = p.FetchError
		}
		summary = append(summary, entry)
	}
	return domain.JSONBMap{
		"seed":  seed,
		"pages": summary,
	}
}
