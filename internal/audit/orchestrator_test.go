package audit_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawinstinctart/rawauditpro/internal/activity"
	"github.com/rawinstinctart/rawauditpro/internal/analyzer"
	"github.com/rawinstinctart/rawauditpro/internal/audit"
	"github.com/rawinstinctart/rawauditpro/internal/crawler"
	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/drafts"
	"github.com/rawinstinctart/rawauditpro/internal/imaging"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
	"github.com/rawinstinctart/rawauditpro/internal/memstore"
	"github.com/rawinstinctart/rawauditpro/internal/suggest"
)

type fakeCrawler struct {
	crawlFunc func(ctx context.Context, seed string, maxPages int, onPage crawler.PageFunc) ([]*crawler.PageRecord, error)
}

func (f *fakeCrawler) Crawl(ctx context.Context, seed string, maxPages int, onPage crawler.PageFunc) ([]*crawler.PageRecord, error) {
	return f.crawlFunc(ctx, seed, maxPages, onPage)
}

// staticCrawler reports pages through onPage like the real crawler.
func staticCrawler(pages ...*crawler.PageRecord) *fakeCrawler {
	return &fakeCrawler{crawlFunc: func(_ context.Context, _ string, _ int, onPage crawler.PageFunc) ([]*crawler.PageRecord, error) {
		for i, p := range pages {
			if onPage != nil {
				onPage(i+1, p)
			}
		}
		return pages, nil
	}}
}

type fakeInspector struct {
	tags map[string][]imaging.Tag
}

func (f *fakeInspector) InspectAll(ctx context.Context, refs []crawler.ImageRef) ([]*imaging.ImageRecord, error) {
	out := make([]*imaging.ImageRecord, 0, len(refs))
	for _, ref := range refs {
		out = append(out, &imaging.ImageRecord{
			Ref:   ref,
			Asset: &imaging.Asset{URL: ref.URL, Fetched: true, Bytes: 4096, Width: 400, Height: 300, Format: "jpeg"},
			Tags:  f.tags[ref.URL],
		})
	}
	return out, ctx.Err()
}

// recordingStore captures every progress value the orchestrator writes.
type recordingStore struct {
	*memstore.Store

	mu       sync.Mutex
	progress []int
	statuses []domain.AuditStatus
}

func (r *recordingStore) record(status domain.AuditStatus, p int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
	r.statuses = append(r.statuses, status)
}

func (r *recordingStore) AdvanceAudit(ctx context.Context, id string, from, to domain.AuditStatus, step string, p int) error {
	r.record(to, p)
	return r.Store.AdvanceAudit(ctx, id, from, to, step, p)
}

func (r *recordingStore) UpdateProgress(ctx context.Context, id, step string, p int) error {
	r.record("", p)
	return r.Store.UpdateProgress(ctx, id, step, p)
}

func (r *recordingStore) FinalizeAudit(ctx context.Context, id string, at time.Time) error {
	r.record(domain.AuditFinalized, 100)
	return r.Store.FinalizeAudit(ctx, id, at)
}

type harness struct {
	store   *recordingStore
	orch    *audit.Orchestrator
	manager *drafts.Manager
	events  *eventLog
	website *domain.Website
}

type eventLog struct {
	mu     sync.Mutex
	events []*domain.ActivityEvent
}

func (l *eventLog) Emit(_ context.Context, e *domain.ActivityEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) actions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Action)
	}
	return out
}

func newHarness(t *testing.T, cfg audit.Config, c audit.SiteCrawler, images audit.ImageInspector, provider suggest.Provider) *harness {
	t.Helper()

	store := &recordingStore{Store: memstore.New()}
	site := &domain.Website{Name: "Example", URL: "https://example.com/"}
	require.NoError(t, store.CreateWebsite(context.Background(), site))

	if images == nil {
		images = &fakeInspector{}
	}
	events := &eventLog{}
	manager := drafts.NewManager(store, logger.NewNop())
	orch := audit.New(cfg, audit.Dependencies{
		Store:    store,
		Crawler:  c,
		Images:   images,
		Provider: provider,
		Drafts:   manager,
		Events:   activity.Multi{events, activity.NewLogSink(logger.NewNop())},
		Logger:   logger.NewNop(),
	})
	return &harness{store: store, orch: orch, manager: manager, events: events, website: site}
}

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "pottery"
	}
	return strings.Join(w, " ")
}

const okMeta = "Hand-thrown stoneware mugs, bowls and planters glazed in small batches in our Portland studio, with classes for every level of potter."

func thinUntitledPage() *crawler.PageRecord {
	return &crawler.PageRecord{
		URL:             "https://example.com/",
		StatusCode:      200,
		LoadTimeMs:      120,
		MetaDescription: okMeta,
		H1:              []string{"Clay Works Studio"},
		BodyText:        words(50),
		WordCount:       50,
		Links: []crawler.Link{
			{URL: "https://example.com/a", Text: "A", Internal: true},
			{URL: "https://example.com/b", Text: "B", Internal: true},
			{URL: "https://example.com/c", Text: "C", Internal: true},
		},
	}
}

func issueTypes(issues []*domain.Issue) map[string]*domain.Issue {
	out := make(map[string]*domain.Issue, len(issues))
	for _, i := range issues {
		out[i.Type] = i
	}
	return out
}

func TestRun_UntitledThinPage(t *testing.T) {
	h := newHarness(t, audit.Config{MaxPages: 5}, staticCrawler(thinUntitledPage()), nil, nil)
	ctx := context.Background()

	a, err := h.orch.Trigger(ctx, h.website.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "balanced", a.Policy)
	require.NoError(t, h.orch.Run(ctx, a.ID))

	got, err := h.store.GetAudit(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuditFinalized, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 1, got.PagesScanned)
	require.NotNil(t, got.HealthScore)
	assert.LessOrEqual(t, *got.HealthScore, 75)

	issues, err := h.store.ListIssues(ctx, domain.IssueFilter{AuditID: a.ID})
	require.NoError(t, err)
	byType := issueTypes(issues)
	require.Contains(t, byType, analyzer.TypeMissingTitle)
	require.Contains(t, byType, analyzer.TypeThinContent)
	assert.Equal(t, domain.SeverityCritical, byType[analyzer.TypeMissingTitle].Severity)
	assert.Equal(t, domain.SeverityHigh, byType[analyzer.TypeThinContent].Severity)
	assert.Equal(t, len(issues), got.TotalIssues)

	title := byType[analyzer.TypeMissingTitle]
	assert.Equal(t, title.ProposedBalanced, title.SuggestedValue)
	assert.NotEmpty(t, title.ProposedSafe)
	assert.NotEmpty(t, title.ProposedAggressive)

	site, err := h.store.GetWebsite(ctx, h.website.ID)
	require.NoError(t, err)
	require.NotNil(t, site.HealthScore)
	assert.Equal(t, *got.HealthScore, *site.HealthScore)
	assert.NotNil(t, site.LastAuditAt)

	assert.Contains(t, h.events.actions(), "completed")
}

func TestRun_DraftsFollowRemediability(t *testing.T) {
	page := thinUntitledPage()
	page.LoadTimeMs = 4000
	h := newHarness(t, audit.Config{MaxPages: 5}, staticCrawler(page), nil, nil)
	ctx := context.Background()

	a, err := h.orch.Trigger(ctx, h.website.ID, "safe")
	require.NoError(t, err)
	require.NoError(t, h.orch.Run(ctx, a.ID))

	ds, err := h.store.ListDrafts(ctx, domain.DraftFilter{AuditID: a.ID})
	require.NoError(t, err)

	types := make(map[string]*domain.Draft)
	for _, d := range ds {
		types[d.Type] = d
		assert.Equal(t, domain.VariantSafe, d.SelectedVariant)
		assert.Equal(t, domain.DraftPending, d.Status)
		require.NotNil(t, d.IssueID)
	}
	assert.Contains(t, types, analyzer.TypeMissingTitle)
	assert.NotContains(t, types, analyzer.TypeSlowPageLoad)
	assert.NotEmpty(t, types[analyzer.TypeMissingTitle].Diff)
}

func TestRun_OpportunityDraftForWeaklyLinkedPage(t *testing.T) {
	home := thinUntitledPage()
	home.Links = nil
	other := &crawler.PageRecord{
		URL:        "https://example.com/glazes",
		StatusCode: 200,
		Title:      "Pottery Glazes and Firing Guide for Studio Potters",
		H1:         []string{"Glazes"},
		WordCount:  400,
		BodyText:   words(400),
	}
	h := newHarness(t, audit.Config{MaxPages: 5}, staticCrawler(home, other), nil, nil)
	ctx := context.Background()

	a, err := h.orch.Trigger(ctx, h.website.ID, "aggressive")
	require.NoError(t, err)
	require.NoError(t, h.orch.Run(ctx, a.ID))

	ds, err := h.store.ListDrafts(ctx, domain.DraftFilter{AuditID: a.ID})
	require.NoError(t, err)

	var opportunities []*domain.Draft
	for _, d := range ds {
		if d.Type == analyzer.TypeInternalLinkOpportunity {
			opportunities = append(opportunities, d)
		}
		assert.NotEqual(t, analyzer.TypeLowInternalLinks, d.Type)
	}
	require.NotEmpty(t, opportunities)
	for _, d := range opportunities {
		assert.Nil(t, d.IssueID)
		assert.Contains(t, d.SelectedValue(), "https://example.com/")
	}
}

func TestRun_ProgressIsMonotonic(t *testing.T) {
	pages := []*crawler.PageRecord{thinUntitledPage()}
	for _, path := range []string{"a", "b", "c"} {
		p := thinUntitledPage()
		p.URL = "https://example.com/" + path
		pages = append(pages, p)
	}
	h := newHarness(t, audit.Config{MaxPages: 4}, staticCrawler(pages...), nil, nil)
	ctx := context.Background()

	a, err := h.orch.Trigger(ctx, h.website.ID, "balanced")
	require.NoError(t, err)
	require.NoError(t, h.orch.Run(ctx, a.ID))

	require.NotEmpty(t, h.store.progress)
	for i := 1; i < len(h.store.progress); i++ {
		assert.GreaterOrEqual(t, h.store.progress[i], h.store.progress[i-1], "progress went backwards at write %d", i)
	}
	for i, p := range h.store.progress {
		if p == 100 {
			assert.Equal(t, domain.AuditFinalized, h.store.statuses[i])
		}
	}
	assert.Equal(t, 100, h.store.progress[len(h.store.progress)-1])
	assert.Contains(t, h.store.progress, 90)
}

func TestRun_NotQueued(t *testing.T) {
	h := newHarness(t, audit.Config{}, staticCrawler(thinUntitledPage()), nil, nil)
	ctx := context.Background()

	a, err := h.orch.Trigger(ctx, h.website.ID, "safe")
	require.NoError(t, err)
	require.NoError(t, h.orch.Run(ctx, a.ID))

	err = h.orch.Run(ctx, a.ID)
	require.ErrorIs(t, err, audit.ErrAuditNotQueued)
}

func TestTrigger_Validation(t *testing.T) {
	h := newHarness(t, audit.Config{}, staticCrawler(), nil, nil)
	ctx := context.Background()

	_, err := h.orch.Trigger(ctx, h.website.ID, "reckless")
	require.ErrorIs(t, err, audit.ErrUnknownPolicy)

	_, err = h.orch.Trigger(ctx, "missing-site", "safe")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.orch.Trigger(ctx, h.website.ID, "SAFE")
	require.NoError(t, err)
	_, err = h.orch.Trigger(ctx, h.website.ID, "safe")
	require.ErrorIs(t, err, audit.ErrAuditInProgress)
}

func TestRun_CancelledContextFailsAudit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &fakeCrawler{crawlFunc: func(ctx context.Context, _ string, _ int, _ crawler.PageFunc) ([]*crawler.PageRecord, error) {
		cancel()
		return nil, ctx.Err()
	}}
	h := newHarness(t, audit.Config{}, c, nil, nil)

	a, err := h.orch.Trigger(context.Background(), h.website.ID, "safe")
	require.NoError(t, err)

	err = h.orch.Run(ctx, a.ID)
	require.ErrorIs(t, err, context.Canceled)

	got, err := h.store.GetAudit(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuditFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "audit cancelled", *got.ErrorMessage)
	assert.Contains(t, h.events.actions(), "failed")
}

func TestRun_CrawlErrorKeepsMessage(t *testing.T) {
	c := &fakeCrawler{crawlFunc: func(context.Context, string, int, crawler.PageFunc) ([]*crawler.PageRecord, error) {
		return nil, crawler.ErrInvalidSeed
	}}
	h := newHarness(t, audit.Config{}, c, nil, nil)
	ctx := context.Background()

	a, err := h.orch.Trigger(ctx, h.website.ID, "safe")
	require.NoError(t, err)
	require.Error(t, h.orch.Run(ctx, a.ID))

	got, err := h.store.GetAudit(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuditFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "invalid seed url")

	// A failed audit frees the website for a new run.
	_, err = h.orch.Trigger(ctx, h.website.ID, "safe")
	require.NoError(t, err)
}

type failingProvider struct{}

func (failingProvider) Name() string { return "broken" }

func (failingProvider) GenerateProposals(context.Context, analyzer.Finding, *suggest.PageContext) (*suggest.Proposals, error) {
	return nil, errors.New("upstream unavailable")
}

func TestRun_ProviderFallback(t *testing.T) {
	provider := suggest.NewFallbackProvider(failingProvider{}, logger.NewNop(), nil)
	h := newHarness(t, audit.Config{}, staticCrawler(thinUntitledPage()), nil, provider)
	ctx := context.Background()

	a, err := h.orch.Trigger(ctx, h.website.ID, "balanced")
	require.NoError(t, err)
	require.NoError(t, h.orch.Run(ctx, a.ID))

	ds, err := h.store.ListDrafts(ctx, domain.DraftFilter{AuditID: a.ID})
	require.NoError(t, err)
	require.NotEmpty(t, ds)
	for _, d := range ds {
		assert.Equal(t, suggest.SourceRuleFallback, d.Source)
	}
	assert.Contains(t, h.events.actions(), "fallback")
}

func TestAutoFix_LowRiskOnly(t *testing.T) {
	page := thinUntitledPage()
	page.Images = []crawler.ImageRef{{URL: "https://example.com/bowl.jpg", PageURL: page.URL, Alt: "Bowl", HasAlt: true}}
	images := &fakeInspector{tags: map[string][]imaging.Tag{
		"https://example.com/bowl.jpg": {imaging.TagNoLazyLoading},
	}}
	h := newHarness(t, audit.Config{}, staticCrawler(page), images, nil)
	ctx := context.Background()

	a, err := h.orch.Trigger(ctx, h.website.ID, "balanced")
	require.NoError(t, err)
	require.NoError(t, h.orch.Run(ctx, a.ID))

	fixed, err := h.orch.AutoFix(ctx, a.ID)
	require.NoError(t, err)

	issues, err := h.store.ListIssues(ctx, domain.IssueFilter{AuditID: a.ID})
	require.NoError(t, err)
	expected := 0
	for _, i := range issues {
		if i.Status == domain.IssueAutoFixed {
			expected++
			assert.True(t, i.AutoFixable)
			assert.Equal(t, domain.RiskLow, i.Risk)
		}
		if i.Type == analyzer.TypeThinContent {
			assert.Equal(t, domain.IssuePending, i.Status)
		}
	}
	assert.Equal(t, expected, fixed)
	assert.Positive(t, fixed)

	lazy := issueTypes(issues)[analyzer.TypeImageNoLazyLoading]
	require.NotNil(t, lazy)
	assert.Equal(t, domain.IssueAutoFixed, lazy.Status)

	siblings, err := h.store.ListDrafts(ctx, domain.DraftFilter{IssueID: lazy.ID})
	require.NoError(t, err)
	for _, d := range siblings {
		assert.Equal(t, domain.DraftRejected, d.Status)
	}

	changes, err := h.store.ListChanges(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, changes, fixed)

	again, err := h.orch.AutoFix(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestRun_AutoApplyOnFinalize(t *testing.T) {
	h := newHarness(t, audit.Config{AutoApplyOnFinalize: true}, staticCrawler(thinUntitledPage()), nil, nil)
	ctx := context.Background()

	a, err := h.orch.Trigger(ctx, h.website.ID, "safe")
	require.NoError(t, err)
	require.NoError(t, h.orch.Run(ctx, a.ID))

	ds, err := h.store.ListDrafts(ctx, domain.DraftFilter{AuditID: a.ID})
	require.NoError(t, err)

	applied := 0
	for _, d := range ds {
		if d.Confidence() >= 0.90 {
			assert.Equal(t, domain.DraftApplied, d.Status, d.Type)
			applied++
		} else {
			assert.Equal(t, domain.DraftPending, d.Status, d.Type)
		}
	}
	assert.Positive(t, applied)

	changes, err := h.store.ListChanges(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, changes, applied)
}

func TestStartAndCancel(t *testing.T) {
	started := make(chan struct{})
	c := &fakeCrawler{crawlFunc: func(ctx context.Context, _ string, _ int, _ crawler.PageFunc) ([]*crawler.PageRecord, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	h := newHarness(t, audit.Config{MaxConcurrentAudits: 1}, c, nil, nil)
	ctx := context.Background()

	a, err := h.orch.Trigger(ctx, h.website.ID, "safe")
	require.NoError(t, err)
	require.NoError(t, h.orch.Start(a.ID))
	<-started

	assert.True(t, h.orch.Cancel(a.ID))
	require.Eventually(t, func() bool {
		got, getErr := h.store.GetAudit(ctx, a.ID)
		return getErr == nil && got.Status == domain.AuditFailed
	}, 2*time.Second, 10*time.Millisecond)

	got, err := h.store.GetAudit(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "audit cancelled", *got.ErrorMessage)

	require.Eventually(t, func() bool { return !h.orch.Cancel(a.ID) }, time.Second, 10*time.Millisecond)
	require.NoError(t, h.orch.Shutdown(ctx))
	assert.ErrorIs(t, h.orch.Start(a.ID), audit.ErrRunnerStopped)
}
