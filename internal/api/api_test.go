package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawinstinctart/rawauditpro/internal/activity"
	"github.com/rawinstinctart/rawauditpro/internal/api"
	"github.com/rawinstinctart/rawauditpro/internal/audit"
	"github.com/rawinstinctart/rawauditpro/internal/crawler"
	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/drafts"
	"github.com/rawinstinctart/rawauditpro/internal/imaging"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
	"github.com/rawinstinctart/rawauditpro/internal/memstore"
	"github.com/rawinstinctart/rawauditpro/internal/report"
)

type stubCrawler struct {
	crawlFunc func(ctx context.Context, seed string) ([]*crawler.PageRecord, error)
}

func (s *stubCrawler) Crawl(ctx context.Context, seed string, _ int, onPage crawler.PageFunc) ([]*crawler.PageRecord, error) {
	pages, err := s.crawlFunc(ctx, seed)
	for i, p := range pages {
		if onPage != nil {
			onPage(i+1, p)
		}
	}
	return pages, err
}

type noImages struct{}

func (noImages) InspectAll(ctx context.Context, _ []crawler.ImageRef) ([]*imaging.ImageRecord, error) {
	return nil, ctx.Err()
}

func untitledPage(seed string) *crawler.PageRecord {
	base := strings.TrimSuffix(seed, "/")
	return &crawler.PageRecord{
		URL:        seed,
		StatusCode: 200,
		LoadTimeMs: 100,
		H1:         []string{"Clay Works Studio"},
		BodyText:   strings.Repeat("pottery ", 80),
		WordCount:  80,
		Links: []crawler.Link{
			{URL: base + "/a", Internal: true},
			{URL: base + "/b", Internal: true},
			{URL: base + "/c", Internal: true},
		},
	}
}

type testAPI struct {
	router  *gin.Engine
	store   *memstore.Store
	orch    *audit.Orchestrator
	crawler *stubCrawler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memstore.New()
	log := logger.NewNop()
	c := &stubCrawler{crawlFunc: func(_ context.Context, seed string) ([]*crawler.PageRecord, error) {
		return []*crawler.PageRecord{untitledPage(seed)}, nil
	}}
	manager := drafts.NewManager(store, log)
	orch := audit.New(audit.Config{MaxPages: 5}, audit.Dependencies{
		Store:   store,
		Crawler: c,
		Images:  noImages{},
		Drafts:  manager,
		Events:  activity.NewRepositorySink(store),
		Logger:  log,
	})
	t.Cleanup(func() { _ = orch.Shutdown(context.Background()) })

	router := gin.New()
	api.NewHandler(store, orch, manager, log).RegisterRoutes(router)
	return &testAPI{router: router, store: store, orch: orch, crawler: c}
}

func (ta *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ta.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (ta *testAPI) createSite(t *testing.T) *domain.Website {
	t.Helper()
	w := ta.do(t, http.MethodPost, "/api/v1/websites", map[string]string{
		"name": "Clay Works", "url": "HTTPS://Example.com/?utm_source=ad",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[*domain.Website](t, w)
}

// finalizedAudit triggers an audit and waits for it to finish.
func (ta *testAPI) finalizedAudit(t *testing.T, site *domain.Website, policyName string) *domain.Audit {
	t.Helper()
	w := ta.do(t, http.MethodPost, "/api/v1/websites/"+site.ID+"/audits", map[string]string{"policy": policyName})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	a := decode[*domain.Audit](t, w)

	require.Eventually(t, func() bool {
		got, err := ta.store.GetAudit(context.Background(), a.ID)
		return err == nil && got.Status.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)

	got, err := ta.store.GetAudit(context.Background(), a.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AuditFinalized, got.Status)
	return got
}

type draftList struct {
	Drafts []*domain.Draft `json:"drafts"`
	Count  int             `json:"count"`
}

type issueList struct {
	Issues []*domain.Issue `json:"issues"`
	Count  int             `json:"count"`
}

func TestWebsites_CRUD(t *testing.T) {
	ta := newTestAPI(t)
	site := ta.createSite(t)
	assert.Equal(t, "https://example.com/", site.URL)

	w := ta.do(t, http.MethodGet, "/api/v1/websites/"+site.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ta.do(t, http.MethodPut, "/api/v1/websites/"+site.ID, map[string]string{"name": "Clay Works Co", "url": "https://clayworks.example"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Clay Works Co", decode[*domain.Website](t, w).Name)

	w = ta.do(t, http.MethodGet, "/api/v1/websites", nil)
	assert.Equal(t, float64(1), decode[map[string]any](t, w)["count"])

	w = ta.do(t, http.MethodPost, "/api/v1/websites", map[string]string{"name": "Bad", "url": "ftp://example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ta.do(t, http.MethodPost, "/api/v1/websites", map[string]string{"url": "https://example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ta.do(t, http.MethodDelete, "/api/v1/websites/"+site.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ta.do(t, http.MethodGet, "/api/v1/websites/"+site.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not found")
}

func TestTriggerAudit_Errors(t *testing.T) {
	ta := newTestAPI(t)
	site := ta.createSite(t)

	w := ta.do(t, http.MethodPost, "/api/v1/websites/"+site.ID+"/audits", map[string]string{"policy": "reckless"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ta.do(t, http.MethodPost, "/api/v1/websites/missing/audits", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	block := make(chan struct{})
	ta.crawler.crawlFunc = func(ctx context.Context, _ string) ([]*crawler.PageRecord, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, ctx.Err()
	}
	defer close(block)

	w = ta.do(t, http.MethodPost, "/api/v1/websites/"+site.ID+"/audits", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	first := decode[*domain.Audit](t, w)
	assert.Equal(t, "balanced", first.Policy)

	w = ta.do(t, http.MethodPost, "/api/v1/websites/"+site.ID+"/audits", map[string]string{"policy": "safe"})
	assert.Equal(t, http.StatusConflict, w.Code)

	require.Eventually(t, func() bool {
		w := ta.do(t, http.MethodGet, "/api/v1/audits/"+first.ID+"/status", nil)
		return decode[api.StatusResponse](t, w).Status == domain.AuditCrawling
	}, 2*time.Second, 10*time.Millisecond)

	w = ta.do(t, http.MethodPost, "/api/v1/audits/"+first.ID+"/cancel", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		w := ta.do(t, http.MethodGet, "/api/v1/audits/"+first.ID+"/status", nil)
		st := decode[api.StatusResponse](t, w)
		return st.Status == domain.AuditFailed && st.CoarseStatus == domain.CoarseFailed
	}, 2*time.Second, 10*time.Millisecond)

	w = ta.do(t, http.MethodPost, "/api/v1/audits/"+first.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAuditStatusAndLists(t *testing.T) {
	ta := newTestAPI(t)
	site := ta.createSite(t)
	a := ta.finalizedAudit(t, site, "balanced")

	w := ta.do(t, http.MethodGet, "/api/v1/audits/"+a.ID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[api.StatusResponse](t, w)
	assert.Equal(t, domain.AuditFinalized, st.Status)
	assert.Equal(t, domain.CoarseCompleted, st.CoarseStatus)
	assert.Equal(t, 100, st.Progress)

	w = ta.do(t, http.MethodGet, "/api/v1/audits/"+a.ID+"/issues?status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	issues := decode[issueList](t, w)
	require.NotEmpty(t, issues.Issues)
	for _, i := range issues.Issues {
		assert.Equal(t, domain.IssuePending, i.Status)
	}

	w = ta.do(t, http.MethodGet, "/api/v1/issues/"+issues.Issues[0].ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, issues.Issues[0].Type, decode[*domain.Issue](t, w).Type)

	w = ta.do(t, http.MethodGet, "/api/v1/issues/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ta.do(t, http.MethodGet, "/api/v1/audits/"+a.ID+"/issues?status=fixed,auto_fixed", nil)
	assert.Equal(t, 0, decode[issueList](t, w).Count)

	w = ta.do(t, http.MethodGet, "/api/v1/audits/"+a.ID+"/issues?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ta.do(t, http.MethodGet, "/api/v1/audits/missing/issues", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ta.do(t, http.MethodGet, "/api/v1/audits/"+a.ID+"/activity?limit=50", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"action":"completed"`)

	w = ta.do(t, http.MethodGet, "/api/v1/audits/"+a.ID+"/activity?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ta.do(t, http.MethodGet, "/api/v1/websites/"+site.ID+"/audits", nil)
	assert.Equal(t, float64(1), decode[map[string]any](t, w)["count"])
}

func TestDraftLifecycle(t *testing.T) {
	ta := newTestAPI(t)
	site := ta.createSite(t)
	a := ta.finalizedAudit(t, site, "balanced")

	w := ta.do(t, http.MethodGet, "/api/v1/audits/"+a.ID+"/drafts?status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[draftList](t, w)
	require.GreaterOrEqual(t, list.Count, 2)
	first, second := list.Drafts[0], list.Drafts[1]

	w = ta.do(t, http.MethodPost, "/api/v1/drafts/"+first.ID+"/apply", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "apply requires approval")

	w = ta.do(t, http.MethodPut, "/api/v1/drafts/"+first.ID+"/mode", map[string]string{"variant": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ta.do(t, http.MethodPut, "/api/v1/drafts/"+first.ID+"/mode", map[string]string{"variant": "Safe"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	selected := decode[*domain.Draft](t, w)
	assert.Equal(t, domain.VariantSafe, selected.SelectedVariant)
	assert.Equal(t, first.ProposedBalanced, selected.ProposedBalanced)
	assert.Equal(t, drafts.Diff(first.CurrentValue, first.ProposedSafe), selected.Diff)

	w = ta.do(t, http.MethodPost, "/api/v1/drafts/"+first.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ta.do(t, http.MethodPut, "/api/v1/drafts/"+first.ID+"/mode", map[string]string{"variant": "aggressive"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ta.do(t, http.MethodPost, "/api/v1/drafts/"+first.ID+"/apply", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	applied := decode[struct {
		Draft  *domain.Draft  `json:"draft"`
		Change *domain.Change `json:"change"`
	}](t, w)
	assert.Equal(t, domain.DraftApplied, applied.Draft.Status)
	assert.Equal(t, first.ProposedSafe, applied.Change.AfterValue)

	w = ta.do(t, http.MethodPost, "/api/v1/drafts/"+second.ID+"/reject", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = ta.do(t, http.MethodPost, "/api/v1/drafts/"+second.ID+"/approve", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ta.do(t, http.MethodPost, "/api/v1/changes/"+applied.Change.ID+"/rollback", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[*domain.Change](t, w).RolledBack)
	w = ta.do(t, http.MethodPost, "/api/v1/changes/"+applied.Change.ID+"/rollback", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ta.do(t, http.MethodGet, "/api/v1/audits/"+a.ID+"/changes", nil)
	assert.Equal(t, float64(1), decode[map[string]any](t, w)["count"])

	w = ta.do(t, http.MethodGet, "/api/v1/drafts/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBulkOperations(t *testing.T) {
	ta := newTestAPI(t)
	site := ta.createSite(t)
	a := ta.finalizedAudit(t, site, "balanced")

	w := ta.do(t, http.MethodGet, "/api/v1/audits/"+a.ID+"/drafts", nil)
	list := decode[draftList](t, w)
	require.GreaterOrEqual(t, list.Count, 3)
	ids := []string{list.Drafts[0].ID, list.Drafts[1].ID, list.Drafts[2].ID}

	w = ta.do(t, http.MethodPost, "/api/v1/drafts/"+ids[0]+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = ta.do(t, http.MethodPost, "/api/v1/drafts/"+ids[0]+"/apply", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ta.do(t, http.MethodPost, "/api/v1/drafts/bulk-approve", map[string][]string{"ids": ids})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[drafts.BulkResult](t, w)
	assert.Equal(t, 3, res.Requested)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Skipped)

	w = ta.do(t, http.MethodPost, "/api/v1/drafts/bulk-apply", map[string][]string{"ids": append(ids, "missing")})
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[drafts.BulkResult](t, w)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Failed)

	w = ta.do(t, http.MethodPost, "/api/v1/drafts/bulk-apply", map[string][]string{"ids": {}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAutoFixAutoApplyAndReport(t *testing.T) {
	ta := newTestAPI(t)
	site := ta.createSite(t)
	a := ta.finalizedAudit(t, site, "safe")

	w := ta.do(t, http.MethodGet, "/api/v1/audits/"+a.ID+"/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	before := decode[report.Report](t, w)
	assert.Equal(t, *a.HealthScore, before.BeforeScore)
	assert.Equal(t, before.BeforeScore, before.AfterScore)
	assert.Zero(t, before.FixedCount)

	w = ta.do(t, http.MethodPost, "/api/v1/audits/"+a.ID+"/autoapply", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	applied := decode[map[string]int](t, w)["applied"]
	assert.Positive(t, applied)

	w = ta.do(t, http.MethodPost, "/api/v1/audits/"+a.ID+"/autofix", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ta.do(t, http.MethodGet, "/api/v1/audits/"+a.ID+"/report", nil)
	after := decode[report.Report](t, w)
	assert.Equal(t, before.BeforeScore, after.BeforeScore)
	assert.Greater(t, after.AfterScore, after.BeforeScore)
	assert.Positive(t, after.FixedCount)
	assert.LessOrEqual(t, len(after.TopIssues), report.TopIssueLimit)

	w = ta.do(t, http.MethodGet, "/api/v1/audits/missing/report", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
