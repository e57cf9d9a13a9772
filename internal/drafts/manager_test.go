package drafts_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/drafts"
	"github.com/rawinstinctart/rawauditpro/internal/memstore"
)

type fixture struct {
	store   *memstore.Store
	manager *drafts.Manager
	website *domain.Website
	audit   *domain.Audit
}

func newFixture(t *testing.T, policyName string, opts ...drafts.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()

	w := &domain.Website{Name: "Clay Works", URL: "https://clay-works.example"}
	require.NoError(t, store.CreateWebsite(ctx, w))
	a := &domain.Audit{WebsiteID: w.ID, Status: domain.AuditFinalized, Policy: policyName}
	require.NoError(t, store.CreateAudit(ctx, a))

	opts = append([]drafts.Option{drafts.WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	})}, opts...)
	return &fixture{
		store:   store,
		manager: drafts.NewManager(store, nil, opts...),
		website: w,
		audit:   a,
	}
}

func (f *fixture) issue(t *testing.T) *domain.Issue {
	t.Helper()
	i := &domain.Issue{
		AuditID:      f.audit.ID,
		WebsiteID:    f.website.ID,
		PageURL:      "https://clay-works.example/",
		Type:         "missing_title",
		Severity:     domain.SeverityCritical,
		Risk:         domain.RiskLow,
		CurrentValue: "",
		Status:       domain.IssuePending,
	}
	require.NoError(t, f.store.CreateIssue(context.Background(), i))
	return i
}

func (f *fixture) draft(t *testing.T, issue *domain.Issue, variant domain.Variant, confidence float64) *domain.Draft {
	t.Helper()
	d := &domain.Draft{
		AuditID:              f.audit.ID,
		WebsiteID:            f.website.ID,
		PageURL:              "https://clay-works.example/",
		Type:                 "missing_title",
		ProposedSafe:         "Clay Works",
		ProposedBalanced:     "Pottery Classes | Clay Works",
		ProposedAggressive:   "Pottery Classes for Beginners | Clay Works",
		ConfidenceSafe:       confidence,
		ConfidenceBalanced:   confidence,
		ConfidenceAggressive: confidence,
		SelectedVariant:      variant,
		Status:               domain.DraftPending,
	}
	if issue != nil {
		d.IssueID = &issue.ID
	}
	require.NoError(t, f.store.CreateDraft(context.Background(), d))
	return d
}

func TestManager_ApproveThenApply(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "balanced")
	ctx := context.Background()
	issue := f.issue(t)
	d := f.draft(t, issue, domain.VariantBalanced, 0.8)

	approved, err := f.manager.Approve(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DraftApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)

	applied, change, err := f.manager.Apply(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DraftApplied, applied.Status)
	require.NotNil(t, applied.AppliedAt)

	assert.Equal(t, domain.ChangeSourceDraftApply, change.Source)
	assert.Equal(t, "Pottery Classes | Clay Works", change.AfterValue)
	assert.Equal(t, d.ID, *change.DraftID)
	assert.Equal(t, issue.ID, *change.IssueID)

	gotIssue, err := f.store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueFixed, gotIssue.Status)

	changes, err := f.store.ListChanges(ctx, f.audit.ID)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
}

func TestManager_ApplyRequiresApproval(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "balanced")
	ctx := context.Background()
	d := f.draft(t, f.issue(t), domain.VariantBalanced, 0.99)

	_, _, err := f.manager.Apply(ctx, d.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	got, err := f.store.GetDraft(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DraftPending, got.Status)

	changes, err := f.store.ListChanges(ctx, f.audit.ID)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestManager_RejectIsTerminal(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "balanced")
	ctx := context.Background()
	d := f.draft(t, nil, domain.VariantBalanced, 0.5)

	_, err := f.manager.Reject(ctx, d.ID)
	require.NoError(t, err)

	_, err = f.manager.Approve(ctx, d.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = f.manager.Reject(ctx, d.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.manager.Approve(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManager_SelectModeLeavesProposalsUntouched(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "balanced")
	ctx := context.Background()
	d := f.draft(t, nil, domain.VariantBalanced, 0.8)

	got, err := f.manager.SelectMode(ctx, d.ID, domain.VariantAggressive)
	require.NoError(t, err)
	assert.Equal(t, domain.VariantAggressive, got.SelectedVariant)
	assert.Equal(t, d.ProposedSafe, got.ProposedSafe)
	assert.Equal(t, d.ProposedBalanced, got.ProposedBalanced)
	assert.Equal(t, d.ProposedAggressive, got.ProposedAggressive)
	assert.Equal(t, d.ConfidenceAggressive, got.ConfidenceAggressive)

	_, err = f.manager.SelectMode(ctx, d.ID, "reckless")
	require.ErrorIs(t, err, drafts.ErrInvalidVariant)

	_, err = f.manager.Approve(ctx, d.ID)
	require.NoError(t, err)
	_, err = f.manager.SelectMode(ctx, d.ID, domain.VariantSafe)
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestManager_SelectModeRewritesDiff(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "balanced")
	ctx := context.Background()
	issue := f.issue(t)
	d := f.draft(t, issue, domain.VariantSafe, 0.8)

	got, err := f.manager.SelectMode(ctx, d.ID, domain.VariantAggressive)
	require.NoError(t, err)
	assert.Equal(t, drafts.Diff(d.CurrentValue, d.ProposedAggressive), got.Diff)
	assert.Contains(t, got.Diff, "+Pottery Classes for Beginners | Clay Works")
	assert.NotContains(t, got.Diff, "+Clay Works\n")

	_, err = f.manager.Approve(ctx, d.ID)
	require.NoError(t, err)
	applied, change, err := f.manager.Apply(ctx, d.ID)
	require.NoError(t, err)
	assert.Contains(t, applied.Diff, "+"+change.AfterValue)
}

func TestManager_BulkApproveSkipsWrongState(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "balanced")
	ctx := context.Background()

	a := f.draft(t, nil, domain.VariantBalanced, 0.8)
	b := f.draft(t, nil, domain.VariantBalanced, 0.8)
	c := f.draft(t, nil, domain.VariantBalanced, 0.8)
	_, err := f.manager.Approve(ctx, c.ID)
	require.NoError(t, err)
	_, _, err = f.manager.Apply(ctx, c.ID)
	require.NoError(t, err)

	res, err := f.manager.BulkApprove(ctx, []string{a.ID, b.ID, c.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Requested)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, drafts.OutcomeSkipped, res.Outcomes[2].Outcome)
}

func TestManager_BulkApply(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "balanced")
	ctx := context.Background()

	a := f.draft(t, f.issue(t), domain.VariantBalanced, 0.8)
	b := f.draft(t, f.issue(t), domain.VariantBalanced, 0.8)
	_, err := f.manager.Approve(ctx, a.ID)
	require.NoError(t, err)

	res, err := f.manager.BulkApply(ctx, []string{a.ID, b.ID, "missing", a.ID})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Requested)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Failed)
}

func TestManager_AutoApplyUnderSafe(t *testing.T) {
	t.Parallel()
	var applied []drafts.Trigger
	f := newFixture(t, "safe", drafts.WithOnApplied(func(_ context.Context, _ *domain.Draft, _ *domain.Change, tr drafts.Trigger) {
		applied = append(applied, tr)
	}))
	ctx := context.Background()
	issue := f.issue(t)
	d := f.draft(t, issue, domain.VariantSafe, 0.95)

	n, err := f.manager.AutoApply(ctx, f.audit.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.GetDraft(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DraftApplied, got.Status)
	require.NotNil(t, got.ApprovedAt)

	changes, err := f.store.ListChanges(ctx, f.audit.ID)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
	assert.Equal(t, []drafts.Trigger{drafts.TriggerAuto}, applied)

	n, err = f.manager.AutoApply(ctx, f.audit.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestManager_AutoApplyRespectsThreshold(t *testing.T) {
	t.Parallel()

	confidences := []float64{0.65, 0.75, 0.85, 0.95}
	appliedBy := make(map[string]map[float64]bool)

	for _, name := range []string{"safe", "balanced", "aggressive"} {
		f := newFixture(t, name)
		ctx := context.Background()
		ids := make(map[string]float64)
		for _, c := range confidences {
			ids[f.draft(t, nil, domain.VariantBalanced, c).ID] = c
		}

		_, err := f.manager.AutoApply(ctx, f.audit.ID)
		require.NoError(t, err)

		appliedBy[name] = make(map[float64]bool)
		list, err := f.store.ListDrafts(ctx, domain.DraftFilter{AuditID: f.audit.ID, Statuses: []domain.DraftStatus{domain.DraftApplied}})
		require.NoError(t, err)
		for _, d := range list {
			appliedBy[name][ids[d.ID]] = true
		}
	}

	assert.Equal(t, map[float64]bool{0.95: true}, appliedBy["safe"])
	assert.Equal(t, map[float64]bool{0.85: true, 0.95: true}, appliedBy["balanced"])
	assert.Equal(t, map[float64]bool{0.75: true, 0.85: true, 0.95: true}, appliedBy["aggressive"])
	for c := range appliedBy["safe"] {
		assert.True(t, appliedBy["aggressive"][c], "aggressive applies a superset of safe")
	}
}

func TestManager_ApplyRefusedAfterAutoFix(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "balanced")
	ctx := context.Background()
	issue := f.issue(t)
	d := f.draft(t, issue, domain.VariantBalanced, 0.8)
	_, err := f.manager.Approve(ctx, d.ID)
	require.NoError(t, err)

	_, err = f.store.AutoFixIssue(ctx, issue.ID, time.Now())
	require.NoError(t, err)

	_, _, err = f.manager.Apply(ctx, d.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	got, err := f.store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueAutoFixed, got.Status)

	changes, err := f.store.ListChanges(ctx, f.audit.ID)
	require.NoError(t, err)
	assert.Len(t, changes, 1, "only the auto-fix change is recorded")

	res, err := f.manager.BulkApply(ctx, []string{d.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
}

func TestManager_ConcurrentApproveReject(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "balanced")
	ctx := context.Background()
	d := f.draft(t, nil, domain.VariantBalanced, 0.8)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.manager.Approve(ctx, d.ID)
			} else {
				_, err = f.manager.Reject(ctx, d.ID)
			}
			if err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, domain.ErrInvalidState)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestManager_RollbackChange(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "balanced")
	ctx := context.Background()
	d := f.draft(t, f.issue(t), domain.VariantSafe, 0.9)
	_, err := f.manager.Approve(ctx, d.ID)
	require.NoError(t, err)
	_, change, err := f.manager.Apply(ctx, d.ID)
	require.NoError(t, err)

	rolled, err := f.manager.RollbackChange(ctx, change.ID)
	require.NoError(t, err)
	assert.True(t, rolled.RolledBack)
	require.NotNil(t, rolled.RolledBackAt)

	_, err = f.manager.RollbackChange(ctx, change.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyRolledBack)
}
