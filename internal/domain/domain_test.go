package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
)

func TestAuditStatus_Coarse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status domain.AuditStatus
		want   domain.CoarseStatus
	}{
		{domain.AuditQueued, domain.CoarsePending},
		{domain.AuditCrawling, domain.CoarseRunning},
		{domain.AuditAnalyzing, domain.CoarseRunning},
		{domain.AuditScoring, domain.CoarseRunning},
		{domain.AuditFinalized, domain.CoarseCompleted},
		{domain.AuditFailed, domain.CoarseFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.status.Coarse())
		})
	}
}

func TestAuditStatus_IsTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, domain.AuditFinalized.IsTerminal())
	assert.True(t, domain.AuditFailed.IsTerminal())
	for _, s := range domain.ActiveAuditStatuses {
		assert.False(t, s.IsTerminal(), s)
	}
}

func TestDraft_SelectedVariant(t *testing.T) {
	t.Parallel()

	d := &domain.Draft{
		ProposedSafe:         "s",
		ProposedBalanced:     "b",
		ProposedAggressive:   "a",
		ConfidenceSafe:       0.9,
		ConfidenceBalanced:   0.8,
		ConfidenceAggressive: 0.7,
		SelectedVariant:      domain.VariantAggressive,
	}
	assert.Equal(t, "a", d.SelectedValue())
	assert.InDelta(t, 0.7, d.Confidence(), 1e-9)

	d.SelectedVariant = domain.VariantSafe
	assert.Equal(t, "s", d.SelectedValue())
	assert.InDelta(t, 0.9, d.Confidence(), 1e-9)
}

func TestFilters(t *testing.T) {
	t.Parallel()

	issueID := "i-1"
	d := &domain.Draft{AuditID: "a", IssueID: &issueID, Status: domain.DraftPending}
	assert.True(t, domain.DraftFilter{AuditID: "a"}.Matches(d))
	assert.True(t, domain.DraftFilter{IssueID: "i-1", Statuses: []domain.DraftStatus{domain.DraftPending}}.Matches(d))
	assert.False(t, domain.DraftFilter{Statuses: []domain.DraftStatus{domain.DraftApplied}}.Matches(d))
	assert.False(t, domain.DraftFilter{IssueID: "other"}.Matches(d))

	issue := &domain.Issue{AuditID: "a", Status: domain.IssueAutoFixed}
	assert.True(t, domain.IssueFilter{AuditID: "a"}.Matches(issue))
	assert.False(t, domain.IssueFilter{Statuses: []domain.IssueStatus{domain.IssuePending}}.Matches(issue))
	assert.True(t, issue.Status.IsFixed())
}

func TestJSONBMap_ScanValue(t *testing.T) {
	t.Parallel()

	var m domain.JSONBMap
	require.NoError(t, m.Scan([]byte(`{"pages":2}`)))
	assert.InDelta(t, 2.0, m["pages"], 1e-9)

	v, err := domain.JSONBMap(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), v)

	assert.Error(t, m.Scan(42))
}

func TestSeverityCounts(t *testing.T) {
	t.Parallel()

	var c domain.SeverityCounts
	for _, s := range []domain.Severity{domain.SeverityCritical, domain.SeverityLow, domain.SeverityLow} {
		c.Add(s)
	}
	assert.Equal(t, 3, c.Total())
	assert.Equal(t, 2, c.Low)
	assert.Greater(t, domain.SeverityCritical.Rank(), domain.SeverityHigh.Rank())
	assert.Greater(t, domain.RiskHigh.Rank(), domain.RiskLow.Rank())
}
