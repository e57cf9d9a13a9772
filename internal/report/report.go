// Package report derives the audit report view from persisted issues. Nothing
// here is stored; every call recomputes from the current issue set.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rawinstinctart/rawauditpro/internal/analyzer"
	"github.com/rawinstinctart/rawauditpro/internal/domain"
)

// TopIssueLimit bounds Report.TopIssues.
const TopIssueLimit = 5

// Report is the before/after view of one audit.
type Report struct {
	AuditID      string                `json:"audit_id"`
	WebsiteID    string                `json:"website_id"`
	Status       domain.AuditStatus    `json:"status"`
	Policy       string                `json:"policy"`
	PagesScanned int                   `json:"pages_scanned"`
	BeforeScore  int                   `json:"before_score"`
	AfterScore   int                   `json:"after_score"`
	TotalIssues  int                   `json:"total_issues"`
	FixedCount   int                   `json:"fixed_count"`
	PendingCount int                   `json:"pending_count"`
	Severity     domain.SeverityCounts `json:"severity"`
	TopIssues    []*domain.Issue       `json:"top_issues"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
}

// Source is the read side Generate needs.
type Source interface {
	GetAudit(ctx context.Context, id string) (*domain.Audit, error)
	ListIssues(ctx context.Context, f domain.IssueFilter) ([]*domain.Issue, error)
}

// Generate loads the audit and its issues and builds the report.
func Generate(ctx context.Context, src Source, auditID string) (*Report, error) {
	a, err := src.GetAudit(ctx, auditID)
	if err != nil {
		return nil, fmt.Errorf("get audit %s: %w", auditID, err)
	}
	issues, err := src.ListIssues(ctx, domain.IssueFilter{AuditID: auditID})
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return Build(a, issues), nil
}

// Build computes the report. BeforeScore is the audit's stored score, or the
// score of the full issue set when the audit has none yet.
func Build(a *domain.Audit, issues []*domain.Issue) *Report {
	r := &Report{
		AuditID:      a.ID,
		WebsiteID:    a.WebsiteID,
		Status:       a.Status,
		Policy:       a.Policy,
		PagesScanned: a.PagesScanned,
		TotalIssues:  len(issues),
		Severity:     analyzer.CountBySeverity(issues),
		AfterScore:   analyzer.ScoreOpen(issues),
		CompletedAt:  a.CompletedAt,
	}
	if a.HealthScore != nil {
		r.BeforeScore = *a.HealthScore
	} else {
		r.BeforeScore = analyzer.ScoreIssues(issues)
	}

	pending := make([]*domain.Issue, 0, len(issues))
	for _, i := range issues {
		switch {
		case i.Status.IsFixed():
			r.FixedCount++
		case i.Status == domain.IssuePending:
			r.PendingCount++
			pending = append(pending, i)
		}
	}

	sort.SliceStable(pending, func(x, y int) bool { return priorityLess(pending[x], pending[y]) })
	if len(pending) > TopIssueLimit {
		pending = pending[:TopIssueLimit]
	}
	r.TopIssues = pending
	return r
}

// priorityLess orders by severity desc, risk asc, confidence desc, then id.
func priorityLess(a, b *domain.Issue) bool {
	if sa, sb := a.Severity.Rank(), b.Severity.Rank(); sa != sb {
		return sa > sb
	}
	if ra, rb := a.Risk.Rank(), b.Risk.Rank(); ra != rb {
		return ra < rb
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.ID < b.ID
}

// Improvement is the score gained by fixes so far.
func (r *Report) Improvement() int {
	return r.AfterScore - r.BeforeScore
}
