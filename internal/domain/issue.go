package domain

import "time"

// IssueStatus tracks remediation of a finding.
type IssueStatus string

const (
	IssuePending   IssueStatus = "pending"
	IssueApproved  IssueStatus = "approved"
	IssueRejected  IssueStatus = "rejected"
	IssueFixed     IssueStatus = "fixed"
	IssueAutoFixed IssueStatus = "auto_fixed"
)

// IsFixed reports whether the issue has been remediated by any path.
func (s IssueStatus) IsFixed() bool {
	return s == IssueFixed || s == IssueAutoFixed
}

// Issue is one finding on one page. Severity and Risk are set at analysis
// time and never recomputed.
type Issue struct {
	ID                 string      `db:"id"                  json:"id"`
	AuditID            string      `db:"audit_id"            json:"audit_id"`
	WebsiteID          string      `db:"website_id"          json:"website_id"`
	PageURL            string      `db:"page_url"            json:"page_url"`
	Type               string      `db:"issue_type"          json:"type"`
	Category           Category    `db:"category"            json:"category"`
	Severity           Severity    `db:"severity"            json:"severity"`
	Risk               Risk        `db:"risk"                json:"risk"`
	Title              string      `db:"title"               json:"title"`
	Description        string      `db:"description"         json:"description"`
	CurrentValue       string      `db:"current_value"       json:"current_value"`
	SuggestedValue     string      `db:"suggested_value"     json:"suggested_value"`
	ProposedSafe       string      `db:"proposed_safe"       json:"proposed_safe"`
	ProposedBalanced   string      `db:"proposed_balanced"   json:"proposed_balanced"`
	ProposedAggressive string      `db:"proposed_aggressive" json:"proposed_aggressive"`
	Reasoning          string      `db:"reasoning"           json:"reasoning"`
	Confidence         float64     `db:"confidence"          json:"confidence"`
	AutoFixable        bool        `db:"auto_fixable"        json:"auto_fixable"`
	Status             IssueStatus `db:"status"              json:"status"`
	CreatedAt          time.Time   `db:"created_at"          json:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at"          json:"updated_at"`
}

// IssueFilter narrows issue listings. Zero values match everything.
type IssueFilter struct {
	AuditID  string
	Statuses []IssueStatus
}

// Matches reports whether issue passes the filter.
func (f IssueFilter) Matches(issue *Issue) bool {
	if f.AuditID != "" && issue.AuditID != f.AuditID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if issue.Status == s {
			return true
		}
	}
	return false
}
