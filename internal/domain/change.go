package domain

import "time"

// Change sources.
const (
	ChangeSourceDraftApply = "draft_apply"
	ChangeSourceAutoFix    = "auto_fix"
)

// Change is the immutable record of an applied remediation. Only the
// rollback marker may be set after creation.
type Change struct {
	ID           string     `db:"id"             json:"id"`
	WebsiteID    string     `db:"website_id"     json:"website_id"`
	AuditID      string     `db:"audit_id"       json:"audit_id"`
	IssueID      *string    `db:"issue_id"       json:"issue_id,omitempty"`
	DraftID      *string    `db:"draft_id"       json:"draft_id,omitempty"`
	PageURL      string     `db:"page_url"       json:"page_url"`
	ChangeType   string     `db:"change_type"    json:"change_type"`
	BeforeValue  string     `db:"before_value"   json:"before_value"`
	AfterValue   string     `db:"after_value"    json:"after_value"`
	Source       string     `db:"source"         json:"source"`
	AppliedAt    time.Time  `db:"applied_at"     json:"applied_at"`
	RolledBack   bool       `db:"rolled_back"    json:"rolled_back"`
	RolledBackAt *time.Time `db:"rolled_back_at" json:"rolled_back_at,omitempty"`
}

// NewDraftChange records applying d's selected variant.
func NewDraftChange(d *Draft, at time.Time) *Change {
	draftID := d.ID
	return &Change{
		ID:          NewID(),
		WebsiteID:   d.WebsiteID,
		AuditID:     d.AuditID,
		IssueID:     d.IssueID,
		DraftID:     &draftID,
		PageURL:     d.PageURL,
		ChangeType:  d.Type,
		BeforeValue: d.CurrentValue,
		AfterValue:  d.SelectedValue(),
		Source:      ChangeSourceDraftApply,
		AppliedAt:   at,
	}
}

// NewAutoFixChange records an auto-fix of issue.
func NewAutoFixChange(issue *Issue, at time.Time) *Change {
	issueID := issue.ID
	return &Change{
		ID:          NewID(),
		WebsiteID:   issue.WebsiteID,
		AuditID:     issue.AuditID,
		IssueID:     &issueID,
		PageURL:     issue.PageURL,
		ChangeType:  issue.Type,
		BeforeValue: issue.CurrentValue,
		AfterValue:  issue.SuggestedValue,
		Source:      ChangeSourceAutoFix,
		AppliedAt:   at,
	}
}
