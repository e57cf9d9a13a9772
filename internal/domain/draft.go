package domain

import "time"

// DraftStatus is the approval lifecycle of a proposed edit.
type DraftStatus string

const (
	DraftPending  DraftStatus = "pending"
	DraftApproved DraftStatus = "approved"
	DraftRejected DraftStatus = "rejected"
	DraftApplied  DraftStatus = "applied"
)

// Draft is one proposed edit. The three proposals and their confidences are
// fixed at creation; only SelectedVariant and Status move afterwards.
type Draft struct {
	ID                   string      `db:"id"                    json:"id"`
	AuditID              string      `db:"audit_id"              json:"audit_id"`
	WebsiteID            string      `db:"website_id"            json:"website_id"`
	IssueID              *string     `db:"issue_id"              json:"issue_id,omitempty"`
	PageURL              string      `db:"page_url"              json:"page_url"`
	Type                 string      `db:"draft_type"            json:"type"`
	CurrentValue         string      `db:"current_value"         json:"current_value"`
	ProposedSafe         string      `db:"proposed_safe"         json:"proposed_safe"`
	ProposedBalanced     string      `db:"proposed_balanced"     json:"proposed_balanced"`
	ProposedAggressive   string      `db:"proposed_aggressive"   json:"proposed_aggressive"`
	ConfidenceSafe       float64     `db:"confidence_safe"       json:"confidence_safe"`
	ConfidenceBalanced   float64     `db:"confidence_balanced"   json:"confidence_balanced"`
	ConfidenceAggressive float64     `db:"confidence_aggressive" json:"confidence_aggressive"`
	SelectedVariant      Variant     `db:"selected_variant"      json:"selected_variant"`
	Diff                 string      `db:"diff"                  json:"diff"`
	Reasoning            string      `db:"reasoning"             json:"reasoning"`
	Source               string      `db:"source"                json:"source"`
	Status               DraftStatus `db:"status"                json:"status"`
	ApprovedAt           *time.Time  `db:"approved_at"           json:"approved_at,omitempty"`
	AppliedAt            *time.Time  `db:"applied_at"            json:"applied_at,omitempty"`
	CreatedAt            time.Time   `db:"created_at"            json:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at"            json:"updated_at"`
}

// Proposal returns the proposal text for v.
func (d *Draft) Proposal(v Variant) string {
	switch v {
	case VariantSafe:
		return d.ProposedSafe
	case VariantAggressive:
		return d.ProposedAggressive
	default:
		return d.ProposedBalanced
	}
}

// ConfidenceFor returns the confidence attached to variant v.
func (d *Draft) ConfidenceFor(v Variant) float64 {
	switch v {
	case VariantSafe:
		return d.ConfidenceSafe
	case VariantAggressive:
		return d.ConfidenceAggressive
	default:
		return d.ConfidenceBalanced
	}
}

// Confidence is the confidence of the currently selected variant.
func (d *Draft) Confidence() float64 {
	return d.ConfidenceFor(d.SelectedVariant)
}

// SelectedValue is the proposal text that applying the draft would write.
func (d *Draft) SelectedValue() string {
	return d.Proposal(d.SelectedVariant)
}

// DraftFilter narrows draft listings.
type DraftFilter struct {
	AuditID  string
	IssueID  string
	Statuses []DraftStatus
}

// Matches reports whether d passes the filter.
func (f DraftFilter) Matches(d *Draft) bool {
	if f.AuditID != "" && d.AuditID != f.AuditID {
		return false
	}
	if f.IssueID != "" && (d.IssueID == nil || *d.IssueID != f.IssueID) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if d.Status == s {
			return true
		}
	}
	return false
}
