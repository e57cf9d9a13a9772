package domain

import "time"

// AuditStatus is the fine-grained audit lifecycle state.
type AuditStatus string

const (
	AuditQueued    AuditStatus = "queued"
	AuditCrawling  AuditStatus = "crawling"
	AuditAnalyzing AuditStatus = "analyzing"
	AuditScoring   AuditStatus = "scoring"
	AuditFinalized AuditStatus = "finalized"
	AuditFailed    AuditStatus = "failed"
)

// CoarseStatus is the four-state projection used by simple consumers.
type CoarseStatus string

const (
	CoarsePending   CoarseStatus = "pending"
	CoarseRunning   CoarseStatus = "running"
	CoarseCompleted CoarseStatus = "completed"
	CoarseFailed    CoarseStatus = "failed"
)

// Coarse projects s onto pending/running/completed/failed.
func (s AuditStatus) Coarse() CoarseStatus {
	switch s {
	case AuditQueued:
		return CoarsePending
	case AuditCrawling, AuditAnalyzing, AuditScoring:
		return CoarseRunning
	case AuditFinalized:
		return CoarseCompleted
	case AuditFailed:
		return CoarseFailed
	default:
		return CoarsePending
	}
}

// IsTerminal reports whether no further transition is possible.
func (s AuditStatus) IsTerminal() bool {
	return s == AuditFinalized || s == AuditFailed
}

// ActiveAuditStatuses are the non-terminal states.
var ActiveAuditStatuses = []AuditStatus{AuditQueued, AuditCrawling, AuditAnalyzing, AuditScoring}

// Audit is one execution of the pipeline against a Website.
type Audit struct {
	ID            string      `db:"id"             json:"id"`
	WebsiteID     string      `db:"website_id"     json:"website_id"`
	Status        AuditStatus `db:"status"         json:"status"`
	Progress      int         `db:"progress"       json:"progress"`
	CurrentStep   string      `db:"current_step"   json:"current_step"`
	Policy        string      `db:"policy"         json:"policy"`
	PagesScanned  int         `db:"pages_scanned"  json:"pages_scanned"`
	TotalIssues   int         `db:"total_issues"   json:"total_issues"`
	CriticalCount int         `db:"critical_count" json:"critical_count"`
	HighCount     int         `db:"high_count"     json:"high_count"`
	MediumCount   int         `db:"medium_count"   json:"medium_count"`
	LowCount      int         `db:"low_count"      json:"low_count"`
	HealthScore   *int        `db:"health_score"   json:"health_score,omitempty"`
	CrawlSnapshot JSONBMap    `db:"crawl_snapshot" json:"crawl_snapshot,omitempty"`
	ErrorMessage  *string     `db:"error_message"  json:"error_message,omitempty"`
	StartedAt     *time.Time  `db:"started_at"     json:"started_at,omitempty"`
	CompletedAt   *time.Time  `db:"completed_at"   json:"completed_at,omitempty"`
	CreatedAt     time.Time   `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"     json:"updated_at"`
}

// SeverityCounts aggregates issue counts for an audit.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Total sums all severities.
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low
}

// Add increments the bucket for s.
func (c *SeverityCounts) Add(s Severity) {
	switch s {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	case SeverityLow:
		c.Low++
	}
}

// AuditScore is written when an audit leaves the scoring phase.
type AuditScore struct {
	HealthScore int
	Counts      SeverityCounts
}

// AuditFilter narrows audit listings. Zero values match everything.
type AuditFilter struct {
	WebsiteID      string
	Statuses       []AuditStatus
	CompletedAfter *time.Time
	Limit          int
}

// Matches reports whether a passes the filter. Limit is applied by callers.
func (f AuditFilter) Matches(a *Audit) bool {
	if f.WebsiteID != "" && a.WebsiteID != f.WebsiteID {
		return false
	}
	if f.CompletedAfter != nil && (a.CompletedAt == nil || !a.CompletedAt.After(*f.CompletedAfter)) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if a.Status == s {
			return true
		}
	}
	return false
}
