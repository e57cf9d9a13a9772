package domain

import "time"

// Website is an audited site owned by an account.
type Website struct {
	ID          string     `db:"id"            json:"id"`
	AccountID   string     `db:"account_id"    json:"account_id"`
	Name        string     `db:"name"          json:"name"`
	URL         string     `db:"url"           json:"url"`
	HealthScore *int       `db:"health_score"  json:"health_score,omitempty"`
	LastAuditAt *time.Time `db:"last_audit_at" json:"last_audit_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at"    json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"    json:"updated_at"`
}
