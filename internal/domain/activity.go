package domain

import "time"

// ActivityEvent is an append-only observability record. Nothing reads these
// for control flow.
type ActivityEvent struct {
	ID        int64     `db:"id"         json:"id"`
	AuditID   string    `db:"audit_id"   json:"audit_id"`
	WebsiteID string    `db:"website_id" json:"website_id"`
	Agent     string    `db:"agent"      json:"agent"`
	Message   string    `db:"message"    json:"message"`
	Reasoning string    `db:"reasoning"  json:"reasoning,omitempty"`
	Action    string    `db:"action"     json:"action,omitempty"`
	Metadata  JSONBMap  `db:"metadata"   json:"metadata,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
