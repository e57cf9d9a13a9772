package database

import (
	"context"
	"fmt"
	"slices"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
)

const defaultActivityLimit = 200

func (s *Store) AppendActivity(ctx context.Context, e *domain.ActivityEvent) error {
	query := `
		INSERT INTO activity_logs (audit_id, website_id, agent, message, reasoning, action, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	if err := s.db.QueryRowxContext(ctx, query,
		domain.StringPtr(e.AuditID), domain.StringPtr(e.WebsiteID), e.Agent, e.Message,
		e.Reasoning, e.Action, e.Metadata,
	).Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivity returns the latest limit events of an audit, oldest first.
func (s *Store) ListActivity(ctx context.Context, auditID string, limit int) ([]*domain.ActivityEvent, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	query := `
		SELECT id, COALESCE(audit_id::text, '') AS audit_id, COALESCE(website_id::text, '') AS website_id,
		       agent, message, reasoning, action, metadata, created_at
		FROM activity_logs
		WHERE audit_id::text = $1
		ORDER BY id DESC
		LIMIT $2`
	out := make([]*domain.ActivityEvent, 0)
	if err := s.db.SelectContext(ctx, &out, query, auditID, limit); err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}
