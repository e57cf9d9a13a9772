package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
)

const changeColumns = `id, website_id, audit_id, issue_id, draft_id, page_url, change_type,
		before_value, after_value, source, applied_at, rolled_back, rolled_back_at`

func insertChange(ctx context.Context, ex sqlx.ExecerContext, c *domain.Change) error {
	query := `
		INSERT INTO changes (id, website_id, audit_id, issue_id, draft_id, page_url, change_type,
			before_value, after_value, source, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := ex.ExecContext(ctx, query,
		c.ID, c.WebsiteID, c.AuditID, c.IssueID, c.DraftID, c.PageURL, c.ChangeType,
		c.BeforeValue, c.AfterValue, c.Source, c.AppliedAt,
	); err != nil {
		return fmt.Errorf("insert change: %w", err)
	}
	return nil
}

func (s *Store) GetChange(ctx context.Context, id string) (*domain.Change, error) {
	var c domain.Change
	err := s.db.GetContext(ctx, &c, `SELECT `+changeColumns+` FROM changes WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("change %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get change: %w", err)
	}
	return &c, nil
}

func (s *Store) ListChanges(ctx context.Context, auditID string) ([]*domain.Change, error) {
	query := `
		SELECT ` + changeColumns + `
		FROM changes
		WHERE ($1 = '' OR audit_id::text = $1)
		ORDER BY applied_at, id`
	out := make([]*domain.Change, 0)
	if err := s.db.SelectContext(ctx, &out, query, auditID); err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	return out, nil
}

// RollbackChange sets the rollback marker once.
func (s *Store) RollbackChange(ctx context.Context, id string, at time.Time) (*domain.Change, error) {
	query := `
		UPDATE changes
		SET rolled_back = TRUE, rolled_back_at = $2
		WHERE id = $1 AND NOT rolled_back
		RETURNING ` + changeColumns
	var c domain.Change
	err := s.db.GetContext(ctx, &c, query, id, at)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rollback change: %w", err)
	}

	if _, getErr := s.GetChange(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("change %s: %w", id, domain.ErrAlreadyRolledBack)
}
