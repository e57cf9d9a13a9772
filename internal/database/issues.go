package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
)

const issueColumns = `id, audit_id, website_id, page_url, issue_type, category, severity, risk,
		title, description, current_value, suggested_value, proposed_safe, proposed_balanced,
		proposed_aggressive, reasoning, confidence, auto_fixable, status, created_at, updated_at`

func (s *Store) CreateIssue(ctx context.Context, i *domain.Issue) error {
	if i.ID == "" {
		i.ID = domain.NewID()
	}
	if i.Status == "" {
		i.Status = domain.IssuePending
	}
	query := `
		INSERT INTO issues (id, audit_id, website_id, page_url, issue_type, category, severity, risk,
			title, description, current_value, suggested_value, proposed_safe, proposed_balanced,
			proposed_aggressive, reasoning, confidence, auto_fixable, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING created_at, updated_at`
	err := s.db.QueryRowxContext(ctx, query,
		i.ID, i.AuditID, i.WebsiteID, i.PageURL, i.Type, i.Category, i.Severity, i.Risk,
		i.Title, i.Description, i.CurrentValue, i.SuggestedValue, i.ProposedSafe, i.ProposedBalanced,
		i.ProposedAggressive, i.Reasoning, i.Confidence, i.AutoFixable, i.Status,
	).Scan(&i.CreatedAt, &i.UpdatedAt)
	if isPQCode(err, pqForeignKeyViolation) {
		return fmt.Errorf("audit %s: %w", i.AuditID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

func (s *Store) GetIssue(ctx context.Context, id string) (*domain.Issue, error) {
	var i domain.Issue
	err := s.db.GetContext(ctx, &i, `SELECT `+issueColumns+` FROM issues WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issue %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return &i, nil
}

func (s *Store) ListIssues(ctx context.Context, f domain.IssueFilter) ([]*domain.Issue, error) {
	statuses := make([]string, len(f.Statuses))
	for i, st := range f.Statuses {
		statuses[i] = string(st)
	}
	query := `
		SELECT ` + issueColumns + `
		FROM issues
		WHERE ($1 = '' OR audit_id::text = $1)
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY created_at, id`

	out := make([]*domain.Issue, 0)
	if err := s.db.SelectContext(ctx, &out, query, f.AuditID, pq.Array(statuses)); err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return out, nil
}

// AutoFixIssue locks the issue, moves it pending → auto_fixed, rejects its
// pending drafts and records the Change in one transaction.
func (s *Store) AutoFixIssue(ctx context.Context, id string, at time.Time) (*domain.Change, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin auto-fix: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var i domain.Issue
	err = tx.GetContext(ctx, &i, `SELECT `+issueColumns+` FROM issues WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issue %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock issue: %w", err)
	}
	if i.Status != domain.IssuePending {
		return nil, fmt.Errorf("%w: issue is %s", domain.ErrInvalidState, i.Status)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE issues SET status = 'auto_fixed', updated_at = $2 WHERE id = $1`, id, at); err != nil {
		return nil, fmt.Errorf("mark issue auto-fixed: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE drafts SET status = 'rejected', updated_at = $2 WHERE issue_id = $1 AND status = 'pending'`, id, at); err != nil {
		return nil, fmt.Errorf("reject sibling drafts: %w", err)
	}

	c := domain.NewAutoFixChange(&i, at)
	if err = insertChange(ctx, tx, c); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit auto-fix: %w", err)
	}
	return c, nil
}
