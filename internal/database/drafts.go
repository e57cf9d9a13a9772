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

const draftColumns = `id, audit_id, website_id, issue_id, page_url, draft_type, current_value,
		proposed_safe, proposed_balanced, proposed_aggressive, confidence_safe, confidence_balanced,
		confidence_aggressive, selected_variant, diff, reasoning, source, status, approved_at,
		applied_at, created_at, updated_at`

func (s *Store) CreateDraft(ctx context.Context, d *domain.Draft) error {
	if d.ID == "" {
		d.ID = domain.NewID()
	}
	if d.Status == "" {
		d.Status = domain.DraftPending
	}
	query := `
		INSERT INTO drafts (id, audit_id, website_id, issue_id, page_url, draft_type, current_value,
			proposed_safe, proposed_balanced, proposed_aggressive, confidence_safe, confidence_balanced,
			confidence_aggressive, selected_variant, diff, reasoning, source, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at, updated_at`
	err := s.db.QueryRowxContext(ctx, query,
		d.ID, d.AuditID, d.WebsiteID, d.IssueID, d.PageURL, d.Type, d.CurrentValue,
		d.ProposedSafe, d.ProposedBalanced, d.ProposedAggressive, d.ConfidenceSafe, d.ConfidenceBalanced,
		d.ConfidenceAggressive, d.SelectedVariant, d.Diff, d.Reasoning, d.Source, d.Status,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if isPQCode(err, pqForeignKeyViolation) {
		return fmt.Errorf("audit %s: %w", d.AuditID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	return nil
}

func (s *Store) GetDraft(ctx context.Context, id string) (*domain.Draft, error) {
	var d domain.Draft
	err := s.db.GetContext(ctx, &d, `SELECT `+draftColumns+` FROM drafts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("draft %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	return &d, nil
}

func (s *Store) ListDrafts(ctx context.Context, f domain.DraftFilter) ([]*domain.Draft, error) {
	statuses := make([]string, len(f.Statuses))
	for i, st := range f.Statuses {
		statuses[i] = string(st)
	}
	query := `
		SELECT ` + draftColumns + `
		FROM drafts
		WHERE ($1 = '' OR audit_id::text = $1)
		  AND ($2 = '' OR issue_id::text = $2)
		  AND (cardinality($3::text[]) = 0 OR status = ANY($3))
		ORDER BY created_at, id`

	out := make([]*domain.Draft, 0)
	if err := s.db.SelectContext(ctx, &out, query, f.AuditID, f.IssueID, pq.Array(statuses)); err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	return out, nil
}

// TransitionDraft is a single-statement compare-and-swap on status.
func (s *Store) TransitionDraft(ctx context.Context, id string, from, to domain.DraftStatus, at time.Time) (*domain.Draft, error) {
	query := `
		UPDATE drafts
		SET status = $3,
		    approved_at = CASE WHEN $3 = 'approved' THEN $4 ELSE approved_at END,
		    updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING ` + draftColumns
	var d domain.Draft
	err := s.db.GetContext(ctx, &d, query, id, from, to, at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.draftCASMiss(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("transition draft: %w", err)
	}
	return &d, nil
}

func (s *Store) SelectDraftVariant(ctx context.Context, id string, v domain.Variant, diff string) (*domain.Draft, error) {
	query := `
		UPDATE drafts
		SET selected_variant = $2, diff = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + draftColumns
	var d domain.Draft
	err := s.db.GetContext(ctx, &d, query, id, v, diff)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.draftCASMiss(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select draft variant: %w", err)
	}
	return &d, nil
}

// ApplyDraft locks the draft row and its issue and, in one transaction, marks
// the draft applied, marks the issue fixed and records the Change. A draft
// whose issue is already fixed is refused.
func (s *Store) ApplyDraft(ctx context.Context, id string, at time.Time) (*domain.Draft, *domain.Change, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin apply: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var d domain.Draft
	err = tx.GetContext(ctx, &d, `SELECT `+draftColumns+` FROM drafts WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("draft %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lock draft: %w", err)
	}
	if d.Status != domain.DraftApproved {
		return nil, nil, fmt.Errorf("%w: draft is %s", domain.ErrInvalidState, d.Status)
	}
	if d.IssueID != nil {
		var issueStatus domain.IssueStatus
		err = tx.GetContext(ctx, &issueStatus, `SELECT status FROM issues WHERE id = $1 FOR UPDATE`, *d.IssueID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("lock issue: %w", err)
		}
		if issueStatus.IsFixed() {
			return nil, nil, fmt.Errorf("%w: issue is already %s", domain.ErrInvalidState, issueStatus)
		}
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE drafts SET status = 'applied', applied_at = $2, updated_at = $2 WHERE id = $1`, id, at); err != nil {
		return nil, nil, fmt.Errorf("mark draft applied: %w", err)
	}
	d.Status = domain.DraftApplied
	d.AppliedAt = &at
	d.UpdatedAt = at

	if d.IssueID != nil {
		if _, err = tx.ExecContext(ctx, `
			UPDATE issues
			SET status = 'fixed', suggested_value = $2, updated_at = $3
			WHERE id = $1 AND status NOT IN ('fixed', 'auto_fixed')`,
			*d.IssueID, d.SelectedValue(), at,
		); err != nil {
			return nil, nil, fmt.Errorf("mark issue fixed: %w", err)
		}
	}

	c := domain.NewDraftChange(&d, at)
	if err = insertChange(ctx, tx, c); err != nil {
		return nil, nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit apply: %w", err)
	}
	return &d, c, nil
}

func (s *Store) draftCASMiss(ctx context.Context, id string) error {
	var status string
	err := s.db.GetContext(ctx, &status, `SELECT status FROM drafts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("draft %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get draft status: %w", err)
	}
	return fmt.Errorf("%w: draft is %s", domain.ErrInvalidState, status)
}
