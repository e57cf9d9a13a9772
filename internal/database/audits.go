package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
)

const auditColumns = `id, website_id, status, progress, current_step, policy, pages_scanned,
		total_issues, critical_count, high_count, medium_count, low_count, health_score,
		crawl_snapshot, error_message, started_at, completed_at, created_at, updated_at`

const activeAuditStatuses = `('queued', 'crawling', 'analyzing', 'scoring')`

// CreateAudit relies on the partial unique index uniq_audits_active_website
// to refuse a second non-terminal audit.
func (s *Store) CreateAudit(ctx context.Context, a *domain.Audit) error {
	if a.ID == "" {
		a.ID = domain.NewID()
	}
	if a.Status == "" {
		a.Status = domain.AuditQueued
	}
	query := `
		INSERT INTO audits (id, website_id, status, progress, current_step, policy)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`
	err := s.db.QueryRowxContext(ctx, query, a.ID, a.WebsiteID, a.Status, a.Progress, a.CurrentStep, a.Policy).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case isPQCode(err, pqUniqueViolation):
		return fmt.Errorf("website %s: %w", a.WebsiteID, domain.ErrAuditInProgress)
	case isPQCode(err, pqForeignKeyViolation):
		return fmt.Errorf("website %s: %w", a.WebsiteID, domain.ErrNotFound)
	default:
		return fmt.Errorf("insert audit: %w", err)
	}
}

func (s *Store) GetAudit(ctx context.Context, id string) (*domain.Audit, error) {
	var a domain.Audit
	err := s.db.GetContext(ctx, &a, `SELECT `+auditColumns+` FROM audits WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get audit: %w", err)
	}
	return &a, nil
}

// ListAudits returns newest first.
func (s *Store) ListAudits(ctx context.Context, f domain.AuditFilter) ([]*domain.Audit, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if f.WebsiteID != "" {
		args = append(args, f.WebsiteID)
		where = append(where, fmt.Sprintf("website_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, pq.Array(statuses))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if f.CompletedAfter != nil {
		args = append(args, *f.CompletedAfter)
		where = append(where, fmt.Sprintf("completed_at > $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + auditColumns + ` FROM audits`)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}

	out := make([]*domain.Audit, 0)
	if err := s.db.SelectContext(ctx, &out, b.String(), args...); err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	return out, nil
}

// ClaimAudit is the single-run guard: UPDATE ... WHERE status = 'queued'.
func (s *Store) ClaimAudit(ctx context.Context, id string, at time.Time) (*domain.Audit, error) {
	query := `
		UPDATE audits
		SET status = 'crawling', progress = 0, current_step = 'crawling',
		    started_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'queued'
		RETURNING ` + auditColumns
	var a domain.Audit
	err := s.db.GetContext(ctx, &a, query, id, at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.auditCASMiss(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("claim audit: %w", err)
	}
	return &a, nil
}

// AdvanceAudit is a compare-and-swap on status; progress only rises.
func (s *Store) AdvanceAudit(ctx context.Context, id string, from, to domain.AuditStatus, step string, progress int) error {
	query := `
		UPDATE audits
		SET status = $3, current_step = $4, progress = GREATEST(progress, $5), updated_at = NOW()
		WHERE id = $1 AND status = $2`
	err := execRequireRow(ctx, s.db, query, id, from, to, step, progress)
	if errors.Is(err, domain.ErrNotFound) {
		return s.auditCASMiss(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("advance audit: %w", err)
	}
	return nil
}

func (s *Store) UpdateProgress(ctx context.Context, id, step string, progress int) error {
	query := `
		UPDATE audits
		SET progress = GREATEST(progress, $2),
		    current_step = COALESCE(NULLIF($3, ''), current_step),
		    updated_at = NOW()
		WHERE id = $1 AND status IN ` + activeAuditStatuses
	err := execRequireRow(ctx, s.db, query, id, progress, step)
	if errors.Is(err, domain.ErrNotFound) {
		return s.auditCASMiss(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

func (s *Store) SaveCrawl(ctx context.Context, id string, pagesScanned int, snapshot domain.JSONBMap) error {
	query := `
		UPDATE audits
		SET pages_scanned = $2, crawl_snapshot = $3, updated_at = NOW()
		WHERE id = $1`
	if err := execRequireRow(ctx, s.db, query, id, pagesScanned, snapshot); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("audit %s: %w", id, err)
		}
		return fmt.Errorf("save crawl: %w", err)
	}
	return nil
}

// SaveScore writes the audit's score and counts and the website's
// last-known score in one transaction.
func (s *Store) SaveScore(ctx context.Context, id string, score domain.AuditScore, at time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save score: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var websiteID string
	err = tx.QueryRowxContext(ctx, `
		UPDATE audits
		SET health_score = $2, total_issues = $3, critical_count = $4, high_count = $5,
		    medium_count = $6, low_count = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING website_id`,
		id, score.HealthScore, score.Counts.Total(), score.Counts.Critical, score.Counts.High,
		score.Counts.Medium, score.Counts.Low,
	).Scan(&websiteID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("audit %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("save audit score: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE websites
		SET health_score = $2, last_audit_at = $3, updated_at = NOW()
		WHERE id = $1`,
		websiteID, score.HealthScore, at,
	); err != nil {
		return fmt.Errorf("save website score: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save score: %w", err)
	}
	return nil
}

// FinalizeAudit is the only write that sets progress to 100.
func (s *Store) FinalizeAudit(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE audits
		SET status = 'finalized', progress = 100, current_step = 'finalized',
		    completed_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'scoring'`
	err := execRequireRow(ctx, s.db, query, id, at)
	if errors.Is(err, domain.ErrNotFound) {
		return s.auditCASMiss(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("finalize audit: %w", err)
	}
	return nil
}

func (s *Store) FailAudit(ctx context.Context, id, message string, at time.Time) error {
	query := `
		UPDATE audits
		SET status = 'failed', current_step = 'failed', error_message = $2,
		    completed_at = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ` + activeAuditStatuses
	err := execRequireRow(ctx, s.db, query, id, message, at)
	if errors.Is(err, domain.ErrNotFound) {
		return s.auditCASMiss(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("fail audit: %w", err)
	}
	return nil
}

// FailActiveAudits fails every queued or running audit and returns how many
// were changed.
func (s *Store) FailActiveAudits(ctx context.Context, message string, at time.Time) (int, error) {
	query := `
		UPDATE audits
		SET status = 'failed', current_step = 'failed', error_message = $1,
		    completed_at = $2, updated_at = NOW()
		WHERE status IN ` + activeAuditStatuses
	res, err := s.db.ExecContext(ctx, query, message, at)
	if err != nil {
		return 0, fmt.Errorf("fail active audits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// auditCASMiss explains why a conditional update matched no row.
func (s *Store) auditCASMiss(ctx context.Context, id string) error {
	var status string
	err := s.db.GetContext(ctx, &status, `SELECT status FROM audits WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("audit %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get audit status: %w", err)
	}
	return fmt.Errorf("%w: audit is %s", domain.ErrInvalidState, status)
}
