package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
)

const websiteColumns = `id, account_id, name, url, health_score, last_audit_at, created_at, updated_at`

func (s *Store) CreateWebsite(ctx context.Context, w *domain.Website) error {
	if w.ID == "" {
		w.ID = domain.NewID()
	}
	query := `
		INSERT INTO websites (id, account_id, name, url)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`
	if err := s.db.QueryRowxContext(ctx, query, w.ID, w.AccountID, w.Name, w.URL).
		Scan(&w.CreatedAt, &w.UpdatedAt); err != nil {
		return fmt.Errorf("insert website: %w", err)
	}
	return nil
}

func (s *Store) GetWebsite(ctx context.Context, id string) (*domain.Website, error) {
	var w domain.Website
	err := s.db.GetContext(ctx, &w, `SELECT `+websiteColumns+` FROM websites WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("website %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get website: %w", err)
	}
	return &w, nil
}

// ListWebsites lists all websites, or one account's when accountID is set.
func (s *Store) ListWebsites(ctx context.Context, accountID string) ([]*domain.Website, error) {
	query := `
		SELECT ` + websiteColumns + `
		FROM websites
		WHERE ($1 = '' OR account_id = $1)
		ORDER BY created_at, id`
	out := make([]*domain.Website, 0)
	if err := s.db.SelectContext(ctx, &out, query, accountID); err != nil {
		return nil, fmt.Errorf("list websites: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateWebsite(ctx context.Context, w *domain.Website) error {
	query := `
		UPDATE websites
		SET account_id = $2, name = $3, url = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + websiteColumns
	err := s.db.GetContext(ctx, w, query, w.ID, w.AccountID, w.Name, w.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("website %s: %w", w.ID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update website: %w", err)
	}
	return nil
}

// DeleteWebsite relies on ON DELETE CASCADE for dependent rows.
func (s *Store) DeleteWebsite(ctx context.Context, id string) error {
	if err := execRequireRow(ctx, s.db, `DELETE FROM websites WHERE id = $1`, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("website %s: %w", id, err)
		}
		return fmt.Errorf("delete website: %w", err)
	}
	return nil
}
