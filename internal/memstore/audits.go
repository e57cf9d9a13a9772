package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
)

// CreateAudit refuses a second non-terminal audit for the same website.
func (s *Store) CreateAudit(_ context.Context, a *domain.Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.websites[a.WebsiteID]; !ok {
		return notFound("website", a.WebsiteID)
	}
	for _, existing := range s.audits {
		if existing.WebsiteID == a.WebsiteID && !existing.Status.IsTerminal() {
			return fmt.Errorf("website %s: %w (audit %s)", a.WebsiteID, domain.ErrAuditInProgress, existing.ID)
		}
	}
	if a.ID == "" {
		a.ID = domain.NewID()
	}
	now := s.stamp(a.ID)
	a.CreatedAt, a.UpdatedAt = now, now
	s.audits[a.ID] = cloneAudit(a)
	return nil
}

func (s *Store) GetAudit(_ context.Context, id string) (*domain.Audit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.audits[id]
	if !ok {
		return nil, notFound("audit", id)
	}
	return cloneAudit(a), nil
}

// ListAudits returns newest first.
func (s *Store) ListAudits(_ context.Context, f domain.AuditFilter) ([]*domain.Audit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Audit, 0)
	for _, a := range s.audits {
		if f.Matches(a) {
			out = append(out, cloneAudit(a))
		}
	}
	slices.SortFunc(out, func(a, b *domain.Audit) int {
		return s.cmpOrder(b.ID, a.ID)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ClaimAudit is the single-run guard: only a queued audit can be claimed.
func (s *Store) ClaimAudit(_ context.Context, id string, at time.Time) (*domain.Audit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.audits[id]
	if !ok {
		return nil, notFound("audit", id)
	}
	if a.Status != domain.AuditQueued {
		return nil, fmt.Errorf("%w: audit is %s", domain.ErrInvalidState, a.Status)
	}
	a.Status = domain.AuditCrawling
	a.Progress = 0
	a.CurrentStep = string(domain.AuditCrawling)
	a.StartedAt = &at
	a.UpdatedAt = s.now()
	return cloneAudit(a), nil
}

// AdvanceAudit moves from → to, raising progress but never lowering it.
func (s *Store) AdvanceAudit(_ context.Context, id string, from, to domain.AuditStatus, step string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.audits[id]
	if !ok {
		return notFound("audit", id)
	}
	if a.Status != from {
		return fmt.Errorf("%w: audit is %s, expected %s", domain.ErrInvalidState, a.Status, from)
	}
	a.Status = to
	a.CurrentStep = step
	a.Progress = max(a.Progress, progress)
	a.UpdatedAt = s.now()
	return nil
}

// UpdateProgress raises progress on a running audit.
func (s *Store) UpdateProgress(_ context.Context, id, step string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.audits[id]
	if !ok {
		return notFound("audit", id)
	}
	if a.Status.IsTerminal() {
		return fmt.Errorf("%w: audit is %s", domain.ErrInvalidState, a.Status)
	}
	a.Progress = max(a.Progress, progress)
	if step != "" {
		a.CurrentStep = step
	}
	a.UpdatedAt = s.now()
	return nil
}

func (s *Store) SaveCrawl(_ context.Context, id string, pagesScanned int, snapshot domain.JSONBMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.audits[id]
	if !ok {
		return notFound("audit", id)
	}
	a.PagesScanned = pagesScanned
	a.CrawlSnapshot = maps.Clone(snapshot)
	a.UpdatedAt = s.now()
	return nil
}

// SaveScore writes the audit's score and counts and the website's
// last-known score together.
func (s *Store) SaveScore(_ context.Context, id string, score domain.AuditScore, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.audits[id]
	if !ok {
		return notFound("audit", id)
	}
	hs := score.HealthScore
	a.HealthScore = &hs
	a.TotalIssues = score.Counts.Total()
	a.CriticalCount = score.Counts.Critical
	a.HighCount = score.Counts.High
	a.MediumCount = score.Counts.Medium
	a.LowCount = score.Counts.Low
	a.UpdatedAt = s.now()

	if w, ok := s.websites[a.WebsiteID]; ok {
		ws := score.HealthScore
		w.HealthScore = &ws
		w.LastAuditAt = &at
		w.UpdatedAt = s.now()
	}
	return nil
}

// FinalizeAudit is the only write that sets progress to 100.
func (s *Store) FinalizeAudit(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.audits[id]
	if !ok {
		return notFound("audit", id)
	}
	if a.Status != domain.AuditScoring {
		return fmt.Errorf("%w: audit is %s, expected %s", domain.ErrInvalidState, a.Status, domain.AuditScoring)
	}
	a.Status = domain.AuditFinalized
	a.Progress = 100
	a.CurrentStep = string(domain.AuditFinalized)
	a.CompletedAt = &at
	a.UpdatedAt = s.now()
	return nil
}

// FailAudit moves any non-terminal audit to failed.
func (s *Store) FailAudit(_ context.Context, id, message string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.audits[id]
	if !ok {
		return notFound("audit", id)
	}
	if a.Status.IsTerminal() {
		return fmt.Errorf("%w: audit is %s", domain.ErrInvalidState, a.Status)
	}
	a.Status = domain.AuditFailed
	a.CurrentStep = string(domain.AuditFailed)
	a.ErrorMessage = &message
	a.CompletedAt = &at
	a.UpdatedAt = s.now()
	return nil
}

func (s *Store) FailActiveAudits(_ context.Context, message string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, a := range s.audits {
		if a.Status.IsTerminal() {
			continue
		}
		msg := message
		a.Status = domain.AuditFailed
		a.CurrentStep = string(domain.AuditFailed)
		a.ErrorMessage = &msg
		a.CompletedAt = &at
		a.UpdatedAt = s.now()
		n++
	}
	return n, nil
}
