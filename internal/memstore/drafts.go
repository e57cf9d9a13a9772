package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
)

func (s *Store) CreateDraft(_ context.Context, d *domain.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.audits[d.AuditID]; !ok {
		return notFound("audit", d.AuditID)
	}
	if d.ID == "" {
		d.ID = domain.NewID()
	}
	if d.Status == "" {
		d.Status = domain.DraftPending
	}
	now := s.stamp(d.ID)
	d.CreatedAt, d.UpdatedAt = now, now
	cp := *d
	s.drafts[d.ID] = &cp
	return nil
}

func (s *Store) GetDraft(_ context.Context, id string) (*domain.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return nil, notFound("draft", id)
	}
	cp := *d
	return &cp, nil
}

func (s *Store) ListDrafts(_ context.Context, f domain.DraftFilter) ([]*domain.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Draft, 0)
	for _, d := range s.drafts {
		if f.Matches(d) {
			cp := *d
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Draft) int { return s.cmpOrder(a.ID, b.ID) })
	return out, nil
}

func (s *Store) TransitionDraft(_ context.Context, id string, from, to domain.DraftStatus, at time.Time) (*domain.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return nil, notFound("draft", id)
	}
	if d.Status != from {
		return nil, fmt.Errorf("%w: draft is %s", domain.ErrInvalidState, d.Status)
	}
	d.Status = to
	if to == domain.DraftApproved {
		d.ApprovedAt = &at
	}
	d.UpdatedAt = at
	cp := *d
	return &cp, nil
}

func (s *Store) SelectDraftVariant(_ context.Context, id string, v domain.Variant, diff string) (*domain.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return nil, notFound("draft", id)
	}
	if d.Status != domain.DraftPending {
		return nil, fmt.Errorf("%w: draft is %s", domain.ErrInvalidState, d.Status)
	}
	d.SelectedVariant = v
	d.Diff = diff
	d.UpdatedAt = s.now()
	cp := *d
	return &cp, nil
}

// ApplyDraft is atomic under the store mutex.
func (s *Store) ApplyDraft(_ context.Context, id string, at time.Time) (*domain.Draft, *domain.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return nil, nil, notFound("draft", id)
	}
	if d.Status != domain.DraftApproved {
		return nil, nil, fmt.Errorf("%w: draft is %s", domain.ErrInvalidState, d.Status)
	}
	var issue *domain.Issue
	if d.IssueID != nil {
		issue = s.issues[*d.IssueID]
		if issue != nil && issue.Status.IsFixed() {
			return nil, nil, fmt.Errorf("%w: issue is already %s", domain.ErrInvalidState, issue.Status)
		}
	}

	d.Status = domain.DraftApplied
	d.AppliedAt = &at
	d.UpdatedAt = at
	if issue != nil {
		issue.Status = domain.IssueFixed
		issue.SuggestedValue = d.SelectedValue()
		issue.UpdatedAt = at
	}

	c := domain.NewDraftChange(d, at)
	s.stamp(c.ID)
	stored := *c
	s.changes[c.ID] = &stored

	cp := *d
	return &cp, c, nil
}
