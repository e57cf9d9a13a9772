package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
)

func (s *Store) CreateIssue(_ context.Context, i *domain.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.audits[i.AuditID]; !ok {
		return notFound("audit", i.AuditID)
	}
	if i.ID == "" {
		i.ID = domain.NewID()
	}
	now := s.stamp(i.ID)
	i.CreatedAt, i.UpdatedAt = now, now
	cp := *i
	s.issues[i.ID] = &cp
	return nil
}

func (s *Store) GetIssue(_ context.Context, id string) (*domain.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.issues[id]
	if !ok {
		return nil, notFound("issue", id)
	}
	cp := *i
	return &cp, nil
}

// ListIssues returns issues in creation order.
func (s *Store) ListIssues(_ context.Context, f domain.IssueFilter) ([]*domain.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Issue, 0)
	for _, i := range s.issues {
		if f.Matches(i) {
			cp := *i
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Issue) int { return s.cmpOrder(a.ID, b.ID) })
	return out, nil
}

// AutoFixIssue moves a pending issue to auto_fixed, records the Change and
// rejects the issue's pending drafts, all at once.
func (s *Store) AutoFixIssue(_ context.Context, id string, at time.Time) (*domain.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.issues[id]
	if !ok {
		return nil, notFound("issue", id)
	}
	if i.Status != domain.IssuePending {
		return nil, fmt.Errorf("%w: issue is %s", domain.ErrInvalidState, i.Status)
	}

	i.Status = domain.IssueAutoFixed
	i.UpdatedAt = at
	for _, d := range s.drafts {
		if d.IssueID != nil && *d.IssueID == id && d.Status == domain.DraftPending {
			d.Status = domain.DraftRejected
			d.UpdatedAt = at
		}
	}

	c := domain.NewAutoFixChange(i, at)
	s.stamp(c.ID)
	cp := *c
	s.changes[c.ID] = &cp
	return c, nil
}
