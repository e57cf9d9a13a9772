package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
)

func (s *Store) GetChange(_ context.Context, id string) (*domain.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.changes[id]
	if !ok {
		return nil, notFound("change", id)
	}
	cp := *c
	return &cp, nil
}

// ListChanges returns an audit's changes in the order they were applied.
func (s *Store) ListChanges(_ context.Context, auditID string) ([]*domain.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Change, 0)
	for _, c := range s.changes {
		if auditID == "" || c.AuditID == auditID {
			cp := *c
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Change) int { return s.cmpOrder(a.ID, b.ID) })
	return out, nil
}

func (s *Store) RollbackChange(_ context.Context, id string, at time.Time) (*domain.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.changes[id]
	if !ok {
		return nil, notFound("change", id)
	}
	if c.RolledBack {
		return nil, fmt.Errorf("change %s: %w", id, domain.ErrAlreadyRolledBack)
	}
	c.RolledBack = true
	c.RolledBackAt = &at
	cp := *c
	return &cp, nil
}

// AppendActivity assigns a sequential id.
func (s *Store) AppendActivity(_ context.Context, e *domain.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	e.ID = s.seq
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	cp := *e
	s.activity = append(s.activity, &cp)
	return nil
}

// ListActivity returns the most recent events of an audit, oldest first.
func (s *Store) ListActivity(_ context.Context, auditID string, limit int) ([]*domain.ActivityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.ActivityEvent, 0)
	for _, e := range s.activity {
		if auditID == "" || e.AuditID == auditID {
			cp := *e
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
