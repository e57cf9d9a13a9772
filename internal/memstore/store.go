// Package memstore is an in-memory implementation of every store interface.
// It backs one-shot CLI audits and tests. A single mutex serializes all
// operations, which makes each method atomic.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
)

// Store is safe for concurrent use.
type Store struct {
	mu sync.Mutex

	seq      int64
	websites map[string]*domain.Website
	audits   map[string]*domain.Audit
	issues   map[string]*domain.Issue
	drafts   map[string]*domain.Draft
	changes  map[string]*domain.Change
	activity []*domain.ActivityEvent
	// order records insertion order for stable listings.
	order map[string]int64
	now   func() time.Time
}

func New() *Store {
	return &Store{
		websites: make(map[string]*domain.Website),
		audits:   make(map[string]*domain.Audit),
		issues:   make(map[string]*domain.Issue),
		drafts:   make(map[string]*domain.Draft),
		changes:  make(map[string]*domain.Change),
		order:    make(map[string]int64),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) stamp(id string) time.Time {
	s.seq++
	s.order[id] = s.seq
	return s.now()
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
}

// Websites

func (s *Store) CreateWebsite(_ context.Context, w *domain.Website) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.ID == "" {
		w.ID = domain.NewID()
	}
	now := s.stamp(w.ID)
	w.CreatedAt, w.UpdatedAt = now, now
	cp := *w
	s.websites[w.ID] = &cp
	return nil
}

func (s *Store) GetWebsite(_ context.Context, id string) (*domain.Website, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.websites[id]
	if !ok {
		return nil, notFound("website", id)
	}
	cp := *w
	return &cp, nil
}

func (s *Store) ListWebsites(_ context.Context, accountID string) ([]*domain.Website, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Website, 0, len(s.websites))
	for _, w := range s.websites {
		if accountID != "" && w.AccountID != accountID {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *domain.Website) int { return s.cmpOrder(a.ID, b.ID) })
	return out, nil
}

func (s *Store) UpdateWebsite(_ context.Context, w *domain.Website) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.websites[w.ID]
	if !ok {
		return notFound("website", w.ID)
	}
	cur.AccountID = w.AccountID
	cur.Name = w.Name
	cur.URL = w.URL
	cur.UpdatedAt = s.now()
	*w = *cur
	return nil
}

// DeleteWebsite removes the website and everything that references it.
func (s *Store) DeleteWebsite(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.websites[id]; !ok {
		return notFound("website", id)
	}
	delete(s.websites, id)
	for k, a := range s.audits {
		if a.WebsiteID == id {
			delete(s.audits, k)
		}
	}
	for k, i := range s.issues {
		if i.WebsiteID == id {
			delete(s.issues, k)
		}
	}
	for k, d := range s.drafts {
		if d.WebsiteID == id {
			delete(s.drafts, k)
		}
	}
	for k, c := range s.changes {
		if c.WebsiteID == id {
			delete(s.changes, k)
		}
	}
	kept := s.activity[:0]
	for _, e := range s.activity {
		if e.WebsiteID != id {
			kept = append(kept, e)
		}
	}
	s.activity = kept
	return nil
}

// cmpOrder compares two ids by insertion order.
func (s *Store) cmpOrder(a, b string) int {
	return cmp.Compare(s.order[a], s.order[b])
}

func cloneAudit(a *domain.Audit) *domain.Audit {
	cp := *a
	cp.CrawlSnapshot = maps.Clone(a.CrawlSnapshot)
	return &cp
}
