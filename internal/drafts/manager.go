package drafts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
	"github.com/rawinstinctart/rawauditpro/internal/policy"
)

// ErrInvalidVariant is returned by SelectMode for unknown variants.
var ErrInvalidVariant = errors.New("invalid variant")

// Store is the persistence the manager needs. Implementations serialize
// operations on one draft: TransitionDraft and SelectDraftVariant are
// compare-and-swap on status, and ApplyDraft is a single transaction that
// locks the draft, refuses it when its issue is already fixed, sets it
// applied, marks the issue fixed, and appends the Change built by
// domain.NewDraftChange.
type Store interface {
	GetAudit(ctx context.Context, id string) (*domain.Audit, error)
	GetDraft(ctx context.Context, id string) (*domain.Draft, error)
	ListDrafts(ctx context.Context, filter domain.DraftFilter) ([]*domain.Draft, error)
	TransitionDraft(ctx context.Context, id string, from, to domain.DraftStatus, at time.Time) (*domain.Draft, error)
	SelectDraftVariant(ctx context.Context, id string, v domain.Variant, diff string) (*domain.Draft, error)
	ApplyDraft(ctx context.Context, id string, at time.Time) (*domain.Draft, *domain.Change, error)
	RollbackChange(ctx context.Context, id string, at time.Time) (*domain.Change, error)
}

// Trigger labels what caused an apply.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerBulk   Trigger = "bulk"
	TriggerAuto   Trigger = "auto"
)

// AppliedFunc observes every successful apply.
type AppliedFunc func(ctx context.Context, d *domain.Draft, c *domain.Change, trigger Trigger)

// Option configures a Manager.
type Option func(*Manager)

// WithOnApplied registers an observer for applied drafts.
func WithOnApplied(fn AppliedFunc) Option {
	return func(m *Manager) { m.onApplied = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithDefaultPolicy sets the profile used for audits stored without one.
func WithDefaultPolicy(name string) Option {
	return func(m *Manager) { m.defaultPolicy = name }
}

// Manager moves drafts through their lifecycle. It never coerces a draft
// into a state; violations surface as domain.ErrInvalidState.
type Manager struct {
	store         Store
	log           logger.Logger
	now           func() time.Time
	onApplied     AppliedFunc
	defaultPolicy string
}

func NewManager(store Store, log logger.Logger, opts ...Option) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	m := &Manager{
		store:         store,
		log:           log.With(logger.Component("drafts")),
		now:           time.Now,
		defaultPolicy: string(policy.Balanced),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Approve moves a pending draft to approved.
func (m *Manager) Approve(ctx context.Context, id string) (*domain.Draft, error) {
	return m.transition(ctx, id, domain.DraftApproved)
}

// Reject moves a pending draft to rejected.
func (m *Manager) Reject(ctx context.Context, id string) (*domain.Draft, error) {
	return m.transition(ctx, id, domain.DraftRejected)
}

func (m *Manager) transition(ctx context.Context, id string, to domain.DraftStatus) (*domain.Draft, error) {
	current, err := m.store.GetDraft(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get draft %s: %w", id, err)
	}
	if err = ValidateTransition(current.Status, to); err != nil {
		return nil, err
	}

	d, err := m.store.TransitionDraft(ctx, id, domain.DraftPending, to, m.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%s draft %s: %w", verb(to), id, err)
	}
	m.log.Debug("Draft transitioned",
		logger.String("draft_id", id),
		logger.String("status", string(to)),
	)
	return d, nil
}

// Apply writes an approved draft's selected variant. The draft, its issue and
// the new Change are updated atomically by the store.
func (m *Manager) Apply(ctx context.Context, id string) (*domain.Draft, *domain.Change, error) {
	return m.apply(ctx, id, TriggerManual)
}

func (m *Manager) apply(ctx context.Context, id string, trigger Trigger) (*domain.Draft, *domain.Change, error) {
	d, change, err := m.store.ApplyDraft(ctx, id, m.now().UTC())
	if err != nil {
		return nil, nil, fmt.Errorf("apply draft %s: %w", id, err)
	}

	m.log.Info("Draft applied",
		logger.String("draft_id", id),
		logger.String("audit_id", d.AuditID),
		logger.String("variant", string(d.SelectedVariant)),
		logger.Float64("confidence", d.Confidence()),
		logger.String("trigger", string(trigger)),
	)
	if m.onApplied != nil {
		m.onApplied(ctx, d, change, trigger)
	}
	return d, change, nil
}

// SelectMode changes which variant a pending draft would apply and rewrites
// its diff to match. Proposals and confidences are untouched.
func (m *Manager) SelectMode(ctx context.Context, id string, v domain.Variant) (*domain.Draft, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVariant, v)
	}
	current, err := m.store.GetDraft(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get draft %s: %w", id, err)
	}
	if current.Status != domain.DraftPending {
		return nil, fmt.Errorf("%w: draft is %s, variant can only change while pending", domain.ErrInvalidState, current.Status)
	}

	d, err := m.store.SelectDraftVariant(ctx, id, v, Diff(current.CurrentValue, current.Proposal(v)))
	if err != nil {
		return nil, fmt.Errorf("select variant for draft %s: %w", id, err)
	}
	return d, nil
}

// RollbackChange marks a Change rolled back. Repeating it returns
// domain.ErrAlreadyRolledBack.
func (m *Manager) RollbackChange(ctx context.Context, changeID string) (*domain.Change, error) {
	c, err := m.store.RollbackChange(ctx, changeID, m.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("rollback change %s: %w", changeID, err)
	}
	m.log.Info("Change rolled back", logger.String("change_id", changeID))
	return c, nil
}

// AutoApply approves and applies every pending draft of the audit whose
// selected-variant confidence meets the audit policy's threshold. Drafts
// that change state underneath are skipped. It returns the applied count.
func (m *Manager) AutoApply(ctx context.Context, auditID string) (int, error) {
	a, err := m.store.GetAudit(ctx, auditID)
	if err != nil {
		return 0, fmt.Errorf("get audit %s: %w", auditID, err)
	}
	profile, err := policy.Resolve(a.Policy, m.defaultPolicy)
	if err != nil {
		return 0, err
	}

	pending, err := m.store.ListDrafts(ctx, domain.DraftFilter{
		AuditID:  auditID,
		Statuses: []domain.DraftStatus{domain.DraftPending},
	})
	if err != nil {
		return 0, fmt.Errorf("list drafts: %w", err)
	}

	eligible := make([]*domain.Draft, 0, len(pending))
	for _, d := range pending {
		if profile.Allows(d.Confidence()) {
			eligible = append(eligible, d)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		ci, cj := eligible[i].Confidence(), eligible[j].Confidence()
		if ci != cj {
			return ci > cj
		}
		return eligible[i].ID < eligible[j].ID
	})

	applied := 0
	for _, d := range eligible {
		if err = ctx.Err(); err != nil {
			return applied, err
		}
		if err = m.approveAndApply(ctx, d.ID); err != nil {
			if isStale(err) {
				m.log.Debug("Skipping stale draft", logger.String("draft_id", d.ID), logger.Error(err))
				continue
			}
			return applied, err
		}
		applied++
	}

	m.log.Info("Auto-apply finished",
		logger.AuditID(auditID),
		logger.String("policy", string(profile.Name)),
		logger.Float64("threshold", profile.AutoApplyThreshold),
		logger.Int("eligible", len(eligible)),
		logger.Int("applied", applied),
	)
	return applied, nil
}

func (m *Manager) approveAndApply(ctx context.Context, id string) error {
	if _, err := m.store.TransitionDraft(ctx, id, domain.DraftPending, domain.DraftApproved, m.now().UTC()); err != nil {
		return fmt.Errorf("approve draft %s: %w", id, err)
	}
	_, _, err := m.apply(ctx, id, TriggerAuto)
	return err
}

func isStale(err error) bool {
	return errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrNotFound)
}

func verb(to domain.DraftStatus) string {
	switch to {
	case domain.DraftApproved:
		return "approve"
	case domain.DraftRejected:
		return "reject"
	default:
		return string(to)
	}
}
