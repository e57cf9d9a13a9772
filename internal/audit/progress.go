package audit

import (
	"context"
	"fmt"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
)

// Progress bands per phase.
const (
	progressCrawlStart   = 5
	progressCrawlEnd     = 35
	progressAnalyzeStart = 40
	progressAnalyzeEnd   = 85
	progressScoring      = 90
	progressFinalized    = 100
)

type progressStore interface {
	AdvanceAudit(ctx context.Context, id string, from, to domain.AuditStatus, step string, progress int) error
	UpdateProgress(ctx context.Context, id, step string, progress int) error
}

// progressTracker owns status and progress for one run. Progress never
// decreases and reaches 100 only through finalize.
type progressTracker struct {
	store   progressStore
	auditID string
	status  domain.AuditStatus
	current int
}

func newProgressTracker(store progressStore, a *domain.Audit) *progressTracker {
	return &progressTracker{store: store, auditID: a.ID, status: a.Status, current: a.Progress}
}

// advance moves to the next phase with a compare-and-swap on the status.
func (t *progressTracker) advance(ctx context.Context, to domain.AuditStatus, progress int) error {
	if err := ValidateTransition(t.status, to); err != nil {
		return err
	}
	progress = t.clamp(progress)
	if err := t.store.AdvanceAudit(ctx, t.auditID, t.status, to, string(to), progress); err != nil {
		return fmt.Errorf("advance audit to %s: %w", to, err)
	}
	t.status = to
	t.current = max(t.current, progress)
	return nil
}

// report records in-phase progress. Values at or below the current
// progress are dropped without a write.
func (t *progressTracker) report(ctx context.Context, step string, progress int) error {
	progress = t.clamp(progress)
	if progress <= t.current {
		return nil
	}
	if err := t.store.UpdateProgress(ctx, t.auditID, step, progress); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	t.current = progress
	return nil
}

// finalized records the store's finalize write.
func (t *progressTracker) finalized() {
	t.status = domain.AuditFinalized
	t.current = progressFinalized
}

func (t *progressTracker) clamp(progress int) int {
	return max(0, min(progressFinalized-1, progress))
}

// band maps done/total onto [start, end].
func band(start, end, done, total int) int {
	if total <= 0 {
		return end
	}
	done = max(0, min(total, done))
	return start + (end-start)*done/total
}
