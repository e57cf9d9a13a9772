package drafts

import (
	"context"
	"errors"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
)

// Outcome of one id in a bulk operation.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// ItemOutcome reports one id.
type ItemOutcome struct {
	ID      string  `json:"id"`
	Outcome Outcome `json:"outcome"`
	Error   string  `json:"error,omitempty"`
}

// BulkResult counts a bulk operation. Requested = Succeeded + Skipped + Failed
// unless the context was cancelled part way.
type BulkResult struct {
	Requested int           `json:"requested"`
	Succeeded int           `json:"succeeded"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Outcomes  []ItemOutcome `json:"outcomes"`
}

func (r *BulkResult) record(id string, err error) {
	switch {
	case err == nil:
		r.Succeeded++
		r.Outcomes = append(r.Outcomes, ItemOutcome{ID: id, Outcome: OutcomeSucceeded})
	case errors.Is(err, domain.ErrInvalidState):
		r.Skipped++
		r.Outcomes = append(r.Outcomes, ItemOutcome{ID: id, Outcome: OutcomeSkipped, Error: err.Error()})
	default:
		r.Failed++
		r.Outcomes = append(r.Outcomes, ItemOutcome{ID: id, Outcome: OutcomeFailed, Error: err.Error()})
	}
}

// BulkApprove approves each id. Drafts not pending are skipped.
func (m *Manager) BulkApprove(ctx context.Context, ids []string) (*BulkResult, error) {
	return m.bulk(ctx, "approve", ids, func(id string) error {
		_, err := m.Approve(ctx, id)
		return err
	})
}

// BulkApply applies each id. Drafts not approved are skipped.
func (m *Manager) BulkApply(ctx context.Context, ids []string) (*BulkResult, error) {
	return m.bulk(ctx, "apply", ids, func(id string) error {
		_, _, err := m.apply(ctx, id, TriggerBulk)
		return err
	})
}

func (m *Manager) bulk(ctx context.Context, op string, ids []string, fn func(id string) error) (*BulkResult, error) {
	res := &BulkResult{Requested: len(ids), Outcomes: make([]ItemOutcome, 0, len(ids))}
	seen := make(map[string]struct{}, len(ids))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, dup := seen[id]; dup {
			res.Skipped++
			res.Outcomes = append(res.Outcomes, ItemOutcome{ID: id, Outcome: OutcomeSkipped, Error: "duplicate id"})
			continue
		}
		seen[id] = struct{}{}
		res.record(id, fn(id))
	}

	m.log.Info("Bulk draft operation finished",
		logger.String("operation", op),
		logger.Int("requested", res.Requested),
		logger.Int("succeeded", res.Succeeded),
		logger.Int("skipped", res.Skipped),
		logger.Int("failed", res.Failed),
	)
	return res, nil
}
