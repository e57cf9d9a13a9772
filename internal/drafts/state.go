// Package drafts owns the approval lifecycle of proposed edits:
// pending → approved → applied, or pending → rejected.
package drafts

import (
	"fmt"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
)

var transitions = map[domain.DraftStatus][]domain.DraftStatus{
	domain.DraftPending:  {domain.DraftApproved, domain.DraftRejected},
	domain.DraftApproved: {domain.DraftApplied},
	domain.DraftRejected: {},
	domain.DraftApplied:  {},
}

// ValidateTransition returns a wrapped domain.ErrInvalidState when from → to
// is not an edge of the lifecycle.
func ValidateTransition(from, to domain.DraftStatus) error {
	next, ok := transitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown draft status %q", domain.ErrInvalidState, from)
	}
	for _, s := range next {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: draft is %s, cannot become %s", domain.ErrInvalidState, from, to)
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s domain.DraftStatus) bool {
	return len(transitions[s]) == 0
}
