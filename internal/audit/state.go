// Package audit runs the audit pipeline: claim, crawl, analyze, score and
// finalize, with monotonic progress, cancellation and the post-run auto-fix
// and auto-apply sweeps.
package audit

import (
	"errors"
	"fmt"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/policy"
)

var (
	// ErrAuditNotQueued is returned by Run when the audit cannot be claimed.
	ErrAuditNotQueued = errors.New("audit is not queued")
	// ErrAuditInProgress is returned by Trigger when the website already
	// has a non-terminal audit.
	ErrAuditInProgress = domain.ErrAuditInProgress
	// ErrUnknownPolicy is returned by Trigger for unrecognized policy names.
	ErrUnknownPolicy = policy.ErrUnknownPolicy
)

// cancelledMessage is recorded on audits stopped by Cancel or shutdown.
const cancelledMessage = "audit cancelled"

// interruptedMessage is recorded on audits a restart left unfinished.
const interruptedMessage = "audit interrupted by restart"

var transitions = map[domain.AuditStatus][]domain.AuditStatus{
	domain.AuditQueued:    {domain.AuditCrawling, domain.AuditFailed},
	domain.AuditCrawling:  {domain.AuditAnalyzing, domain.AuditFailed},
	domain.AuditAnalyzing: {domain.AuditScoring, domain.AuditFailed},
	domain.AuditScoring:   {domain.AuditFinalized, domain.AuditFailed},
	domain.AuditFinalized: {},
	domain.AuditFailed:    {},
}

// ValidateTransition returns a wrapped domain.ErrInvalidState when from → to
// is not an edge of the audit state machine.
func ValidateTransition(from, to domain.AuditStatus) error {
	next, ok := transitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown audit status %q", domain.ErrInvalidState, from)
	}
	for _, s := range next {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: audit is %s, cannot become %s", domain.ErrInvalidState, from, to)
}
