package suggest

import (
	"context"
	"errors"

	"github.com/rawinstinctart/rawauditpro/internal/analyzer"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
)

// FallbackPenalty scales rule confidences when they stand in for the primary.
const FallbackPenalty = 0.8

// FallbackFunc is told about each fallback, e.g. to emit activity or metrics.
type FallbackFunc func(ctx context.Context, f analyzer.Finding, cause error)

// FallbackProvider tries primary and answers from rules when it fails.
// Only context cancellation is returned to the caller.
type FallbackProvider struct {
	primary    Provider
	rules      *RuleProvider
	log        logger.Logger
	onFallback FallbackFunc
}

// NewFallbackProvider wraps primary. onFallback may be nil.
func NewFallbackProvider(primary Provider, log logger.Logger, onFallback FallbackFunc) *FallbackProvider {
	if log == nil {
		log = logger.NewNop()
	}
	return &FallbackProvider{primary: primary, rules: NewRuleProvider(), log: log, onFallback: onFallback}
}

func (p *FallbackProvider) Name() string { return p.primary.Name() + "+" + SourceRuleFallback }

func (p *FallbackProvider) GenerateProposals(ctx context.Context, f analyzer.Finding, pc *PageContext) (*Proposals, error) {
	out, err := p.primary.GenerateProposals(ctx, f, pc)
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return nil, err
	}

	p.log.Warn("Suggestion provider failed, using rule fallback",
		logger.String("provider", p.primary.Name()),
		logger.String("issue_type", f.Type),
		logger.String("page_url", f.PageURL),
		logger.Error(err),
	)
	if p.onFallback != nil {
		p.onFallback(ctx, f, err)
	}

	fb := p.rules.Propose(f, pc)
	fb.Confidences = fb.Confidences.Scale(FallbackPenalty)
	fb.Source = SourceRuleFallback
	return fb, nil
}
