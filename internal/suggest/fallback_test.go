package suggest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawinstinctart/rawauditpro/internal/analyzer"
	"github.com/rawinstinctart/rawauditpro/internal/suggest"
)

type fakeProvider struct {
	generateFunc func(ctx context.Context, f analyzer.Finding, pc *suggest.PageContext) (*suggest.Proposals, error)
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) GenerateProposals(ctx context.Context, f analyzer.Finding, pc *suggest.PageContext) (*suggest.Proposals, error) {
	return p.generateFunc(ctx, f, pc)
}

func TestFallbackProvider_PassesThroughSuccess(t *testing.T) {
	t.Parallel()

	want := &suggest.Proposals{Safe: "a", Balanced: "b", Aggressive: "c", Source: suggest.SourceModel}
	fb := suggest.NewFallbackProvider(&fakeProvider{
		generateFunc: func(context.Context, analyzer.Finding, *suggest.PageContext) (*suggest.Proposals, error) {
			return want, nil
		},
	}, nil, func(context.Context, analyzer.Finding, error) {
		t.Fatal("fallback must not fire on success")
	})

	got, err := fb.GenerateProposals(context.Background(), analyzer.Finding{Type: analyzer.TypeMissingTitle}, nil)
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestFallbackProvider_UsesRulesWithPenalty(t *testing.T) {
	t.Parallel()

	cause := errors.New("rate limited")
	var notified error
	fb := suggest.NewFallbackProvider(&fakeProvider{
		generateFunc: func(context.Context, analyzer.Finding, *suggest.PageContext) (*suggest.Proposals, error) {
			return nil, cause
		},
	}, nil, func(_ context.Context, _ analyzer.Finding, err error) { notified = err })

	f := analyzer.Finding{Type: analyzer.TypeImageNoLazyLoading}
	got, err := fb.GenerateProposals(context.Background(), f, nil)
	require.NoError(t, err)

	direct := suggest.NewRuleProvider().Propose(f, nil)
	assert.Equal(t, suggest.SourceRuleFallback, got.Source)
	assert.Equal(t, direct.Safe, got.Safe)
	assert.InDelta(t, direct.Confidences.Safe*suggest.FallbackPenalty, got.Confidences.Safe, 1e-9)
	assert.InDelta(t, 0.76, got.Confidences.Safe, 1e-9)
	assert.Less(t, got.Confidences.Aggressive, direct.Confidences.Aggressive)
	assert.Equal(t, cause, notified)
}

func TestFallbackProvider_ReturnsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fb := suggest.NewFallbackProvider(&fakeProvider{
		generateFunc: func(ctx context.Context, _ analyzer.Finding, _ *suggest.PageContext) (*suggest.Proposals, error) {
			return nil, ctx.Err()
		},
	}, nil, nil)

	_, err := fb.GenerateProposals(ctx, analyzer.Finding{Type: analyzer.TypeMissingTitle}, nil)
	require.ErrorIs(t, err, context.Canceled)
}
