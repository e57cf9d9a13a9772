// Package suggest produces the three risk-tiered remediation proposals for a
// finding. Providers are interchangeable: a deterministic rule engine, a
// hosted model, and a wrapper that falls back from the latter to the former.
package suggest

import (
	"context"

	"github.com/rawinstinctart/rawauditpro/internal/analyzer"
	"github.com/rawinstinctart/rawauditpro/internal/domain"
)

// Provider sources.
const (
	SourceRule         = "rule"
	SourceModel        = "model"
	SourceRuleFallback = "rule_fallback"
)

// Provider generates proposals for one finding.
type Provider interface {
	GenerateProposals(ctx context.Context, finding analyzer.Finding, page *PageContext) (*Proposals, error)
	Name() string
}

// Confidences holds one confidence per variant, each in [0,1].
type Confidences struct {
	Safe       float64 `json:"safe"`
	Balanced   float64 `json:"balanced"`
	Aggressive float64 `json:"aggressive"`
}

// Scale multiplies every confidence by f and clamps to [0,1].
func (c Confidences) Scale(f float64) Confidences {
	return Confidences{
		Safe:       clamp01(c.Safe * f),
		Balanced:   clamp01(c.Balanced * f),
		Aggressive: clamp01(c.Aggressive * f),
	}
}

// Proposals is the provider output.
type Proposals struct {
	Safe        string      `json:"safe"`
	Balanced    string      `json:"balanced"`
	Aggressive  string      `json:"aggressive"`
	Reasoning   string      `json:"reasoning"`
	Confidences Confidences `json:"confidences"`
	Source      string      `json:"source"`
}

// For returns the proposal text for variant v.
func (p *Proposals) For(v domain.Variant) string {
	switch v {
	case domain.VariantSafe:
		return p.Safe
	case domain.VariantAggressive:
		return p.Aggressive
	default:
		return p.Balanced
	}
}

// ConfidenceFor returns the confidence for variant v.
func (p *Proposals) ConfidenceFor(v domain.Variant) float64 {
	switch v {
	case domain.VariantSafe:
		return p.Confidences.Safe
	case domain.VariantAggressive:
		return p.Confidences.Aggressive
	default:
		return p.Confidences.Balanced
	}
}

func clamp01(f float64) float64 {
	return max(0, min(1, f))
}
