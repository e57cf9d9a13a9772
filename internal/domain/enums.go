package domain

// Severity is the impact of a problem.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Rank orders severities; higher is worse. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Risk is the blast radius of applying a fix, independent of Severity.
type Risk string

const (
	RiskHigh   Risk = "high"
	RiskMedium Risk = "medium"
	RiskLow    Risk = "low"
)

// Rank orders risks; higher is riskier.
func (r Risk) Rank() int {
	switch r {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

// Variant names one of the three risk-tiered proposals.
type Variant string

const (
	VariantSafe       Variant = "safe"
	VariantBalanced   Variant = "balanced"
	VariantAggressive Variant = "aggressive"
)

// Valid reports whether v is a known variant.
func (v Variant) Valid() bool {
	switch v {
	case VariantSafe, VariantBalanced, VariantAggressive:
		return true
	default:
		return false
	}
}

// Category groups issue types for reporting.
type Category string

const (
	CategoryMeta        Category = "meta"
	CategoryHeadings    Category = "headings"
	CategoryImages      Category = "images"
	CategoryPerformance Category = "performance"
	CategoryContent     Category = "content"
	CategoryLinks       Category = "links"
	CategoryHTTP        Category = "http"
)
