package analyzer

import "github.com/rawinstinctart/rawauditpro/internal/domain"

const maxScore = 100

// Penalty is the score deduction for one issue of severity s.
func Penalty(s domain.Severity) int {
	switch s {
	case domain.SeverityCritical:
		return 15
	case domain.SeverityHigh:
		return 10
	case domain.SeverityMedium:
		return 5
	case domain.SeverityLow:
		return 2
	default:
		return 0
	}
}

// Score is 100 minus the penalties of every severity, clamped to [0,100].
func Score(severities []domain.Severity) int {
	score := maxScore
	for _, s := range severities {
		score -= Penalty(s)
	}
	return max(0, min(maxScore, score))
}

// ScoreIssues scores the full issue set. Status is ignored: the score
// reflects what the audit found.
func ScoreIssues(issues []*domain.Issue) int {
	sevs := make([]domain.Severity, 0, len(issues))
	for _, i := range issues {
		sevs = append(sevs, i.Severity)
	}
	return Score(sevs)
}

// ScoreOpen scores only the issues that are not fixed.
func ScoreOpen(issues []*domain.Issue) int {
	sevs := make([]domain.Severity, 0, len(issues))
	for _, i := range issues {
		if !i.Status.IsFixed() {
			sevs = append(sevs, i.Severity)
		}
	}
	return Score(sevs)
}

// CountBySeverity aggregates issue severities.
func CountBySeverity(issues []*domain.Issue) domain.SeverityCounts {
	var c domain.SeverityCounts
	for _, i := range issues {
		c.Add(i.Severity)
	}
	return c
}
