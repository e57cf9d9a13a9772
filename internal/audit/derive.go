package audit

import (
	"github.com/rawinstinctart/rawauditpro/internal/analyzer"
	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/drafts"
	"github.com/rawinstinctart/rawauditpro/internal/imaging"
	"github.com/rawinstinctart/rawauditpro/internal/suggest"
)

// newIssue records a finding with all three proposals. SuggestedValue and
// Confidence follow the run's variant.
func newIssue(a *domain.Audit, f analyzer.Finding, props *suggest.Proposals, v domain.Variant) *domain.Issue {
	return &domain.Issue{
		ID:                 domain.NewID(),
		AuditID:            a.ID,
		WebsiteID:          a.WebsiteID,
		PageURL:            f.PageURL,
		Type:               f.Type,
		Category:           f.Category,
		Severity:           f.Severity,
		Risk:               f.Risk,
		Title:              f.Title,
		Description:        f.Description,
		CurrentValue:       f.CurrentValue,
		SuggestedValue:     props.For(v),
		ProposedSafe:       props.Safe,
		ProposedBalanced:   props.Balanced,
		ProposedAggressive: props.Aggressive,
		Reasoning:          props.Reasoning,
		Confidence:         props.ConfidenceFor(v),
		AutoFixable:        f.AutoFixable,
		Status:             domain.IssuePending,
	}
}

func newIssueDraft(a *domain.Audit, issue *domain.Issue, props *suggest.Proposals, v domain.Variant) *domain.Draft {
	issueID := issue.ID
	return newDraft(a, &issueID, issue.PageURL, issue.Type, issue.CurrentValue, props, v)
}

// newOpportunityDraft has no issue behind it.
func newOpportunityDraft(a *domain.Audit, f analyzer.Finding, props *suggest.Proposals, v domain.Variant) *domain.Draft {
	return newDraft(a, nil, f.PageURL, f.Type, f.CurrentValue, props, v)
}

func newDraft(
	a *domain.Audit, issueID *string, pageURL, draftType, current string, props *suggest.Proposals, v domain.Variant,
) *domain.Draft {
	d := &domain.Draft{
		ID:                   domain.NewID(),
		AuditID:              a.ID,
		WebsiteID:            a.WebsiteID,
		IssueID:              issueID,
		PageURL:              pageURL,
		Type:                 draftType,
		CurrentValue:         current,
		ProposedSafe:         props.Safe,
		ProposedBalanced:     props.Balanced,
		ProposedAggressive:   props.Aggressive,
		ConfidenceSafe:       props.Confidences.Safe,
		ConfidenceBalanced:   props.Confidences.Balanced,
		ConfidenceAggressive: props.Confidences.Aggressive,
		SelectedVariant:      v,
		Reasoning:            props.Reasoning,
		Source:               props.Source,
		Status:               domain.DraftPending,
	}
	d.Diff = drafts.Diff(current, d.SelectedValue())
	return d
}

// pageContextFor attaches the inspected asset to per-image findings, which
// carry the image URL as their current value.
func pageContextFor(pc *suggest.PageContext, f analyzer.Finding, images []*imaging.ImageRecord) *suggest.PageContext {
	if f.Category != domain.CategoryImages || f.Type == analyzer.TypeMissingAltText {
		return pc
	}
	for _, rec := range images {
		if rec.Ref.URL == f.CurrentValue && rec.Asset != nil {
			withImage := *pc
			withImage.Image = rec.Asset
			return &withImage
		}
	}
	return pc
}
