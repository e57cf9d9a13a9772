package suggest

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rawinstinctart/rawauditpro/internal/analyzer"
	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/imaging"
	"github.com/rawinstinctart/rawauditpro/internal/policy"
)

// generator renders one variant. The profile carries the variant's limits.
type generator func(f analyzer.Finding, pc *PageContext, p policy.Profile) string

type rule struct {
	confidence Confidences
	generate   generator
	reasoning  func(f analyzer.Finding, pc *PageContext) string
}

var defaultConfidence = Confidences{Safe: 0.70, Balanced: 0.60, Aggressive: 0.50}

var rules = map[string]rule{
	analyzer.TypeMissingTitle:            {Confidences{0.93, 0.86, 0.74}, titleProposal, titleReasoning},
	analyzer.TypeTitleTooShort:           {Confidences{0.88, 0.82, 0.70}, titleProposal, titleReasoning},
	analyzer.TypeTitleTooLong:            {Confidences{0.92, 0.84, 0.70}, titleProposal, titleReasoning},
	analyzer.TypeMissingMeta:             {Confidences{0.90, 0.84, 0.72}, metaProposal, metaReasoning},
	analyzer.TypeMetaTooShort:            {Confidences{0.86, 0.80, 0.68}, metaProposal, metaReasoning},
	analyzer.TypeMetaTooLong:             {Confidences{0.91, 0.83, 0.70}, metaProposal, metaReasoning},
	analyzer.TypeMissingH1:               {Confidences{0.85, 0.78, 0.65}, h1Proposal, h1Reasoning},
	analyzer.TypeMultipleH1:              {Confidences{0.80, 0.72, 0.60}, h1Proposal, h1Reasoning},
	analyzer.TypeMissingAltText:          {Confidences{0.90, 0.82, 0.70}, altProposal, altReasoning},
	analyzer.TypeThinContent:             {Confidences{0.60, 0.55, 0.45}, contentProposal, contentReasoning},
	analyzer.TypeLowInternalLinks:        {Confidences{0.75, 0.68, 0.55}, linksProposal, linksReasoning},
	analyzer.TypeInternalLinkOpportunity: {Confidences{0.82, 0.74, 0.62}, linksProposal, linksReasoning},
	analyzer.TypeImageOversized:          {Confidences{0.84, 0.78, 0.66}, imageEncodeProposal, imageReasoning},
	analyzer.TypeImageLegacyFormat:       {Confidences{0.82, 0.80, 0.68}, imageEncodeProposal, imageReasoning},
	analyzer.TypeImageTooWide:            {Confidences{0.86, 0.80, 0.66}, imageEncodeProposal, imageReasoning},
	analyzer.TypeImagePoorCompression:    {Confidences{0.84, 0.78, 0.66}, imageEncodeProposal, imageReasoning},
	analyzer.TypeImageNoLazyLoading:      {Confidences{0.95, 0.88, 0.78}, lazyProposal, imageReasoning},
	analyzer.TypeImageDuplicate:          {Confidences{0.80, 0.72, 0.60}, duplicateProposal, imageReasoning},
	analyzer.TypeHTTPError:               {Confidences{0.70, 0.60, 0.45}, httpProposal, adviceReasoning},
	analyzer.TypeSlowPageLoad:            {Confidences{0.65, 0.58, 0.45}, speedProposal, adviceReasoning},
}

// RuleProvider derives proposals from the page alone. Output is a pure
// function of its inputs.
type RuleProvider struct{}

// NewRuleProvider returns the deterministic provider.
func NewRuleProvider() *RuleProvider { return &RuleProvider{} }

func (*RuleProvider) Name() string { return SourceRule }

// GenerateProposals never fails for a live context.
func (r *RuleProvider) GenerateProposals(ctx context.Context, f analyzer.Finding, pc *PageContext) (*Proposals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.Propose(f, pc), nil
}

// Propose is GenerateProposals without a context.
func (*RuleProvider) Propose(f analyzer.Finding, pc *PageContext) *Proposals {
	if pc == nil {
		pc = &PageContext{URL: f.PageURL}
	}
	rl, ok := rules[f.Type]
	if !ok {
		rl = rule{confidence: defaultConfidence, generate: genericProposal, reasoning: adviceReasoning}
	}

	out := &Proposals{
		Reasoning:   rl.reasoning(f, pc),
		Confidences: rl.confidence,
		Source:      SourceRule,
	}
	out.Safe = rl.generate(f, pc, policy.ForVariant(domain.VariantSafe))
	out.Balanced = rl.generate(f, pc, policy.ForVariant(domain.VariantBalanced))
	out.Aggressive = rl.generate(f, pc, policy.ForVariant(domain.VariantAggressive))
	return out
}

func titleProposal(f analyzer.Finding, pc *PageContext, p policy.Profile) string {
	head := headline(pc)
	site := brand(pc.Host)
	kw := primaryKeyword(pc)
	current := strings.TrimSpace(f.CurrentValue)

	if f.Type == analyzer.TypeTitleTooLong {
		base := stripBrandSuffix(current)
		switch p.Name {
		case policy.Safe:
			return fit(current, analyzer.TitleMaxLength)
		case policy.Balanced:
			return fit(withBrand(base, site, analyzer.TitleMaxLength), analyzer.TitleMaxLength)
		default:
			return fit(withBrand(keywordLed(kw, head), site, analyzer.TitleMaxLength), analyzer.TitleMaxLength)
		}
	}

	limit := analyzer.TitleMaxLength
	if current == "" {
		current = head
	} else {
		n := utf8.RuneCountInString(current)
		limit = max(p.GrowthBudget(n, analyzer.TitleMaxLength), analyzer.TitleMinLength)
	}
	switch p.Name {
	case policy.Safe:
		return fit(withBrand(current, site, limit), limit)
	case policy.Balanced:
		if kw != "" && !containsFold(current, kw) {
			current = current + ": " + titleCase(kw)
		}
		return fit(withBrand(current, site, limit), limit)
	default:
		return fit(withBrand(keywordLed(kw, current), site, limit), limit)
	}
}

// withBrand appends " | brand" only when it fits.
func withBrand(s, site string, limit int) string {
	if site == "" || containsFold(s, site) {
		return s
	}
	joined := s + " | " + site
	if utf8.RuneCountInString(joined) > limit {
		return s
	}
	return joined
}

func keywordLed(kw, s string) string {
	if kw == "" || strings.HasPrefix(strings.ToLower(s), kw) {
		return s
	}
	return titleCase(kw) + " - " + s
}

func titleReasoning(f analyzer.Finding, pc *PageContext) string {
	return fmt.Sprintf("Titles between %d and %d characters display in full in results. "+
		"The proposals are built from the page's own headings and the host name; "+
		"the bolder variants lead with the most frequent topic word.",
		analyzer.TitleMinLength, analyzer.TitleMaxLength)
}

func metaProposal(f analyzer.Finding, pc *PageContext, p policy.Profile) string {
	current := strings.TrimSpace(f.CurrentValue)
	kw := primaryKeyword(pc)
	head := headline(pc)

	if f.Type == analyzer.TypeMetaTooLong {
		switch p.Name {
		case policy.Safe:
			return fitSentence(current, analyzer.MetaMaxLength)
		case policy.Balanced:
			return fitSentence(current, analyzer.MetaMaxLength-5)
		default:
			return fitSentence(head+": "+summary(pc.BodyText, analyzer.MetaMaxLength), analyzer.MetaMaxLength)
		}
	}

	n := utf8.RuneCountInString(current)
	limit := max(p.GrowthBudget(n, analyzer.MetaMaxLength), analyzer.MetaMinLength)
	body := summary(pc.BodyText, analyzer.MetaMaxLength)

	var out string
	switch p.Name {
	case policy.Safe:
		out = joinSentences(current, body)
	case policy.Balanced:
		lead := current
		if lead == "" {
			lead = head + "."
		}
		out = joinSentences(lead, body)
	default:
		lead := head + "."
		if kw != "" && !containsFold(head, kw) {
			lead = fmt.Sprintf("%s: everything about %s.", head, kw)
		}
		out = joinSentences(joinSentences(lead, current), body)
	}
	if out == "" {
		out = fmt.Sprintf("%s from %s.", head, brand(pc.Host))
	}
	return fitSentence(out, limit)
}

func joinSentences(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "" || containsFold(a, b):
		return a
	}
	if !strings.ContainsAny(a[len(a)-1:], ".!?") {
		a += "."
	}
	return a + " " + b
}

func metaReasoning(f analyzer.Finding, pc *PageContext) string {
	return fmt.Sprintf("Search engines show roughly %d-%d characters of the description. "+
		"The proposals reuse sentences already on the page and cut at a sentence boundary.",
		analyzer.MetaMinLength, analyzer.MetaMaxLength)
}

func h1Proposal(f analyzer.Finding, pc *PageContext, p policy.Profile) string {
	kw := primaryKeyword(pc)
	title := stripBrandSuffix(pc.Title)

	if f.Type == analyzer.TypeMultipleH1 && len(pc.H1) > 0 {
		switch p.HeadingRestructure {
		case policy.LevelMinimal:
			return pc.H1[0]
		case policy.LevelModerate:
			for _, h := range pc.H1 {
				if containsFold(h, kw) {
					return h
				}
			}
			return pc.H1[0]
		default:
			if title != "" {
				return keywordLed(kw, title)
			}
			return keywordLed(kw, pc.H1[0])
		}
	}

	base := title
	if base == "" {
		base = headline(pc)
	}
	switch p.HeadingRestructure {
	case policy.LevelMinimal:
		return base
	case policy.LevelModerate:
		if kw != "" && !containsFold(base, kw) {
			return base + ": " + titleCase(kw)
		}
		return base
	default:
		return keywordLed(kw, base)
	}
}

func h1Reasoning(f analyzer.Finding, pc *PageContext) string {
	if f.Type == analyzer.TypeMultipleH1 {
		return "One <h1> states the page topic; the others should become <h2>. " +
			"The proposal names the heading to keep."
	}
	return "The <h1> is derived from the page title so the heading and the search result agree."
}

func altProposal(f analyzer.Finding, pc *PageContext, p policy.Profile) string {
	kw := primaryKeyword(pc)
	head := headline(pc)
	lines := make([]string, 0)
	for _, src := range strings.Split(f.CurrentValue, "\n") {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		alt := altFromURL(src)
		switch p.Name {
		case policy.Balanced:
			if alt == "Image" {
				alt = head
			}
		case policy.Aggressive:
			if alt == "Image" {
				alt = head
			}
			if kw != "" && !containsFold(alt, kw) {
				alt = alt + " - " + kw
			}
		}
		lines = append(lines, fmt.Sprintf("%s: alt=%q", src, fit(alt, 125)))
	}
	return strings.Join(lines, "\n")
}

func altReasoning(f analyzer.Finding, pc *PageContext) string {
	return "Alt text is derived from each file name; generic names fall back to the page heading. " +
		"Screen readers announce it and image search indexes it."
}

func contentProposal(f analyzer.Finding, pc *PageContext, p policy.Profile) string {
	kw := primaryKeyword(pc)
	need := max(analyzer.ThinContentWords-pc.WordCount, 0)
	mentions := max(1, int(float64(max(pc.WordCount, analyzer.ThinContentWords))*p.KeywordDensityTarget+0.5))
	topic := kw
	if topic == "" {
		topic = strings.ToLower(headline(pc))
	}

	switch p.ContentRewrite {
	case policy.LevelMinimal:
		return fmt.Sprintf("Expand the existing sections by about %d words without changing their order. "+
			"Mention %q about %d times.", need, topic, mentions)
	case policy.LevelModerate:
		var b strings.Builder
		fmt.Fprintf(&b, "Add about %d words in new sections under the current headings:\n", need)
		sections := pc.H2
		if len(sections) == 0 {
			sections = []string{"What is " + topic, "How it works"}
		}
		for _, h := range sections {
			fmt.Fprintf(&b, "## %s\n", h)
		}
		fmt.Fprintf(&b, "Mention %q about %d times.", topic, mentions)
		return b.String()
	default:
		target := analyzer.ThinContentWords * 2
		return fmt.Sprintf("Rewrite the page as a %d-word guide to %s:\n"+
			"## What is %s\n## Why it matters\n## How to get started\n## Frequently asked questions\n"+
			"Mention %q about %d times.",
			target, topic, topic, topic, int(float64(target)*p.KeywordDensityTarget+0.5))
	}
}

func contentReasoning(f analyzer.Finding, pc *PageContext) string {
	return fmt.Sprintf("The page has %d words. Content changes need human review, "+
		"so confidence stays low across all variants.", pc.WordCount)
}

func linksProposal(f analyzer.Finding, pc *PageContext, p policy.Profile) string {
	n := min(p.MaxNewInternalLinks, len(pc.LinkCandidates))
	if n == 0 {
		return "Link to the site's main sections from the page body."
	}
	lines := make([]string, 0, n)
	for _, c := range pc.LinkCandidates[:n] {
		anchor := c.Title
		if anchor == "" {
			anchor = slugTitle(c.URL)
		}
		if anchor == "" {
			anchor = brand(pc.Host)
		}
		lines = append(lines, fmt.Sprintf("%s: anchor=%q", c.URL, stripBrandSuffix(anchor)))
	}
	return strings.Join(lines, "\n")
}

func linksReasoning(f analyzer.Finding, pc *PageContext) string {
	return fmt.Sprintf("%d crawled pages are not linked from this page. "+
		"Candidates sharing the most vocabulary with its headings come first.", len(pc.LinkCandidates))
}

func imageEncodeProposal(f analyzer.Finding, pc *PageContext, p policy.Profile) string {
	width := 0
	format := "the current format"
	if pc.Image != nil {
		width = pc.Image.Width
		if pc.Image.Format != "" {
			format = pc.Image.Format
		}
	}
	maxWidth := imaging.MaxWidthPx
	switch p.Name {
	case policy.Safe:
		if f.Type == analyzer.TypeImageLegacyFormat {
			return fmt.Sprintf("Re-encode as lossless WebP; keep %d px width.", width)
		}
		return fmt.Sprintf("Recompress as %s at quality %d%s.", format, p.ImageQuality, resizeClause(width, maxWidth))
	case policy.Balanced:
		return fmt.Sprintf("Convert to WebP at quality %d%s.", p.ImageQuality, resizeClause(width, maxWidth))
	default:
		return fmt.Sprintf("Convert to AVIF at quality %d%s and serve a srcset with 480, 960 and 1600 px variants.",
			p.ImageQuality, resizeClause(width, 1600))
	}
}

func resizeClause(width, limit int) string {
	if width <= limit {
		return ""
	}
	return fmt.Sprintf(", resized from %d to %d px wide", width, limit)
}

func lazyProposal(f analyzer.Finding, pc *PageContext, p policy.Profile) string {
	switch p.Name {
	case policy.Safe:
		return `loading="lazy"`
	case policy.Balanced:
		return `loading="lazy" decoding="async"`
	default:
		return `loading="lazy" decoding="async" fetchpriority="low"`
	}
}

func duplicateProposal(f analyzer.Finding, pc *PageContext, p policy.Profile) string {
	switch p.Name {
	case policy.Safe:
		return fmt.Sprintf("Keep %s and add a long-lived Cache-Control header so repeat downloads are cheap.", f.CurrentValue)
	case policy.Balanced:
		return fmt.Sprintf("Point every reference at one canonical URL and stop serving %s.", f.CurrentValue)
	default:
		return fmt.Sprintf("Delete %s, reference the canonical copy and redirect the old URL to it.", f.CurrentValue)
	}
}

func imageReasoning(f analyzer.Finding, pc *PageContext) string {
	if pc.Image == nil || !pc.Image.Fetched {
		return "Image weight dominates page weight on most sites."
	}
	return fmt.Sprintf("The image is %d bytes at %dx%d (%s). Quality targets follow the selected policy.",
		pc.Image.Bytes, pc.Image.Width, pc.Image.Height, pc.Image.Format)
}

func httpProposal(f analyzer.Finding, pc *PageContext, p policy.Profile) string {
	switch p.Name {
	case policy.Safe:
		return fmt.Sprintf("Restore %s so it answers with HTTP 200.", f.PageURL)
	case policy.Balanced:
		return fmt.Sprintf("Redirect %s (301) to the closest live page and update links pointing at it.", f.PageURL)
	default:
		return fmt.Sprintf("Retire %s: remove every internal link to it and return 410 Gone.", f.PageURL)
	}
}

func speedProposal(f analyzer.Finding, pc *PageContext, p policy.Profile) string {
	switch p.Name {
	case policy.Safe:
		return "Enable compression and browser caching for static assets."
	case policy.Balanced:
		return "Enable compression and caching, defer non-critical scripts and lazy-load below-the-fold images."
	default:
		return "Serve the page from a CDN edge cache, inline critical CSS and defer all third-party scripts."
	}
}

func adviceReasoning(f analyzer.Finding, pc *PageContext) string {
	if f.Description != "" {
		return f.Description + " This needs a change outside the page markup."
	}
	return "This needs a change outside the page markup."
}

func genericProposal(f analyzer.Finding, pc *PageContext, p policy.Profile) string {
	return fmt.Sprintf("Review %q on %s (%s scope).", f.Title, f.PageURL, p.ContentRewrite)
}
