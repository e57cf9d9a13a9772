package analyzer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rawinstinctart/rawauditpro/internal/crawler"
	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/imaging"
)

// Finding is an Issue before enrichment and persistence.
type Finding struct {
	PageURL      string          `json:"page_url"`
	Type         string          `json:"type"`
	Category     domain.Category `json:"category"`
	Severity     domain.Severity `json:"severity"`
	Risk         domain.Risk     `json:"risk"`
	AutoFixable  bool            `json:"auto_fixable"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	CurrentValue string          `json:"current_value"`
}

type pageRule func(p *crawler.PageRecord) []Finding

// contentRules run only for pages fetched with HTTP 200.
var contentRules = []pageRule{
	titleRule,
	metaRule,
	h1Rule,
	altTextRule,
	thinContentRule,
	internalLinksRule,
}

// Analyze applies the rule table to one page and the images inspected for
// it. A nil page yields no findings.
func Analyze(page *crawler.PageRecord, images []*imaging.ImageRecord) []Finding {
	if page == nil {
		return nil
	}

	findings := make([]Finding, 0)
	add := func(fs []Finding) {
		for _, f := range fs {
			f.PageURL = page.URL
			findings = append(findings, f)
		}
	}

	add(httpRule(page))
	add(latencyRule(page))
	if !page.OK() {
		return findings
	}

	for _, rule := range contentRules {
		add(rule(page))
	}
	for _, img := range images {
		if img != nil {
			add(imageFindings(img))
		}
	}
	return findings
}

func httpRule(p *crawler.PageRecord) []Finding {
	if p.OK() {
		return nil
	}
	sev := domain.SeverityHigh
	if p.StatusCode == 0 || p.StatusCode >= 500 {
		sev = domain.SeverityCritical
	}
	desc := fmt.Sprintf("The page responded with HTTP %d.", p.StatusCode)
	if p.StatusCode == 0 {
		desc = "The page could not be fetched."
	}
	if p.FetchError != "" {
		desc += " " + p.FetchError
	}
	return []Finding{{
		Type:         TypeHTTPError,
		Category:     domain.CategoryHTTP,
		Severity:     sev,
		Risk:         domain.RiskHigh,
		Title:        "Page is not reachable",
		Description:  desc,
		CurrentValue: fmt.Sprintf("%d", p.StatusCode),
	}}
}

func latencyRule(p *crawler.PageRecord) []Finding {
	if p.LoadTimeMs <= SlowLoadMs {
		return nil
	}
	sev := domain.SeverityMedium
	if p.LoadTimeMs > VerySlowLoadMs {
		sev = domain.SeverityHigh
	}
	return []Finding{{
		Type:         TypeSlowPageLoad,
		Category:     domain.CategoryPerformance,
		Severity:     sev,
		Risk:         domain.RiskHigh,
		Title:        "Slow page load",
		Description:  fmt.Sprintf("The page took %d ms to load; aim for under %d ms.", p.LoadTimeMs, SlowLoadMs),
		CurrentValue: fmt.Sprintf("%d ms", p.LoadTimeMs),
	}}
}

func titleRule(p *crawler.PageRecord) []Finding {
	title := strings.TrimSpace(p.Title)
	n := utf8.RuneCountInString(title)

	switch {
	case n == 0:
		return []Finding{{
			Type:        TypeMissingTitle,
			Category:    domain.CategoryMeta,
			Severity:    domain.SeverityCritical,
			Risk:        domain.RiskLow,
			AutoFixable: true,
			Title:       "Missing page title",
			Description: "The page has no <title>; search engines will invent one.",
		}}
	case n < TitleMinLength:
		return []Finding{{
			Type:         TypeTitleTooShort,
			Category:     domain.CategoryMeta,
			Severity:     domain.SeverityMedium,
			Risk:         domain.RiskLow,
			AutoFixable:  true,
			Title:        "Title too short",
			Description:  fmt.Sprintf("The title is %d characters; %d-%d is recommended.", n, TitleMinLength, TitleMaxLength),
			CurrentValue: title,
		}}
	case n > TitleMaxLength:
		return []Finding{{
			Type:         TypeTitleTooLong,
			Category:     domain.CategoryMeta,
			Severity:     domain.SeverityLow,
			Risk:         domain.RiskLow,
			AutoFixable:  true,
			Title:        "Title too long",
			Description:  fmt.Sprintf("The title is %d characters and will be truncated in results.", n),
			CurrentValue: title,
		}}
	default:
		return nil
	}
}

func metaRule(p *crawler.PageRecord) []Finding {
	meta := strings.TrimSpace(p.MetaDescription)
	n := utf8.RuneCountInString(meta)

	switch {
	case n == 0:
		return []Finding{{
			Type:        TypeMissingMeta,
			Category:    domain.CategoryMeta,
			Severity:    domain.SeverityHigh,
			Risk:        domain.RiskLow,
			AutoFixable: true,
			Title:       "Missing meta description",
			Description: "The page has no meta description to use as a search snippet.",
		}}
	case n < MetaMinLength:
		return []Finding{{
			Type:         TypeMetaTooShort,
			Category:     domain.CategoryMeta,
			Severity:     domain.SeverityMedium,
			Risk:         domain.RiskLow,
			AutoFixable:  true,
			Title:        "Meta description too short",
			Description:  fmt.Sprintf("The meta description is %d characters; %d-%d is recommended.", n, MetaMinLength, MetaMaxLength),
			CurrentValue: meta,
		}}
	case n > MetaMaxLength:
		return []Finding{{
			Type:         TypeMetaTooLong,
			Category:     domain.CategoryMeta,
			Severity:     domain.SeverityLow,
			Risk:         domain.RiskLow,
			AutoFixable:  true,
			Title:        "Meta description too long",
			Description:  fmt.Sprintf("The meta description is %d characters and will be truncated.", n),
			CurrentValue: meta,
		}}
	default:
		return nil
	}
}

func h1Rule(p *crawler.PageRecord) []Finding {
	switch len(p.H1) {
	case 0:
		return []Finding{{
			Type:        TypeMissingH1,
			Category:    domain.CategoryHeadings,
			Severity:    domain.SeverityHigh,
			Risk:        domain.RiskMedium,
			AutoFixable: true,
			Title:       "Missing H1 heading",
			Description: "The page has no <h1>; adding one may restructure the markup.",
		}}
	case 1:
		return nil
	default:
		return []Finding{{
			Type:         TypeMultipleH1,
			Category:     domain.CategoryHeadings,
			Severity:     domain.SeverityMedium,
			Risk:         domain.RiskMedium,
			Title:        "Multiple H1 headings",
			Description:  fmt.Sprintf("The page has %d <h1> elements; keep exactly one.", len(p.H1)),
			CurrentValue: strings.Join(p.H1, "\n"),
		}}
	}
}

func altTextRule(p *crawler.PageRecord) []Finding {
	missing := make([]string, 0)
	for _, img := range p.Images {
		if !img.HasAlt {
			missing = append(missing, img.URL)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	sev := domain.SeverityMedium
	if len(missing) > AltCountHighSeverity {
		sev = domain.SeverityHigh
	}
	return []Finding{{
		Type:         TypeMissingAltText,
		Category:     domain.CategoryImages,
		Severity:     sev,
		Risk:         domain.RiskLow,
		AutoFixable:  true,
		Title:        "Images missing alt text",
		Description:  fmt.Sprintf("%d of %d images have no alt text.", len(missing), len(p.Images)),
		CurrentValue: strings.Join(missing, "\n"),
	}}
}

func thinContentRule(p *crawler.PageRecord) []Finding {
	if p.WordCount >= ThinContentWords {
		return nil
	}
	sev := domain.SeverityMedium
	if p.WordCount < VeryThinContentWords {
		sev = domain.SeverityHigh
	}
	return []Finding{{
		Type:         TypeThinContent,
		Category:     domain.CategoryContent,
		Severity:     sev,
		Risk:         domain.RiskHigh,
		Title:        "Thin content",
		Description:  fmt.Sprintf("The page has %d words; at least %d is recommended.", p.WordCount, ThinContentWords),
		CurrentValue: fmt.Sprintf("%d words", p.WordCount),
	}}
}

func internalLinksRule(p *crawler.PageRecord) []Finding {
	n := len(p.InternalLinks())
	if n >= MinInternalLinks {
		return nil
	}
	return []Finding{{
		Type:         TypeLowInternalLinks,
		Category:     domain.CategoryLinks,
		Severity:     domain.SeverityLow,
		Risk:         domain.RiskMedium,
		Title:        "Few internal links",
		Description:  fmt.Sprintf("The page links to %d other pages on the site; at least %d helps crawlers and readers.", n, MinInternalLinks),
		CurrentValue: fmt.Sprintf("%d internal links", n),
	}}
}

// imageFindings converts per-image tags. Missing alt is reported once per
// page by altTextRule instead.
func imageFindings(img *imaging.ImageRecord) []Finding {
	out := make([]Finding, 0, len(img.Tags))
	src := img.Ref.URL

	for _, tag := range img.Tags {
		f := Finding{Category: domain.CategoryImages, CurrentValue: src}
		switch tag {
		case imaging.TagOversizedFile:
			f.Type, f.Severity, f.Risk = TypeImageOversized, domain.SeverityMedium, domain.RiskMedium
			if img.Asset != nil && img.Asset.Bytes > imaging.HeavyFileBytes {
				f.Severity = domain.SeverityHigh
			}
			f.Title = "Oversized image file"
			f.Description = fmt.Sprintf("The image is %s; keep images under %s.", humanBytes(assetBytes(img)), humanBytes(imaging.OversizedFileBytes))
		case imaging.TagLegacyPNG:
			f.Type, f.Severity, f.Risk = TypeImageLegacyFormat, domain.SeverityLow, domain.RiskMedium
			f.Title = "Opaque PNG could use a modern format"
			f.Description = "The PNG has no transparency; WebP or AVIF would be much smaller."
		case imaging.TagOversizedWidth:
			f.Type, f.Severity, f.Risk = TypeImageTooWide, domain.SeverityMedium, domain.RiskMedium
			f.Title = "Image wider than needed"
			f.Description = fmt.Sprintf("The image is %d px wide; %d px is the recommended maximum.", img.Asset.Width, imaging.MaxWidthPx)
		case imaging.TagNoLazyLoading:
			f.Type, f.Severity, f.Risk, f.AutoFixable = TypeImageNoLazyLoading, domain.SeverityLow, domain.RiskLow, true
			f.Title = "Image not lazy-loaded"
			f.Description = `The image has no loading="lazy" attribute.`
		case imaging.TagPoorCompression:
			f.Type, f.Severity, f.Risk = TypeImagePoorCompression, domain.SeverityLow, domain.RiskMedium
			f.Title = "Poorly compressed image"
			f.Description = fmt.Sprintf("The image uses %.2f bytes per pixel.", img.Asset.BytesPerPixel())
		case imaging.TagDuplicate:
			f.Type, f.Severity, f.Risk = TypeImageDuplicate, domain.SeverityLow, domain.RiskLow
			f.Title = "Duplicate image"
			f.Description = "The same image content is served from more than one URL."
		default:
			continue
		}
		out = append(out, f)
	}
	return out
}

func assetBytes(img *imaging.ImageRecord) int64 {
	if img.Asset == nil {
		return 0
	}
	return img.Asset.Bytes
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	if n < unit*unit {
		return fmt.Sprintf("%.0f KB", float64(n)/unit)
	}
	return fmt.Sprintf("%.1f MB", float64(n)/(unit*unit))
}
