package suggest

import (
	"sort"
	"strings"

	"github.com/rawinstinctart/rawauditpro/internal/crawler"
	"github.com/rawinstinctart/rawauditpro/internal/imaging"
)

// LinkCandidate is a crawled page the current page does not yet link to.
type LinkCandidate struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// PageContext is what a provider may know about the page behind a finding.
type PageContext struct {
	URL             string          `json:"url"`
	Host            string          `json:"host"`
	Title           string          `json:"title"`
	MetaDescription string          `json:"meta_description"`
	H1              []string        `json:"h1"`
	H2              []string        `json:"h2"`
	BodyText        string          `json:"body_text"`
	WordCount       int             `json:"word_count"`
	LinkCandidates  []LinkCandidate `json:"link_candidates,omitempty"`
	// Image is set for image findings.
	Image *imaging.Asset `json:"image,omitempty"`
}

// NewPageContext builds a context for page. site is every page of the
// crawl; those reachable but not linked from page become link candidates.
func NewPageContext(page *crawler.PageRecord, site []*crawler.PageRecord) *PageContext {
	if page == nil {
		return &PageContext{}
	}
	host, _ := crawler.Hostname(page.URL)

	pc := &PageContext{
		URL:             page.URL,
		Host:            host,
		Title:           page.Title,
		MetaDescription: page.MetaDescription,
		H1:              page.H1,
		H2:              page.H2,
		BodyText:        page.BodyText,
		WordCount:       page.WordCount,
	}

	linked := make(map[string]struct{})
	if self, err := crawler.NormalizeURL(page.URL); err == nil {
		linked[self] = struct{}{}
	}
	for _, l := range page.InternalLinks() {
		if key, err := crawler.NormalizeURL(l); err == nil {
			linked[key] = struct{}{}
		}
	}
	for _, other := range site {
		if other == nil || !other.OK() {
			continue
		}
		key, err := crawler.NormalizeURL(other.URL)
		if err != nil {
			continue
		}
		if _, ok := linked[key]; ok {
			continue
		}
		linked[key] = struct{}{}
		pc.LinkCandidates = append(pc.LinkCandidates, LinkCandidate{URL: other.URL, Title: other.Title})
	}
	rankCandidates(pc)

	return pc
}

// rankCandidates orders candidates by shared vocabulary with the page, then
// by URL, so rule output stays deterministic.
func rankCandidates(pc *PageContext) {
	terms := make(map[string]struct{})
	for _, w := range tokenize(pc.Title + " " + strings.Join(pc.H1, " ") + " " + strings.Join(pc.H2, " ")) {
		terms[w] = struct{}{}
	}
	overlap := func(c LinkCandidate) int {
		n := 0
		for _, w := range tokenize(c.Title) {
			if _, ok := terms[w]; ok {
				n++
			}
		}
		return n
	}
	sort.SliceStable(pc.LinkCandidates, func(i, j int) bool {
		oi, oj := overlap(pc.LinkCandidates[i]), overlap(pc.LinkCandidates[j])
		if oi != oj {
			return oi > oj
		}
		return pc.LinkCandidates[i].URL < pc.LinkCandidates[j].URL
	})
}
