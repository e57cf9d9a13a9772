package crawler

// PageRecord is what the crawler learned about one visited URL. Degraded
// records (fetch failure or non-200) carry only URL, StatusCode, LoadTimeMs
// and FetchError.
type PageRecord struct {
	URL             string     `json:"url"`
	StatusCode      int        `json:"status_code"`
	LoadTimeMs      int64      `json:"load_time_ms"`
	FetchError      string     `json:"fetch_error,omitempty"`
	Title           string     `json:"title"`
	MetaDescription string     `json:"meta_description"`
	Canonical       string     `json:"canonical,omitempty"`
	H1              []string   `json:"h1"`
	H2              []string   `json:"h2"`
	Images          []ImageRef `json:"images"`
	Links           []Link     `json:"links"`
	BodyText        string     `json:"body_text"`
	WordCount       int        `json:"word_count"`
}

// OK reports whether the page was fetched with HTTP 200.
func (p *PageRecord) OK() bool {
	return p != nil && p.StatusCode == 200
}

// InternalLinks returns the distinct same-host link targets, excluding the
// page itself.
func (p *PageRecord) InternalLinks() []string {
	seen := make(map[string]struct{}, len(p.Links))
	out := make([]string, 0, len(p.Links))
	self, _ := NormalizeURL(p.URL)
	for _, l := range p.Links {
		if !l.Internal {
			continue
		}
		key, err := NormalizeURL(l.URL)
		if err != nil || key == self {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l.URL)
	}
	return out
}

// ImageRef is an <img> reference found on a page.
type ImageRef struct {
	URL     string `json:"url"`
	PageURL string `json:"page_url"`
	Alt     string `json:"alt"`
	HasAlt  bool   `json:"has_alt"`
	Loading string `json:"loading,omitempty"`
	// LazyHint is set when the markup defers loading by any common means
	// (loading="lazy", data-src, a lazyload class).
	LazyHint bool `json:"lazy_hint"`
}

// Link is an anchor resolved against its page's URL.
type Link struct {
	URL      string `json:"url"`
	Text     string `json:"text"`
	Internal bool   `json:"internal"`
}
