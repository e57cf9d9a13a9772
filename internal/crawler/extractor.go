package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const nonContentSelectors = "script, style, noscript, template, svg"

// extract fills the structural fields of page from an HTML body. base is the
// page's own (post-redirect) URL; links and image sources resolve against it.
func extract(page *PageRecord, base *url.URL, body []byte, textLimit int) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	page.Title = collapseSpace(doc.Find("head title").First().Text())
	if page.Title == "" {
		page.Title = collapseSpace(doc.Find("title").First().Text())
	}
	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(s.AttrOr("name", ""), "description") {
			return true
		}
		page.MetaDescription = collapseSpace(s.AttrOr("content", ""))
		return false
	})
	if canonical, ok := doc.Find("link[rel='canonical']").Attr("href"); ok {
		if abs, resolved := resolveLink(base, canonical); resolved {
			page.Canonical = abs
		}
	}

	page.H1 = headingTexts(doc, "h1")
	page.H2 = headingTexts(doc, "h2")
	page.Images = extractImages(doc, base, page.URL)
	page.Links = extractLinks(doc, base)

	text := bodyText(doc)
	page.WordCount = len(strings.Fields(text))
	page.BodyText = truncateRunes(text, textLimit)

	return nil
}

func headingTexts(doc *goquery.Document, tag string) []string {
	out := make([]string, 0)
	doc.Find(tag).Each(func(_ int, s *goquery.Selection) {
		if text := collapseSpace(s.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

func extractImages(doc *goquery.Document, base *url.URL, pageURL string) []ImageRef {
	seen := make(map[string]struct{})
	out := make([]ImageRef, 0)

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		dataSrc, hasDataSrc := s.Attr("data-src")
		if strings.TrimSpace(src) == "" || strings.HasPrefix(strings.ToLower(src), "data:") {
			src = dataSrc
		}

		abs, ok := resolveLink(base, src)
		if !ok {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}

		alt, hasAlt := s.Attr("alt")
		loading := strings.ToLower(strings.TrimSpace(s.AttrOr("loading", "")))
		class := strings.ToLower(s.AttrOr("class", ""))

		out = append(out, ImageRef{
			URL:      abs,
			PageURL:  pageURL,
			Alt:      strings.TrimSpace(alt),
			HasAlt:   hasAlt && strings.TrimSpace(alt) != "",
			Loading:  loading,
			LazyHint: loading == "lazy" || hasDataSrc || strings.Contains(class, "lazyload"),
		})
	})
	return out
}

func extractLinks(doc *goquery.Document, base *url.URL) []Link {
	host := strings.ToLower(base.Hostname())
	seen := make(map[string]struct{})
	out := make([]Link, 0)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, ok := resolveLink(base, href)
		if !ok {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}

		linkHost, err := Hostname(abs)
		out = append(out, Link{
			URL:      abs,
			Text:     collapseSpace(s.Text()),
			Internal: err == nil && linkHost == host,
		})
	})
	return out
}

func bodyText(doc *goquery.Document) string {
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return ""
	}
	body = body.Clone()
	body.Find(nonContentSelectors).Remove()
	return collapseSpace(body.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
