package suggest

import (
	"net/url"
	"path"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopwords = map[string]struct{}{
	"about": {}, "after": {}, "also": {}, "been": {}, "before": {}, "being": {}, "between": {},
	"both": {}, "could": {}, "does": {}, "each": {}, "from": {}, "have": {}, "here": {},
	"into": {}, "just": {}, "like": {}, "more": {}, "most": {}, "much": {}, "only": {},
	"other": {}, "over": {}, "same": {}, "should": {}, "some": {}, "such": {}, "than": {},
	"that": {}, "their": {}, "them": {}, "then": {}, "there": {}, "these": {}, "they": {},
	"this": {}, "those": {}, "through": {}, "very": {}, "were": {}, "what": {}, "when": {},
	"where": {}, "which": {}, "while": {}, "will": {}, "with": {}, "would": {}, "your": {},
	"home": {}, "page": {}, "click": {}, "read": {},
}

var titleSeparators = []string{" | ", " - ", " – ", " — ", ": ", " · "}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// primaryKeyword is the most frequent non-stopword of four or more letters
// in the page's headings and body. Ties break alphabetically.
func primaryKeyword(pc *PageContext) string {
	counts := make(map[string]int)
	text := pc.Title + " " + strings.Join(pc.H1, " ") + " " + strings.Join(pc.H2, " ") + " " + pc.BodyText
	for _, w := range tokenize(text) {
		if utf8.RuneCountInString(w) < 4 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		counts[w]++
	}
	if len(counts) == 0 {
		return ""
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	return words[0]
}

// keywordDensity is occurrences of kw per body word.
func keywordDensity(body, kw string) float64 {
	words := tokenize(body)
	if len(words) == 0 || kw == "" {
		return 0
	}
	n := 0
	for _, w := range words {
		if w == kw {
			n++
		}
	}
	return float64(n) / float64(len(words))
}

func containsFold(s, sub string) bool {
	return sub != "" && strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// brand derives a display name from the host: "www.clay-works.com" becomes
// "Clay Works".
func brand(host string) string {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	return titleCase(strings.NewReplacer("-", " ", "_", " ").Replace(host))
}

// slugTitle turns the last path segment of a URL into words.
func slugTitle(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	if base == "." || base == "/" || base == "" {
		return ""
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	return titleCase(strings.NewReplacer("-", " ", "_", " ", "+", " ").Replace(base))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func sentenceCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// headline picks the best existing label for the page.
func headline(pc *PageContext) string {
	for _, candidates := range [][]string{pc.H1, {stripBrandSuffix(pc.Title)}, pc.H2} {
		for _, c := range candidates {
			if c = strings.TrimSpace(c); c != "" {
				return c
			}
		}
	}
	if s := slugTitle(pc.URL); s != "" {
		return s
	}
	return brand(pc.Host)
}

// stripBrandSuffix drops everything after the first title separator.
func stripBrandSuffix(title string) string {
	title = strings.TrimSpace(title)
	for _, sep := range titleSeparators {
		if i := strings.Index(title, sep); i > 0 {
			return strings.TrimSpace(title[:i])
		}
	}
	return title
}

// fit shortens s to at most limit runes at a word boundary and trims dangling
// separators.
func fit(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:limit])
	if i := strings.LastIndexByte(cut, ' '); i > 0 && runes[limit] != ' ' {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " |-–—:·,;")
}

// fitSentence prefers cutting at the last sentence end inside limit.
func fitSentence(s string, limit int) string {
	cut := fit(s, limit)
	if utf8.RuneCountInString(strings.Join(strings.Fields(s), " ")) <= limit {
		return cut
	}
	if i := strings.LastIndexAny(cut, ".!?"); i > len(cut)/2 {
		return cut[:i+1]
	}
	return cut
}

// sentences splits text into trimmed sentences.
func sentences(text string) []string {
	out := make([]string, 0)
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(b.String()); utf8.RuneCountInString(s) > 1 {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// summary joins leading sentences of text until limit would be exceeded.
func summary(text string, limit int) string {
	var parts []string
	length := 0
	for _, s := range sentences(text) {
		n := utf8.RuneCountInString(s)
		if length > 0 && length+1+n > limit {
			break
		}
		parts = append(parts, s)
		length += n + 1
	}
	return fitSentence(strings.Join(parts, " "), limit)
}

// altFromURL derives alt text from an image file name.
func altFromURL(rawURL string) string {
	s := slugTitle(rawURL)
	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		if isNoiseToken(w) {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		return "Image"
	}
	return sentenceCase(strings.ToLower(strings.Join(kept, " ")))
}

func isNoiseToken(w string) bool {
	lw := strings.ToLower(w)
	switch lw {
	case "img", "image", "photo", "pic", "final", "copy", "large", "small", "thumb", "scaled":
		return true
	}
	digits := 0
	for _, r := range lw {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits*2 >= utf8.RuneCountInString(lw)
}
