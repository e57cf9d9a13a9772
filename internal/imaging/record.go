// Package imaging measures the images referenced by crawled pages and tags
// them with optimization findings.
package imaging

import (
	"slices"

	"github.com/rawinstinctart/rawauditpro/internal/crawler"
)

// Tag is one entry of the fixed image finding vocabulary.
type Tag string

const (
	TagOversizedFile   Tag = "oversized_file"
	TagLegacyPNG       Tag = "legacy_png"
	TagOversizedWidth  Tag = "oversized_width"
	TagMissingAlt      Tag = "missing_alt"
	TagNoLazyLoading   Tag = "no_lazy_loading"
	TagPoorCompression Tag = "poor_compression"
	TagDuplicate       Tag = "duplicate"
)

// Fixed thresholds.
const (
	OversizedFileBytes       = 200 * 1024
	HeavyFileBytes           = 1024 * 1024
	MaxWidthPx               = 2000
	PoorCompressionThreshold = 0.5 // bytes per pixel
	// MinCompressionCheckBytes skips the bytes-per-pixel test for icons and
	// other tiny files, where container overhead dominates.
	MinCompressionCheckBytes = 10 * 1024
)

// Asset is the measured content behind one image URL. Assets are fetched
// once per audit and shared by every page that references the URL.
type Asset struct {
	URL         string `json:"url"`
	Fetched     bool   `json:"fetched"`
	Note        string `json:"note,omitempty"`
	Bytes       int64  `json:"bytes"`
	Hash        string `json:"hash,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Format      string `json:"format,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	// Opaque is known only for decoded PNGs; nil means undetermined.
	Opaque *bool `json:"opaque,omitempty"`
}

// BytesPerPixel is zero when dimensions are unknown.
func (a *Asset) BytesPerPixel() float64 {
	if a == nil || a.Width <= 0 || a.Height <= 0 {
		return 0
	}
	return float64(a.Bytes) / float64(a.Width*a.Height)
}

// ImageRecord is one page's reference to an asset plus its tags.
type ImageRecord struct {
	Ref   crawler.ImageRef `json:"ref"`
	Asset *Asset           `json:"asset"`
	Tags  []Tag            `json:"tags"`
}

// Has reports whether the record carries tag.
func (r *ImageRecord) Has(tag Tag) bool {
	return slices.Contains(r.Tags, tag)
}

func (r *ImageRecord) add(tag Tag) {
	if !r.Has(tag) {
		r.Tags = append(r.Tags, tag)
	}
}

// tagRecord assigns every per-image tag. TagDuplicate is left to
// MarkDuplicates because it depends on the whole audit.
func tagRecord(r *ImageRecord) {
	if !r.Ref.HasAlt {
		r.add(TagMissingAlt)
	}
	if !r.Ref.LazyHint {
		r.add(TagNoLazyLoading)
	}

	a := r.Asset
	if a == nil || !a.Fetched {
		return
	}
	if a.Bytes > OversizedFileBytes {
		r.add(TagOversizedFile)
	}
	if a.Format == "png" && a.Opaque != nil && *a.Opaque {
		r.add(TagLegacyPNG)
	}
	if a.Width > MaxWidthPx {
		r.add(TagOversizedWidth)
	}
	if a.Bytes >= MinCompressionCheckBytes && a.BytesPerPixel() > PoorCompressionThreshold {
		r.add(TagPoorCompression)
	}
}

// MarkDuplicates is the audit-wide second pass: every record whose content
// hash is shared by two or more distinct image URLs gets TagDuplicate. The
// same URL referenced from several pages is one asset, not a duplicate.
func MarkDuplicates(records []*ImageRecord) int {
	urlsByHash := make(map[string]map[string]struct{})
	for _, r := range records {
		if r.Asset == nil || r.Asset.Hash == "" {
			continue
		}
		urls, ok := urlsByHash[r.Asset.Hash]
		if !ok {
			urls = make(map[string]struct{})
			urlsByHash[r.Asset.Hash] = urls
		}
		urls[r.Asset.URL] = struct{}{}
	}

	marked := 0
	for _, r := range records {
		if r.Asset == nil || r.Asset.Hash == "" {
			continue
		}
		if len(urlsByHash[r.Asset.Hash]) > 1 && !r.Has(TagDuplicate) {
			r.add(TagDuplicate)
			marked++
		}
	}
	return marked
}
