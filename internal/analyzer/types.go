// Package analyzer maps crawled pages and inspected images to typed SEO
// findings. Everything here is pure and deterministic.
package analyzer

// Issue types.
const (
	TypeHTTPError               = "http_error"
	TypeMissingTitle            = "missing_title"
	TypeTitleTooShort           = "title_too_short"
	TypeTitleTooLong            = "title_too_long"
	TypeMissingMeta             = "missing_meta_description"
	TypeMetaTooShort            = "meta_description_too_short"
	TypeMetaTooLong             = "meta_description_too_long"
	TypeMissingH1               = "missing_h1"
	TypeMultipleH1              = "multiple_h1"
	TypeMissingAltText          = "missing_alt_text"
	TypeSlowPageLoad            = "slow_page_load"
	TypeThinContent             = "thin_content"
	TypeLowInternalLinks        = "low_internal_links"
	TypeImageOversized          = "image_oversized"
	TypeImageLegacyFormat       = "image_legacy_format"
	TypeImageTooWide            = "image_too_wide"
	TypeImageNoLazyLoading      = "image_no_lazy_loading"
	TypeImagePoorCompression    = "image_poor_compression"
	TypeImageDuplicate          = "image_duplicate"
	TypeInternalLinkOpportunity = "internal_link_opportunity"
)

// Rule thresholds. These are fixed policy, not per-run tunables.
const (
	TitleMinLength       = 30
	TitleMaxLength       = 60
	MetaMinLength        = 120
	MetaMaxLength        = 160
	AltCountHighSeverity = 3
	SlowLoadMs           = 3000
	VerySlowLoadMs       = 6000
	ThinContentWords     = 300
	VeryThinContentWords = 150
	MinInternalLinks     = 3
)

// nonRemediable types get proposals as advice only; no draft is derived.
// Low internal linking is handled by opportunity drafts instead.
var nonRemediable = map[string]bool{
	TypeHTTPError:        true,
	TypeSlowPageLoad:     true,
	TypeLowInternalLinks: true,
}

// Remediable reports whether a finding of this type can be expressed as a
// concrete edit and therefore gets a Draft.
func Remediable(issueType string) bool {
	return !nonRemediable[issueType]
}
