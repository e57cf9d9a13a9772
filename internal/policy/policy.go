// Package policy defines the Safe, Balanced and Aggressive optimization
// profiles. A profile is chosen once per audit and never changes for that run.
package policy

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
)

// ErrUnknownPolicy is returned by Lookup for unrecognized names.
var ErrUnknownPolicy = errors.New("unknown optimization policy")

// Name identifies a profile.
type Name string

const (
	Safe       Name = "safe"
	Balanced   Name = "balanced"
	Aggressive Name = "aggressive"
)

// Level is a coarse aggressiveness scale for structural edits.
type Level int

const (
	LevelMinimal Level = iota + 1
	LevelModerate
	LevelFull
)

func (l Level) String() string {
	switch l {
	case LevelMinimal:
		return "minimal"
	case LevelModerate:
		return "moderate"
	case LevelFull:
		return "full"
	default:
		return "unknown"
	}
}

// Profile is a fixed parameter bundle.
type Profile struct {
	Name Name `json:"name"`
	// MaxLengthChange bounds how many characters a rewrite may add, as a
	// fraction of the recommended maximum length for that field.
	MaxLengthChange      float64 `json:"max_length_change"`
	KeywordDensityTarget float64 `json:"keyword_density_target"`
	HeadingRestructure   Level   `json:"heading_restructure"`
	MaxNewInternalLinks  int     `json:"max_new_internal_links"`
	ContentRewrite       Level   `json:"content_rewrite"`
	// ImageQuality is the re-encode quality target (0-100) proposed for images.
	ImageQuality       int     `json:"image_quality"`
	AutoApplyThreshold float64 `json:"auto_apply_threshold"`
}

// Variant is the proposal variant a run under this profile selects.
func (p Profile) Variant() domain.Variant {
	return domain.Variant(p.Name)
}

// GrowthBudget is the longest a value of currentLen may become when the
// field's recommended maximum is maxLen.
func (p Profile) GrowthBudget(currentLen, maxLen int) int {
	budget := currentLen + int(math.Ceil(p.MaxLengthChange*float64(maxLen)))
	return min(budget, maxLen)
}

// Allows reports whether confidence clears the auto-apply threshold.
func (p Profile) Allows(confidence float64) bool {
	return confidence >= p.AutoApplyThreshold
}

var profiles = map[Name]Profile{
	Safe: {
		Name:                 Safe,
		MaxLengthChange:      0.25,
		KeywordDensityTarget: 0.01,
		HeadingRestructure:   LevelMinimal,
		MaxNewInternalLinks:  1,
		ContentRewrite:       LevelMinimal,
		ImageQuality:         90,
		AutoApplyThreshold:   0.90,
	},
	Balanced: {
		Name:                 Balanced,
		MaxLengthChange:      0.5,
		KeywordDensityTarget: 0.015,
		HeadingRestructure:   LevelModerate,
		MaxNewInternalLinks:  3,
		ContentRewrite:       LevelModerate,
		ImageQuality:         80,
		AutoApplyThreshold:   0.80,
	},
	Aggressive: {
		Name:                 Aggressive,
		MaxLengthChange:      1.0,
		KeywordDensityTarget: 0.025,
		HeadingRestructure:   LevelFull,
		MaxNewInternalLinks:  5,
		ContentRewrite:       LevelFull,
		ImageQuality:         70,
		AutoApplyThreshold:   0.70,
	},
}

// Lookup resolves a profile by name, case-insensitively.
func Lookup(name string) (Profile, error) {
	p, ok := profiles[Name(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	return p, nil
}

// Resolve is Lookup with a fallback used when name is empty.
func Resolve(name, fallback string) (Profile, error) {
	if strings.TrimSpace(name) == "" {
		name = fallback
	}
	return Lookup(name)
}

// All returns the profiles ordered Safe, Balanced, Aggressive.
func All() []Profile {
	return []Profile{profiles[Safe], profiles[Balanced], profiles[Aggressive]}
}

// ForVariant returns the profile whose parameters generate variant v.
func ForVariant(v domain.Variant) Profile {
	if p, ok := profiles[Name(v)]; ok {
		return p
	}
	return profiles[Balanced]
}
