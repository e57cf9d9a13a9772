package drafts

import "github.com/pmezard/go-difflib/difflib"

// Diff renders a unified line diff from before to after. Identical inputs
// produce an empty string.
func Diff(before, after string) string {
	if before == after {
		return ""
	}
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "current",
		ToFile:   "proposed",
		Context:  2,
	})
	if err != nil {
		return ""
	}
	return out
}
