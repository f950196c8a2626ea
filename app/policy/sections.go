package policy

import "strings"

// WindowFieldPublished and WindowFieldCreated name the timestamp column used
// for window/cap arithmetic.
const (
	WindowFieldPublished = "published_at"
	WindowFieldCreated   = "created_at"
)

// HistorySection is the one section whose windows are computed over the
// collection time instead of the publication time: curated historical
// content can be arbitrarily old, so published_at is useless for capping.
const HistorySection = "history"

// WindowField returns the timestamp column used for window queries in the
// given section.
func WindowField(section string) string {
	if section == HistorySection {
		return WindowFieldCreated
	}
	return WindowFieldPublished
}

// sectionAliases is v2 of the legacy label mapping. It is applied only at
// the ingestion boundary, for backward-compatible reads of historical
// free-text labels; core admission logic only ever sees canonical names.
var sectionAliases = map[string]string{
	"world":          "global",
	"international":  "global",
	"top":            "global",
	"headlines":      "global",
	"technology":     "tech",
	"tech & science": "tech",
	"it":             "tech",
	"biz":            "business",
	"finance":        "business",
	"economy":        "business",
	"markets":        "business",
	"sci":            "science",
	"research":       "science",
	"sport":          "sports",
	"athletics":      "sports",
	"retro":          "history",
	"archive":        "history",
	"on this day":    "history",
}

// NormalizeSection maps a free-text section label to its canonical name.
// Unknown labels pass through lowercased and trimmed.
func NormalizeSection(label string) string {
	key := strings.ToLower(strings.TrimSpace(label))
	if canonical, ok := sectionAliases[key]; ok {
		return canonical
	}
	return key
}
