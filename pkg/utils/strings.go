package utils

import (
	"regexp"
	"strings"
)

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes HTML tags and collapses the surrounding whitespace.
// Boundary inputs pass through this before they reach storage or templates.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	out := htmlTag.ReplaceAllString(s, "")
	return strings.TrimSpace(out)
}

// SanitizeID trims an opaque string id. IDs are never interpreted; the only
// validation is non-emptiness after trimming, which callers check.
func SanitizeID(s string) string { return strings.TrimSpace(s) }
