package domain

import (
	"strings"

	"github.com/gosimple/slug"
)

// NameKey normalizes a subscription name for per-owner uniqueness checks:
// case-folded, trimmed, with inner whitespace collapsed. Punctuation and
// accents are significant, so "Apple TV" and "Apple TV+" stay distinct.
func NameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// DisplaySlug is a URL-friendly form of the name. It is not unique.
func DisplaySlug(name string) string {
	return slug.Make(strings.TrimSpace(name))
}
