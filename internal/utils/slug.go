package utils

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLength = 120

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	dashRunRe    = regexp.MustCompile(`-+`)

	// NFD + strip combining marks so "Café" and "Cafe" produce the same slug
	slugFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// SanitizeSlug derives a stable slug from a title. The same title always
// produces the same slug, so re-scrapes of a series converge on one row.
func SanitizeSlug(name string) string {
	if name == "" {
		return "untitled"
	}

	if folded, _, err := transform.String(slugFolder, name); err == nil {
		name = folded
	}

	var b strings.Builder
	for _, r := range name {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			// filesystem-unsafe characters are dropped outright
		default:
			b.WriteRune(r)
		}
	}

	slug := whitespaceRe.ReplaceAllString(b.String(), "-")
	slug = dashRunRe.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
	}
	if slug == "" {
		return "untitled"
	}
	return slug
}
