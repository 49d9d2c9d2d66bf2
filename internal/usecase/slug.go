package usecase

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonSlug = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Slugify folds diacritics to ASCII and joins alphanumeric runs with dashes.
func Slugify(text string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, text)
	if err != nil {
		folded = text
	}
	slug := strings.ToLower(strings.Trim(nonSlug.ReplaceAllString(folded, "-"), "-"))
	if slug == "" {
		return "event"
	}
	return slug
}

// venueDir keeps a venue title usable as a single path segment.
func venueDir(venue string) string {
	cleaned := strings.NewReplacer("/", "-", "\\", "-").Replace(strings.TrimSpace(venue))
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "venue"
	}
	return cleaned
}
