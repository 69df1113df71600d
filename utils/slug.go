package utils

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonSlugChars    = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	multipleHyphens = regexp.MustCompile(`-+`)
)

// Slugify turns a title into a short ascii-friendly fragment usable in package file names.
// "Chapter 1: Le Début" -> "chapter-1-le-debut". Letters outside latin scripts are kept.
func Slugify(s string, maxLen int) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = nonSlugChars.ReplaceAllString(folded, "-")
	folded = multipleHyphens.ReplaceAllString(folded, "-")
	folded = strings.Trim(folded, "-")

	if maxLen > 0 {
		r := []rune(folded)
		if len(r) > maxLen {
			folded = strings.Trim(string(r[:maxLen]), "-")
		}
	}
	return folded
}
