package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize prepares a string for fuzzy comparison: accents are stripped,
// case is folded, punctuation is dropped, "&" reads as "and", and whitespace
// is collapsed.
func Normalize(value string) string {
	if value == "" {
		return ""
	}
	stripper := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, value)
	if err != nil {
		stripped = value
	}
	folded := cases.Fold().String(stripped)

	var b strings.Builder
	b.Grow(len(folded))
	space := true
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case r == '&':
			if !space {
				b.WriteByte(' ')
			}
			b.WriteString("and ")
			space = true
		case r == '\'' || r == '’':
			// possessives and contractions stay glued: "Ender's" -> "enders"
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// TitleCase capitalizes a lowercase or uppercase-only phrase. Mixed-case input
// is returned untouched so deliberate casing such as "iPhone" survives.
func TitleCase(value string) string {
	if value == "" {
		return value
	}
	if value != strings.ToLower(value) && value != strings.ToUpper(value) {
		return value
	}
	return cases.Title(language.English).String(strings.ToLower(value))
}
