package textutil

import (
	"math"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Ratio returns a 0-100 similarity score for two strings after normalization.
// The score is 100*(1 - distance/longest) rounded to the nearest integer.
// An empty side yields 0.
func Ratio(a, b string) int {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 100
	}
	longest := max(utf8.RuneCountInString(na), utf8.RuneCountInString(nb))
	distance := levenshtein.ComputeDistance(na, nb)
	score := 100 * (1 - float64(distance)/float64(longest))
	return clamp(int(math.Round(score)), 0, 100)
}

func clamp(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
