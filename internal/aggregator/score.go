package aggregator

import (
	"math"
	"sort"
	"strings"

	"audioshelf/internal/providers"
	"audioshelf/internal/textutil"
)

const (
	// MaxScore is awarded to identifier matches.
	MaxScore     = 100
	titleWeight  = 0.7
	authorWeight = 0.3
)

// ScoredCandidate is a candidate with its confidence against the reference.
type ScoredCandidate struct {
	providers.Candidate
	Score int `json:"score"`
}

// Score rates how well c matches ref on a 0-100 scale.
func Score(ref providers.Query, c providers.Candidate) int {
	ref = ref.Normalized()
	if ref.ISBN != "" && sameISBN(ref.ISBN, c.ISBN) {
		return MaxScore
	}
	if ref.ASIN != "" && strings.EqualFold(ref.ASIN, strings.TrimSpace(c.ASIN)) {
		return MaxScore
	}
	if ref.Title == "" {
		return 0
	}

	title := textutil.Ratio(ref.Title, c.Title)
	if c.Subtitle != "" {
		title = max(title, textutil.Ratio(ref.Title, c.Title+" "+c.Subtitle))
	}
	if ref.Author == "" || strings.TrimSpace(c.Author) == "" {
		return title
	}
	author := textutil.Ratio(ref.Author, c.Author)
	return int(math.Round(titleWeight*float64(title) + authorWeight*float64(author)))
}

// Rank scores candidates and orders them by descending score. Equal scores
// keep provider priority, then the provider's own ordering.
func Rank(ref providers.Query, candidates []providers.Candidate, priority []string) []ScoredCandidate {
	order := make(map[string]int, len(priority))
	for i, name := range priority {
		if _, seen := order[name]; !seen {
			order[name] = i
		}
	}
	rankOf := func(name string) int {
		if idx, ok := order[name]; ok {
			return idx
		}
		return len(order)
	}

	scored := make([]ScoredCandidate, len(candidates))
	for i, c := range candidates {
		scored[i] = ScoredCandidate{Candidate: c, Score: Score(ref, c)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return rankOf(scored[i].Provider) < rankOf(scored[j].Provider)
	})
	return scored
}

// sameISBN compares ISBNs, treating an ISBN-10 and its ISBN-13 form as equal.
func sameISBN(a, b string) bool {
	a, b = isbn13(a), isbn13(b)
	return a != "" && a == b
}

func isbn13(value string) string {
	value = providers.NormalizeISBN(value)
	switch len(value) {
	case 13:
		return value
	case 10:
		body := "978" + value[:9]
		sum := 0
		for i, r := range body {
			digit := int(r - '0')
			if i%2 == 1 {
				digit *= 3
			}
			sum += digit
		}
		check := (10 - sum%10) % 10
		return body + string(rune('0'+check))
	default:
		return ""
	}
}
