package providers

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyQuery is returned when a query carries nothing to search for.
var ErrEmptyQuery = errors.New("query must carry a title or identifier")

// Query is what the aggregator knows about a book when asking a catalog.
type Query struct {
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`
	ISBN   string `json:"isbn,omitempty"`
	ASIN   string `json:"asin,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// Normalized trims every field.
func (q Query) Normalized() Query {
	q.Title = strings.TrimSpace(q.Title)
	q.Author = strings.TrimSpace(q.Author)
	q.ISBN = NormalizeISBN(q.ISBN)
	q.ASIN = strings.ToUpper(strings.TrimSpace(q.ASIN))
	return q
}

// IsEmpty reports whether the query has no title and no identifier.
func (q Query) IsEmpty() bool {
	q = q.Normalized()
	return q.Title == "" && q.ISBN == "" && q.ASIN == ""
}

// Candidate is one external record offered as a match.
type Candidate struct {
	Provider    string `json:"provider"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle,omitempty"`
	Author      string `json:"author,omitempty"`
	Narrator    string `json:"narrator,omitempty"`
	Series      string `json:"series,omitempty"`
	SeriesPart  string `json:"series_part,omitempty"`
	Year        string `json:"year,omitempty"`
	ISBN        string `json:"isbn,omitempty"`
	ASIN        string `json:"asin,omitempty"`
	Description string `json:"description,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Language    string `json:"language,omitempty"`
	CoverURL    string `json:"cover_url,omitempty"`
}

// Provider searches one external catalog. Implementations return an empty
// slice, not an error, when the catalog simply has no match.
type Provider interface {
	Name() string
	Search(ctx context.Context, query Query) ([]Candidate, error)
}

// NormalizeISBN strips separators and upper-cases a trailing X.
func NormalizeISBN(value string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'x' || r == 'X':
			b.WriteRune('X')
		}
	}
	return b.String()
}

// YearFromDate extracts a leading 4-digit year from a date string.
func YearFromDate(date string) string {
	date = strings.TrimSpace(date)
	if len(date) < 4 {
		return ""
	}
	for _, r := range date[:4] {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return date[:4]
}

// First returns the first non-empty trimmed value.
func First(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
