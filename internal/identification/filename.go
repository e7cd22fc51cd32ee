package identification

import (
	"path/filepath"
	"regexp"
	"strings"

	"audioshelf/internal/config"
	"audioshelf/internal/textutil"
)

// NameHints holds the fields recovered from a directory or file name.
type NameHints struct {
	Title      string
	Author     string
	Series     string
	SeriesPart string
	Year       string
}

var (
	bracketYearPattern = regexp.MustCompile(`[\[(]\s*((?:1[89]|20)\d{2})\s*[\])]`)
	seriesHintPattern  = regexp.MustCompile(`(?i)[\[(]\s*([^\[\]()]+?)\s*(?:#|,?\s*book\s+|,?\s*vol\.?\s*)(\d+(?:\.\d+)?)\s*[\])]`)
	noisePatterns      = []*regexp.Regexp{
		regexp.MustCompile(`\[[^\]]*\]`),
		regexp.MustCompile(`\([^)]*\)`),
		regexp.MustCompile(`(?i)\b\d+\s?kbps\b`),
		regexp.MustCompile(`(?i)\bunabridged\b`),
		regexp.MustCompile(`(?i)\babridged\b`),
		regexp.MustCompile(`(?i)\baudiobook\b`),
	}
	byPattern         = regexp.MustCompile(`(?i)^(.+?)\s+by\s+(.+)$`)
	initialsPattern   = regexp.MustCompile(`\b\p{Lu}\.`)
	seriesPartPattern = regexp.MustCompile(`(?i)^(.*?)[\s,]*(?:book|vol\.?|volume|#)\s*(\d+(?:\.\d+)?)$`)
	bareNumberPattern = regexp.MustCompile(`^(.*?\D)\s+(\d{1,3}(?:\.\d+)?)$`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// ParseName extracts hints from a single path segment. isFile strips the
// extension first so dotted directory names ("J.R.R. Tolkien - ...") keep
// their punctuation.
func ParseName(name string, isFile bool, order string) NameHints {
	var hints NameHints
	text := strings.TrimSpace(name)
	if isFile {
		text = strings.TrimSuffix(text, filepath.Ext(text))
	}
	text = strings.ReplaceAll(text, "_", " ")

	if m := bracketYearPattern.FindStringSubmatch(text); len(m) == 2 {
		hints.Year = m[1]
	}
	if m := seriesHintPattern.FindStringSubmatch(text); len(m) == 3 {
		hints.Series = cleanSegment(m[1])
		hints.SeriesPart = trimPartNumber(m[2])
	}
	for _, pattern := range noisePatterns {
		text = pattern.ReplaceAllString(text, " ")
	}
	text = cleanSegment(text)
	if text == "" {
		return hints
	}

	parts := splitDash(text)
	switch {
	case len(parts) >= 3:
		hints.Author = parts[0]
		series, part := splitSeriesPart(parts[1])
		if hints.Series == "" {
			hints.Series = series
		}
		if hints.SeriesPart == "" {
			hints.SeriesPart = part
		}
		hints.Title = strings.Join(parts[2:], " - ")
	case len(parts) == 2:
		hints.Title, hints.Author = orderPair(parts[0], parts[1], order)
	default:
		if m := byPattern.FindStringSubmatch(text); len(m) == 3 {
			hints.Title, hints.Author = cleanSegment(m[1]), cleanSegment(m[2])
		} else {
			hints.Title = text
		}
	}

	hints.Title = textutil.TitleCase(hints.Title)
	hints.Author = textutil.TitleCase(hints.Author)
	hints.Series = textutil.TitleCase(hints.Series)
	return hints
}

// orderPair decides which side of "A - B" is the author. Initials mark a
// person name; otherwise the configured order applies.
func orderPair(first, second, order string) (title, author string) {
	firstInitials := initialsPattern.MatchString(first)
	secondInitials := initialsPattern.MatchString(second)
	switch {
	case firstInitials && !secondInitials:
		return second, first
	case secondInitials && !firstInitials:
		return first, second
	case order == config.FilenameOrderAuthorTitle:
		return second, first
	default:
		return first, second
	}
}

func splitDash(text string) []string {
	raw := strings.Split(text, " - ")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		if part = cleanSegment(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func splitSeriesPart(segment string) (series, part string) {
	for _, pattern := range []*regexp.Regexp{seriesPartPattern, bareNumberPattern} {
		if m := pattern.FindStringSubmatch(segment); len(m) == 3 && cleanSegment(m[1]) != "" {
			return cleanSegment(m[1]), trimPartNumber(m[2])
		}
	}
	return segment, ""
}

func trimPartNumber(part string) string {
	trimmed := strings.TrimLeft(part, "0")
	if trimmed == "" || strings.HasPrefix(trimmed, ".") {
		return "0" + trimmed
	}
	return trimmed
}

func cleanSegment(value string) string {
	value = whitespacePattern.ReplaceAllString(value, " ")
	return strings.Trim(value, " -,.;")
}
