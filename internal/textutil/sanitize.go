package textutil

import "strings"

// maxSegmentBytes keeps a sanitized segment comfortably under common NAME_MAX limits.
const maxSegmentBytes = 200

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", " -",
	"*", "-",
	"?", "",
	"\"", "'",
	"<", "",
	">", "",
	"|", "-",
	"\x00", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, pipes, and asterisks become dashes; colons become
// " -"; other unsafe characters are removed. Runs of whitespace collapse to one
// space and the result is trimmed.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	cleaned := strings.Join(strings.Fields(fileNameReplacer.Replace(name)), " ")
	return truncateBytes(cleaned, maxSegmentBytes)
}

// SanitizeSegment sanitizes a single directory name. Leading and trailing dots
// are stripped so a segment can never be hidden, "." or "..". When nothing
// usable remains the fallback is returned.
func SanitizeSegment(value, fallback string) string {
	cleaned := strings.Trim(SanitizeFileName(value), ". ")
	if cleaned == "" {
		return fallback
	}
	return cleaned
}

func truncateBytes(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := 0
	for i := range value {
		if i > limit {
			break
		}
		cut = i
	}
	return strings.TrimSpace(value[:cut])
}
