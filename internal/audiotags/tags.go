package audiotags

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrUnsupported is returned by Write for containers whose tags are left
// untouched.
var ErrUnsupported = errors.New("audiotags: unsupported container")

// Tags is the subset of embedded metadata the pipeline reads and writes.
type Tags struct {
	Title       string
	Author      string
	Album       string
	Narrator    string
	Year        string
	Genre       string
	Description string
	Series      string
	SeriesPart  string
	ISBN        string
	ASIN        string
}

// IsZero reports whether no field carries a value.
func (t Tags) IsZero() bool {
	return t == Tags{}
}

// Container classifies a file by extension.
type Container int

const (
	ContainerUnknown Container = iota
	ContainerID3
	ContainerMP4
	ContainerOther
)

var audioExtensions = map[string]Container{
	".mp3":  ContainerID3,
	".m4b":  ContainerMP4,
	".m4a":  ContainerMP4,
	".mp4":  ContainerMP4,
	".aac":  ContainerOther,
	".flac": ContainerOther,
	".ogg":  ContainerOther,
	".opus": ContainerOther,
	".wma":  ContainerOther,
}

// ContainerOf returns the tag container used by path.
func ContainerOf(path string) Container {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsAudio reports whether path has an audio extension.
func IsAudio(path string) bool {
	return ContainerOf(path) != ContainerUnknown
}

var seriesAlbumPattern = regexp.MustCompile(`^(.+?)\s*(?:#|,?\s+Book\s+)(\d+(?:\.\d+)?)$`)

// SplitSeriesAlbum recognises albums written as "Series #N" or
// "Series, Book N".
func SplitSeriesAlbum(album string) (series, part string) {
	m := seriesAlbumPattern.FindStringSubmatch(strings.TrimSpace(album))
	if len(m) != 3 {
		return "", ""
	}
	return strings.TrimSpace(m[1]), m[2]
}

// FormatSeriesAlbum renders the album value written for a series member.
func FormatSeriesAlbum(series, part string) string {
	series = strings.TrimSpace(series)
	part = strings.TrimSpace(part)
	if series == "" {
		return ""
	}
	if part == "" {
		return series
	}
	return series + " #" + part
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
