package queue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldSource records where a metadata field value came from. Sources are
// ordered by authority: user edits beat embedded tags, which beat provider
// data, which beats filename heuristics.
type FieldSource string

const (
	SourceFilename FieldSource = "filename"
	SourceProvider FieldSource = "provider"
	SourceTag      FieldSource = "tag"
	SourceUser     FieldSource = "user"
)

// Metadata field names used by Sources, merges, and the update endpoint.
const (
	FieldTitle       = "title"
	FieldSubtitle    = "subtitle"
	FieldAuthor      = "author"
	FieldNarrator    = "narrator"
	FieldSeries      = "series"
	FieldSeriesPart  = "series_part"
	FieldYear        = "year"
	FieldISBN        = "isbn"
	FieldASIN        = "asin"
	FieldDescription = "description"
	FieldPublisher   = "publisher"
	FieldGenre       = "genre"
	FieldLanguage    = "language"
	FieldCoverURL    = "cover_url"
)

// MetadataFields lists every mergeable field in display order.
var MetadataFields = []string{
	FieldTitle, FieldSubtitle, FieldAuthor, FieldNarrator, FieldSeries, FieldSeriesPart,
	FieldYear, FieldISBN, FieldASIN, FieldDescription, FieldPublisher, FieldGenre,
	FieldLanguage, FieldCoverURL,
}

// Metadata is the book description carried by a queue item. It starts as the
// locally identified fields and accumulates provider and user data.
type Metadata struct {
	Title       string                 `json:"title,omitempty"`
	Subtitle    string                 `json:"subtitle,omitempty"`
	Author      string                 `json:"author,omitempty"`
	Narrator    string                 `json:"narrator,omitempty"`
	Series      string                 `json:"series,omitempty"`
	SeriesPart  string                 `json:"series_part,omitempty"`
	Year        string                 `json:"year,omitempty"`
	ISBN        string                 `json:"isbn,omitempty"`
	ASIN        string                 `json:"asin,omitempty"`
	Description string                 `json:"description,omitempty"`
	Publisher   string                 `json:"publisher,omitempty"`
	Genre       string                 `json:"genre,omitempty"`
	Language    string                 `json:"language,omitempty"`
	CoverURL    string                 `json:"cover_url,omitempty"`
	Sources     map[string]FieldSource `json:"sources,omitempty"`
}

func (m *Metadata) fieldPtr(name string) *string {
	switch name {
	case FieldTitle:
		return &m.Title
	case FieldSubtitle:
		return &m.Subtitle
	case FieldAuthor:
		return &m.Author
	case FieldNarrator:
		return &m.Narrator
	case FieldSeries:
		return &m.Series
	case FieldSeriesPart:
		return &m.SeriesPart
	case FieldYear:
		return &m.Year
	case FieldISBN:
		return &m.ISBN
	case FieldASIN:
		return &m.ASIN
	case FieldDescription:
		return &m.Description
	case FieldPublisher:
		return &m.Publisher
	case FieldGenre:
		return &m.Genre
	case FieldLanguage:
		return &m.Language
	case FieldCoverURL:
		return &m.CoverURL
	default:
		return nil
	}
}

// IsField reports whether name is a known metadata field.
func IsField(name string) bool {
	var m Metadata
	return m.fieldPtr(name) != nil
}

// Get returns the value of the named field, or "" for unknown names.
func (m Metadata) Get(name string) string {
	if ptr := m.fieldPtr(name); ptr != nil {
		return *ptr
	}
	return ""
}

// Source returns the recorded source of the named field.
func (m Metadata) Source(name string) FieldSource {
	return m.Sources[name]
}

// Set stores a trimmed value and its source. Empty values clear the field and
// its source. Unknown names are ignored.
func (m *Metadata) Set(name, value string, source FieldSource) {
	ptr := m.fieldPtr(name)
	if ptr == nil {
		return
	}
	value = strings.TrimSpace(value)
	*ptr = value
	if value == "" {
		delete(m.Sources, name)
		return
	}
	if m.Sources == nil {
		m.Sources = make(map[string]FieldSource)
	}
	m.Sources[name] = source
}

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Sources != nil {
		out.Sources = make(map[string]FieldSource, len(m.Sources))
		for k, v := range m.Sources {
			out.Sources[k] = v
		}
	}
	return out
}

// DisplayTitle returns a human label for logs and notifications.
func (m Metadata) DisplayTitle() string {
	switch {
	case m.Title != "" && m.Author != "":
		return m.Title + " by " + m.Author
	case m.Title != "":
		return m.Title
	default:
		return "Unknown book"
	}
}

func decodeMetadata(raw string) (Metadata, error) {
	var meta Metadata
	if strings.TrimSpace(raw) == "" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

func encodeMetadata(meta Metadata) (string, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
