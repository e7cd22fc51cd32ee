// Package sidecar reads and writes the metadata.json file Audiobookshelf
// picks up next to each book.
package sidecar

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"audioshelf/internal/audiotags"
	"audioshelf/internal/queue"
)

// FileName is the sidecar name Audiobookshelf looks for.
const FileName = "metadata.json"

// Document mirrors Audiobookshelf's metadata.json layout.
type Document struct {
	Tags          []string `json:"tags"`
	Chapters      []any    `json:"chapters"`
	Title         string   `json:"title"`
	Subtitle      string   `json:"subtitle,omitempty"`
	Authors       []string `json:"authors"`
	Narrators     []string `json:"narrators"`
	Series        []string `json:"series"`
	Genres        []string `json:"genres"`
	PublishedYear string   `json:"publishedYear,omitempty"`
	Publisher     string   `json:"publisher,omitempty"`
	Description   string   `json:"description,omitempty"`
	ISBN          string   `json:"isbn,omitempty"`
	ASIN          string   `json:"asin,omitempty"`
	Language      string   `json:"language,omitempty"`
	Explicit      bool     `json:"explicit"`
	Abridged      bool     `json:"abridged"`
}

// FromMetadata builds a document from an item's merged metadata.
func FromMetadata(meta queue.Metadata) Document {
	doc := Document{
		Tags:          []string{},
		Chapters:      []any{},
		Title:         meta.Title,
		Subtitle:      meta.Subtitle,
		Authors:       splitPeople(meta.Author),
		Narrators:     splitPeople(meta.Narrator),
		Series:        []string{},
		Genres:        []string{},
		PublishedYear: meta.Year,
		Publisher:     meta.Publisher,
		Description:   meta.Description,
		ISBN:          meta.ISBN,
		ASIN:          meta.ASIN,
		Language:      meta.Language,
	}
	if meta.Series != "" {
		doc.Series = append(doc.Series, audiotags.FormatSeriesAlbum(meta.Series, meta.SeriesPart))
	}
	if meta.Genre != "" {
		doc.Genres = append(doc.Genres, meta.Genre)
	}
	return doc
}

// Metadata converts the document back to queue metadata.
func (d Document) Metadata() queue.Metadata {
	var meta queue.Metadata
	set := func(field, value string) { meta.Set(field, value, queue.SourceTag) }
	set(queue.FieldTitle, d.Title)
	set(queue.FieldSubtitle, d.Subtitle)
	set(queue.FieldAuthor, strings.Join(d.Authors, ", "))
	set(queue.FieldNarrator, strings.Join(d.Narrators, ", "))
	if len(d.Series) > 0 {
		series, part := audiotags.SplitSeriesAlbum(d.Series[0])
		if series == "" {
			series = d.Series[0]
		}
		set(queue.FieldSeries, series)
		set(queue.FieldSeriesPart, part)
	}
	if len(d.Genres) > 0 {
		set(queue.FieldGenre, d.Genres[0])
	}
	set(queue.FieldYear, d.PublishedYear)
	set(queue.FieldPublisher, d.Publisher)
	set(queue.FieldDescription, d.Description)
	set(queue.FieldISBN, d.ISBN)
	set(queue.FieldASIN, d.ASIN)
	set(queue.FieldLanguage, d.Language)
	return meta
}

// Write stores the document as dir/metadata.json.
func Write(dir string, doc Document, mode os.FileMode) (string, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode sidecar: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, append(data, '\n'), mode); err != nil {
		return "", fmt.Errorf("write sidecar: %w", err)
	}
	return path, nil
}

// Read loads dir/metadata.json.
func Read(dir string) (Document, error) {
	var doc Document
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return doc, fmt.Errorf("read sidecar: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("decode sidecar: %w", err)
	}
	return doc, nil
}

func splitPeople(value string) []string {
	out := []string{}
	for _, part := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ';' || r == '&' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
