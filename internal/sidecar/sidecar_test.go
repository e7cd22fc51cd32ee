package sidecar_test

import (
	"encoding/json"
	"testing"

	"audioshelf/internal/queue"
	"audioshelf/internal/sidecar"
	"audioshelf/internal/testsupport"
)

func TestRoundTripPreservesIdentity(t *testing.T) {
	var meta queue.Metadata
	meta.Set(queue.FieldTitle, "The Way of Kings", queue.SourceProvider)
	meta.Set(queue.FieldAuthor, "Brandon Sanderson", queue.SourceTag)
	meta.Set(queue.FieldNarrator, "Michael Kramer, Kate Reading", queue.SourceProvider)
	meta.Set(queue.FieldSeries, "The Stormlight Archive", queue.SourceProvider)
	meta.Set(queue.FieldSeriesPart, "1", queue.SourceProvider)
	meta.Set(queue.FieldYear, "2010", queue.SourceFilename)
	meta.Set(queue.FieldISBN, "9780765326355", queue.SourceProvider)
	meta.Set(queue.FieldASIN, "B003P2WO5E", queue.SourceProvider)
	meta.Set(queue.FieldGenre, "Fantasy", queue.SourceProvider)

	dir := t.TempDir()
	if _, err := sidecar.Write(dir, sidecar.FromMetadata(meta), 0o644); err != nil {
		t.Fatalf("Write: %v", err)
	}
	doc, err := sidecar.Read(dir)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if doc.Series[0] != "The Stormlight Archive #1" || len(doc.Narrators) != 2 {
		t.Fatalf("unexpected document %+v", doc)
	}

	back := doc.Metadata()
	for _, field := range []string{
		queue.FieldTitle, queue.FieldAuthor, queue.FieldYear, queue.FieldISBN, queue.FieldASIN,
		queue.FieldSeries, queue.FieldSeriesPart, queue.FieldGenre,
	} {
		if back.Get(field) != meta.Get(field) {
			t.Errorf("%s = %q, want %q", field, back.Get(field), meta.Get(field))
		}
	}
}

func TestEmptyListsEncodeAsArrays(t *testing.T) {
	var meta queue.Metadata
	meta.Set(queue.FieldTitle, "Standalone", queue.SourceFilename)

	dir := t.TempDir()
	path, err := sidecar.Write(dir, sidecar.FromMetadata(meta), 0o644)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(testsupport.ReadFile(t, path), &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"authors", "narrators", "series", "genres", "tags", "chapters"} {
		if _, ok := raw[key].([]any); !ok {
			t.Errorf("%s should be an array, got %T", key, raw[key])
		}
	}
}
