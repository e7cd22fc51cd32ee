package queue_test

import (
	"testing"

	"audioshelf/internal/queue"
)

func TestMetadataSetAndGet(t *testing.T) {
	var meta queue.Metadata
	meta.Set(queue.FieldTitle, "  Dune ", queue.SourceTag)
	meta.Set("unknown", "ignored", queue.SourceTag)

	if meta.Get(queue.FieldTitle) != "Dune" || meta.Source(queue.FieldTitle) != queue.SourceTag {
		t.Fatalf("unexpected title %q from %q", meta.Title, meta.Source(queue.FieldTitle))
	}
	if meta.Get("unknown") != "" {
		t.Fatal("unknown field should read empty")
	}

	meta.Set(queue.FieldTitle, "", queue.SourceUser)
	if meta.Title != "" {
		t.Fatal("empty value should clear field")
	}
	if _, ok := meta.Sources[queue.FieldTitle]; ok {
		t.Fatal("clearing a field should drop its source")
	}
}

func TestMetadataCloneIsDeep(t *testing.T) {
	var meta queue.Metadata
	meta.Set(queue.FieldAuthor, "Frank Herbert", queue.SourceFilename)
	clone := meta.Clone()
	clone.Set(queue.FieldAuthor, "Brian Herbert", queue.SourceUser)
	if meta.Author != "Frank Herbert" || meta.Source(queue.FieldAuthor) != queue.SourceFilename {
		t.Fatalf("clone mutated original: %+v", meta)
	}
}

func TestEveryFieldIsAddressable(t *testing.T) {
	for _, name := range queue.MetadataFields {
		if !queue.IsField(name) {
			t.Fatalf("field %q missing accessor", name)
		}
		var meta queue.Metadata
		meta.Set(name, "v", queue.SourceUser)
		if meta.Get(name) != "v" {
			t.Fatalf("field %q did not round trip", name)
		}
	}
}

func TestDisplayTitle(t *testing.T) {
	cases := map[string]queue.Metadata{
		"Dune by Frank Herbert": {Title: "Dune", Author: "Frank Herbert"},
		"Dune":                  {Title: "Dune"},
		"Unknown book":          {},
	}
	for want, meta := range cases {
		if got := meta.DisplayTitle(); got != want {
			t.Fatalf("DisplayTitle = %q, want %q", got, want)
		}
	}
}
