package identification_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"audioshelf/internal/audiotags"
	"audioshelf/internal/identification"
	"audioshelf/internal/queue"
	"audioshelf/internal/testsupport"
)

func fakeReader(tags map[string]audiotags.Tags) identification.TagReader {
	return func(path string) (audiotags.Tags, error) {
		if t, ok := tags[filepath.Base(path)]; ok {
			return t, nil
		}
		return audiotags.Tags{}, errors.New("no tags")
	}
}

func TestIdentifyFromFileNameWithoutTags(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := filepath.Join(cfg.Paths.InputDir, "incoming")
	file := filepath.Join(dir, "Book Title - Author Name.m4b")
	testsupport.WriteFile(t, file, 64)

	id := identification.NewIdentifierWithReader(cfg, nil, fakeReader(nil))
	meta := id.Identify(context.Background(), dir, []string{file})

	if meta.Title != "Book Title" || meta.Author != "Author Name" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if meta.Source(queue.FieldTitle) != queue.SourceFilename {
		t.Fatalf("title source = %q", meta.Source(queue.FieldTitle))
	}
}

func TestIdentifyTagsWinOverName(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := filepath.Join(cfg.Paths.InputDir, "Wrong Title - Wrong Author [1999]")
	file := filepath.Join(dir, "dune.mp3")
	testsupport.WriteFile(t, file, 64)

	id := identification.NewIdentifierWithReader(cfg, nil, fakeReader(map[string]audiotags.Tags{
		"dune.mp3": {Title: "Dune", Author: "Frank Herbert", ASIN: "B002V1OF70"},
	}))
	meta := id.Identify(context.Background(), dir+string(filepath.Separator), []string{file})

	if meta.Title != "Dune" || meta.Author != "Frank Herbert" {
		t.Fatalf("tags should win: %+v", meta)
	}
	if meta.Source(queue.FieldAuthor) != queue.SourceTag {
		t.Fatalf("author source = %q", meta.Source(queue.FieldAuthor))
	}
	if meta.Year != "1999" || meta.Source(queue.FieldYear) != queue.SourceFilename {
		t.Fatalf("year should fall back to the name: %+v", meta)
	}
	if meta.ASIN != "B002V1OF70" {
		t.Fatalf("asin = %q", meta.ASIN)
	}
}

func TestIdentifyChapteredUsesAlbum(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := filepath.Join(cfg.Paths.InputDir, "Dune")
	files := []string{filepath.Join(dir, "02.mp3"), filepath.Join(dir, "01.mp3")}
	for _, f := range files {
		testsupport.WriteFile(t, f, 16)
	}

	id := identification.NewIdentifierWithReader(cfg, nil, fakeReader(map[string]audiotags.Tags{
		"01.mp3": {Title: "Chapter 1", Album: "Dune", Author: "Frank Herbert"},
		"02.mp3": {Title: "Chapter 2", Album: "Dune", Author: "Frank Herbert"},
	}))
	meta := id.Identify(context.Background(), dir, files)
	if meta.Title != "Dune" {
		t.Fatalf("title = %q, want album", meta.Title)
	}
}

func TestMergeTagAlwaysWins(t *testing.T) {
	hints := identification.NameHints{Title: "name title", Author: "name author", Year: "2001", Series: "Name Series", SeriesPart: "2"}
	tags := audiotags.Tags{Title: "Tag Title", Author: "Tag Author", Year: "1999", Series: "Tag Series", SeriesPart: "3"}

	meta := identification.Merge(tags, hints)
	for field, want := range map[string]string{
		queue.FieldTitle:      "Tag Title",
		queue.FieldAuthor:     "Tag Author",
		queue.FieldYear:       "1999",
		queue.FieldSeries:     "Tag Series",
		queue.FieldSeriesPart: "3",
	} {
		if got := meta.Get(field); got != want {
			t.Fatalf("%s = %q, want %q", field, got, want)
		}
		if meta.Source(field) != queue.SourceTag {
			t.Fatalf("%s source = %q", field, meta.Source(field))
		}
	}

	empty := identification.Merge(audiotags.Tags{}, identification.NameHints{})
	if empty.Title != "" || len(empty.Sources) != 0 {
		t.Fatalf("fields with no source must stay unset: %+v", empty)
	}
}

func TestExecuteKeepsUserFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := filepath.Join(cfg.Paths.InputDir, "Book Title - Author Name")
	file := filepath.Join(dir, "part1.mp3")
	testsupport.WriteFile(t, file, 16)

	item := &queue.Item{ID: "x", SourcePath: dir, Files: []string{file}}
	item.Metadata.Set(queue.FieldAuthor, "Corrected Author", queue.SourceUser)
	item.Metadata.Set(queue.FieldTitle, "Stale Title", queue.SourceProvider)

	id := identification.NewIdentifierWithReader(cfg, nil, fakeReader(nil))
	if err := id.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if item.Metadata.Author != "Corrected Author" {
		t.Fatalf("user author overwritten: %q", item.Metadata.Author)
	}
	if item.Metadata.Title != "Book Title" {
		t.Fatalf("title = %q", item.Metadata.Title)
	}
	if h := id.HealthCheck(context.Background()); !h.Ready {
		t.Fatalf("health = %+v", h)
	}
}
