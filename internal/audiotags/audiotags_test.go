package audiotags

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestContainerOf(t *testing.T) {
	tests := []struct {
		path string
		want Container
	}{
		{"book.MP3", ContainerID3},
		{"book.m4b", ContainerMP4},
		{"book.m4a", ContainerMP4},
		{"book.flac", ContainerOther},
		{"cover.jpg", ContainerUnknown},
		{"book.epub", ContainerUnknown},
	}
	for _, tt := range tests {
		if got := ContainerOf(tt.path); got != tt.want {
			t.Fatalf("ContainerOf(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestSplitSeriesAlbum(t *testing.T) {
	tests := []struct {
		album, series, part string
	}{
		{"Dungeon Crawler Carl #7", "Dungeon Crawler Carl", "7"},
		{"The Expanse, Book 2", "The Expanse", "2"},
		{"Discworld #1.5", "Discworld", "1.5"},
		{"Just An Album", "", ""},
	}
	for _, tt := range tests {
		series, part := SplitSeriesAlbum(tt.album)
		if series != tt.series || part != tt.part {
			t.Fatalf("SplitSeriesAlbum(%q) = %q, %q", tt.album, series, part)
		}
	}
	if got := FormatSeriesAlbum("Dune", "1"); got != "Dune #1" {
		t.Fatalf("FormatSeriesAlbum = %q", got)
	}
}

func TestReadRejectsUntaggedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Book Title - Author Name.m4b")
	if err := os.WriteFile(path, []byte("not really audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Fatal("expected error for file without tags")
	}
}

func TestWriteAndReadID3(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dune.mp3")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x00}, 64), 0o644); err != nil {
		t.Fatal(err)
	}

	want := Tags{
		Title:      "Dune",
		Author:     "Frank Herbert",
		Narrator:   "Scott Brick",
		Series:     "Dune",
		SeriesPart: "1",
		ASIN:       "B002V1OF70",
		ISBN:       "9780441013593",
	}
	if err := Write(path, want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Title != want.Title || got.Author != want.Author {
		t.Fatalf("title/author = %q/%q", got.Title, got.Author)
	}
	if got.Narrator != want.Narrator {
		t.Fatalf("narrator = %q", got.Narrator)
	}
	if got.Album != "Dune #1" || got.Series != "Dune" || got.SeriesPart != "1" {
		t.Fatalf("album/series = %q/%q/%q", got.Album, got.Series, got.SeriesPart)
	}
	if got.ASIN != want.ASIN || got.ISBN != want.ISBN {
		t.Fatalf("identifiers = %q/%q", got.ASIN, got.ISBN)
	}
}

func TestWriteMP4ShiftsChunkOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.m4b")
	payload := []byte("AUDIO-PAYLOAD")
	if err := os.WriteFile(path, buildTestMP4(payload, true), 0o644); err != nil {
		t.Fatal(err)
	}

	tags := Tags{Title: "Project Hail Mary", Author: "Andy Weir", ASIN: "B08GB58KD5", Description: "A lone astronaut."}
	if err := Write(path, tags); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	offset := stcoFirstEntry(t, data)
	if !bytes.Equal(data[offset:int(offset)+len(payload)], payload) {
		t.Fatalf("chunk offset %d does not point at the media payload", offset)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	atoms, err := readMP4Atoms(f)
	if err != nil {
		t.Fatalf("readMP4Atoms: %v", err)
	}
	if atoms.freeform["asin"] != tags.ASIN {
		t.Fatalf("asin = %q", atoms.freeform["asin"])
	}
	if atoms.description != tags.Description {
		t.Fatalf("description = %q", atoms.description)
	}
}

func TestWriteMP4KeepsUntouchedItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.m4a")
	if err := os.WriteFile(path, buildTestMP4([]byte("x"), false), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Write(path, Tags{Title: "First"}); err != nil {
		t.Fatal(err)
	}
	if err := Write(path, Tags{ISBN: "9780000000002"}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("First")) {
		t.Fatal("title from the first write was dropped")
	}
	if bytes.Count(data, []byte("\xa9nam")) != 1 {
		t.Fatal("expected a single title item")
	}
	if !bytes.Contains(data, []byte("9780000000002")) {
		t.Fatal("isbn missing")
	}
}

func TestWriteUnsupported(t *testing.T) {
	if err := Write("book.flac", Tags{Title: "x"}); err != ErrUnsupported {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}

// buildTestMP4 lays out ftyp, moov and mdat with a single stco entry that
// points at payload. moovFirst controls whether moov precedes mdat.
func buildTestMP4(payload []byte, moovFirst bool) []byte {
	ftyp := buildBox("ftyp", append([]byte("M4B \x00\x00\x02\x00"), "isomM4B "...))
	mdat := buildBox("mdat", payload)

	stcoFor := func(offset uint32) []byte {
		content := make([]byte, 12)
		binary.BigEndian.PutUint32(content[4:8], 1)
		binary.BigEndian.PutUint32(content[8:12], offset)
		stbl := buildBox("stbl", buildBox("stco", content))
		return buildBox("moov", buildBox("trak", buildBox("mdia", buildBox("minf", stbl))))
	}

	placeholder := stcoFor(0)
	var offset uint32
	if moovFirst {
		offset = uint32(len(ftyp) + len(placeholder) + 8)
	} else {
		offset = uint32(len(ftyp) + 8)
	}
	moov := stcoFor(offset)

	var out bytes.Buffer
	out.Write(ftyp)
	if moovFirst {
		out.Write(moov)
		out.Write(mdat)
	} else {
		out.Write(mdat)
		out.Write(moov)
	}
	return out.Bytes()
}

func stcoFirstEntry(t *testing.T, data []byte) uint32 {
	t.Helper()
	var find func(buf []byte) (uint32, bool)
	find = func(buf []byte) (uint32, bool) {
		for _, child := range childBoxes(buf) {
			switch child.typ {
			case "moov", "trak", "mdia", "minf", "stbl":
				if v, ok := find(child.payload); ok {
					return v, true
				}
			case "stco":
				return binary.BigEndian.Uint32(child.payload[8:12]), true
			}
		}
		return 0, false
	}
	v, ok := find(data)
	if !ok {
		t.Fatal("stco not found")
	}
	return v
}
