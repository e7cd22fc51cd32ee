package identification_test

import (
	"testing"

	"audioshelf/internal/config"
	"audioshelf/internal/identification"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		isFile bool
		order  string
		want   identification.NameHints
	}{
		{
			name:   "title then author by default",
			input:  "Book Title - Author Name.m4b",
			isFile: true,
			want:   identification.NameHints{Title: "Book Title", Author: "Author Name"},
		},
		{
			name:  "author then title when configured",
			input: "Author Name - Book Title",
			order: config.FilenameOrderAuthorTitle,
			want:  identification.NameHints{Title: "Book Title", Author: "Author Name"},
		},
		{
			name:  "initials identify the author",
			input: "J.R.R. Tolkien - The Hobbit",
			want:  identification.NameHints{Title: "The Hobbit", Author: "J.R.R. Tolkien"},
		},
		{
			name:  "three parts carry a series",
			input: "Frank Herbert - Dune Chronicles 01 - Dune",
			want:  identification.NameHints{Title: "Dune", Author: "Frank Herbert", Series: "Dune Chronicles", SeriesPart: "1"},
		},
		{
			name:  "by separator with noise and year",
			input: "Dune by Frank Herbert [2005] (Unabridged) 64kbps",
			want:  identification.NameHints{Title: "Dune", Author: "Frank Herbert", Year: "2005"},
		},
		{
			name:  "series hint in parentheses",
			input: "Leviathan Wakes (The Expanse #1) - James S. A. Corey",
			want:  identification.NameHints{Title: "Leviathan Wakes", Author: "James S. A. Corey", Series: "The Expanse", SeriesPart: "1"},
		},
		{
			name:   "underscores and case",
			input:  "the_hobbit.mp3",
			isFile: true,
			want:   identification.NameHints{Title: "The Hobbit"},
		},
		{
			name:  "only noise",
			input: "[MP3] (Audiobook)",
			want:  identification.NameHints{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := identification.ParseName(tt.input, tt.isFile, tt.order)
			if got != tt.want {
				t.Fatalf("ParseName(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}
