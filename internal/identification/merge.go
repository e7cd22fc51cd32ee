package identification

import (
	"audioshelf/internal/audiotags"
	"audioshelf/internal/queue"
)

// Merge combines tag and name derived values. A non-empty tag value always
// wins; name hints only fill what the tags left empty.
func Merge(tags audiotags.Tags, hints NameHints) queue.Metadata {
	var meta queue.Metadata
	pick := func(field, tagValue, nameValue string) {
		switch {
		case tagValue != "":
			meta.Set(field, tagValue, queue.SourceTag)
		case nameValue != "":
			meta.Set(field, nameValue, queue.SourceFilename)
		}
	}

	pick(queue.FieldTitle, tags.Title, hints.Title)
	pick(queue.FieldAuthor, tags.Author, hints.Author)
	pick(queue.FieldYear, tags.Year, hints.Year)
	if tags.Series != "" {
		meta.Set(queue.FieldSeries, tags.Series, queue.SourceTag)
		meta.Set(queue.FieldSeriesPart, tags.SeriesPart, queue.SourceTag)
	} else {
		pick(queue.FieldSeries, "", hints.Series)
		pick(queue.FieldSeriesPart, "", hints.SeriesPart)
	}
	pick(queue.FieldNarrator, tags.Narrator, "")
	pick(queue.FieldISBN, tags.ISBN, "")
	pick(queue.FieldASIN, tags.ASIN, "")
	pick(queue.FieldDescription, tags.Description, "")
	pick(queue.FieldGenre, tags.Genre, "")
	return meta
}

// applyIdentified replaces item metadata with a fresh identification while
// keeping every field the user edited.
func applyIdentified(current *queue.Metadata, identified queue.Metadata) {
	for _, field := range queue.MetadataFields {
		if current.Source(field) == queue.SourceUser {
			continue
		}
		current.Set(field, identified.Get(field), identified.Source(field))
	}
}
