package aggregator

import (
	"audioshelf/internal/providers"
	"audioshelf/internal/queue"
)

// candidateFields pairs metadata field names with candidate values.
func candidateFields(c providers.Candidate) [][2]string {
	return [][2]string{
		{queue.FieldTitle, c.Title},
		{queue.FieldSubtitle, c.Subtitle},
		{queue.FieldAuthor, c.Author},
		{queue.FieldNarrator, c.Narrator},
		{queue.FieldSeries, c.Series},
		{queue.FieldSeriesPart, c.SeriesPart},
		{queue.FieldYear, c.Year},
		{queue.FieldISBN, c.ISBN},
		{queue.FieldASIN, c.ASIN},
		{queue.FieldDescription, c.Description},
		{queue.FieldPublisher, c.Publisher},
		{queue.FieldGenre, c.Genre},
		{queue.FieldLanguage, c.Language},
		{queue.FieldCoverURL, c.CoverURL},
	}
}

// ApplyCandidate merges candidate fields into meta by source authority.
// Unset and provider-sourced fields take the candidate value. User and tag
// values are never replaced. Filename values are replaced only when
// overrideFilename is set, which is reserved for a candidate the user picked.
// It returns the names of the fields that changed.
func ApplyCandidate(meta *queue.Metadata, c providers.Candidate, overrideFilename bool) []string {
	var changed []string
	for _, pair := range candidateFields(c) {
		field, value := pair[0], pair[1]
		if value == "" || !replaceable(*meta, field, overrideFilename) {
			continue
		}
		before := meta.Get(field)
		meta.Set(field, value, queue.SourceProvider)
		if meta.Get(field) != before {
			changed = append(changed, field)
		}
	}
	return changed
}

func replaceable(meta queue.Metadata, field string, overrideFilename bool) bool {
	if meta.Get(field) == "" {
		return true
	}
	switch meta.Source(field) {
	case queue.SourceUser, queue.SourceTag:
		return false
	case queue.SourceFilename:
		return overrideFilename
	default:
		return true
	}
}

// QueryFromMetadata builds the provider query for an item's current metadata.
func QueryFromMetadata(meta queue.Metadata, limit int) providers.Query {
	return providers.Query{
		Title:  meta.Title,
		Author: meta.Author,
		ISBN:   meta.ISBN,
		ASIN:   meta.ASIN,
		Limit:  limit,
	}.Normalized()
}
