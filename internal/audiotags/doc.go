// Package audiotags reads and rewrites the embedded metadata of audiobook
// files.
//
// Reading goes through github.com/dhowden/tag for the common frames and a
// go-mp4 pass for the iTunes freeform atoms (ASIN, ISBN) that tag does not
// surface. Writing uses github.com/bogem/id3v2 for MP3 and an in-place ilst
// rebuild for the MP4 family, fixing chunk offsets when the moov box grows
// ahead of the media data.
package audiotags
