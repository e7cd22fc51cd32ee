package audiotags

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
)

// Read extracts embedded tags from path. Files without a recognised tag
// block return an error; callers treat that as an empty result.
func Read(path string) (Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tags{}, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return Tags{}, fmt.Errorf("read tags %s: %w", path, err)
	}

	tags := Tags{
		Title:    strings.TrimSpace(m.Title()),
		Author:   firstNonEmpty(m.Artist(), m.AlbumArtist()),
		Album:    strings.TrimSpace(m.Album()),
		Narrator: strings.TrimSpace(m.Composer()),
		Genre:    strings.TrimSpace(m.Genre()),
	}
	if year := m.Year(); year > 0 {
		tags.Year = strconv.Itoa(year)
	}
	tags.Series, tags.SeriesPart = SplitSeriesAlbum(tags.Album)

	switch m.Format() {
	case tag.ID3v2_2, tag.ID3v2_3, tag.ID3v2_4:
		readUserFrames(m.Raw(), &tags)
	case tag.MP4:
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return tags, err
		}
		atoms, err := readMP4Atoms(f)
		if err != nil {
			return tags, fmt.Errorf("read mp4 atoms %s: %w", path, err)
		}
		tags.Description = atoms.description
		tags.ASIN = atoms.freeform["asin"]
		tags.ISBN = atoms.freeform["isbn"]
		if tags.Narrator == "" {
			tags.Narrator = atoms.writer
		}
	}
	return tags, nil
}

// readUserFrames picks ASIN and ISBN out of TXXX frames and the description
// out of the first comment.
func readUserFrames(raw map[string]interface{}, tags *Tags) {
	for key, value := range raw {
		comm, ok := value.(*tag.Comm)
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(key, "TXX"):
			switch strings.ToLower(strings.TrimSpace(comm.Description)) {
			case "asin", "audible_asin":
				tags.ASIN = strings.TrimSpace(comm.Text)
			case "isbn":
				tags.ISBN = strings.TrimSpace(comm.Text)
			}
		case strings.HasPrefix(key, "COMM") && tags.Description == "":
			tags.Description = strings.TrimSpace(comm.Text)
		}
	}
}
