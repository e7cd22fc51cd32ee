package audiotags

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gomp4 "github.com/abema/go-mp4"
	"github.com/bogem/id3v2/v2"
)

// Write replaces the tags of path with t. Empty fields leave the existing
// value alone. Containers other than ID3 and MP4 return ErrUnsupported.
func Write(path string, t Tags) error {
	switch ContainerOf(path) {
	case ContainerID3:
		return writeID3(path, t)
	case ContainerMP4:
		return writeMP4(path, t)
	default:
		return ErrUnsupported
	}
}

func writeID3(path string, t Tags) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open id3 %s: %w", path, err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	if v := strings.TrimSpace(t.Title); v != "" {
		tag.SetTitle(v)
	}
	if v := strings.TrimSpace(t.Author); v != "" {
		tag.SetArtist(v)
	}
	if v := firstNonEmpty(FormatSeriesAlbum(t.Series, t.SeriesPart), t.Album, t.Title); v != "" {
		tag.SetAlbum(v)
	}
	if v := strings.TrimSpace(t.Year); v != "" {
		tag.SetYear(v)
	}
	if v := strings.TrimSpace(t.Genre); v != "" {
		tag.SetGenre(v)
	}
	if v := strings.TrimSpace(t.Narrator); v != "" {
		tag.AddTextFrame(tag.CommonID("Composer"), id3v2.EncodingUTF8, v)
	}
	if v := strings.TrimSpace(t.Description); v != "" {
		tag.DeleteFrames(tag.CommonID("Comments"))
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding: id3v2.EncodingUTF8,
			Language: "eng",
			Text:     v,
		})
	}

	userFrames := map[string]string{}
	if v := strings.TrimSpace(t.ASIN); v != "" {
		userFrames["ASIN"] = v
	}
	if v := strings.TrimSpace(t.ISBN); v != "" {
		userFrames["ISBN"] = v
	}
	if len(userFrames) > 0 {
		txxx := tag.CommonID("User defined text information frame")
		var kept []id3v2.UserDefinedTextFrame
		for _, f := range tag.GetFrames(txxx) {
			udtf, ok := f.(id3v2.UserDefinedTextFrame)
			if !ok {
				continue
			}
			if _, replace := userFrames[strings.ToUpper(udtf.Description)]; !replace {
				kept = append(kept, udtf)
			}
		}
		tag.DeleteFrames(txxx)
		for _, udtf := range kept {
			tag.AddUserDefinedTextFrame(udtf)
		}
		for _, desc := range []string{"ASIN", "ISBN"} {
			if value, ok := userFrames[desc]; ok {
				tag.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
					Encoding:    id3v2.EncodingUTF8,
					Description: desc,
					Value:       value,
				})
			}
		}
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("save id3 %s: %w", path, err)
	}
	return nil
}

type topLevelBox struct {
	typ    gomp4.BoxType
	offset uint64
	size   uint64
}

// writeMP4 streams path into a sibling temp file with a rebuilt moov and
// renames it over the original. Only moov is buffered in memory.
func writeMP4(path string, t Tags) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	var boxes []topLevelBox
	_, err = gomp4.ReadBoxStructure(src, func(h *gomp4.ReadHandle) (interface{}, error) {
		boxes = append(boxes, topLevelBox{typ: h.BoxInfo.Type, offset: h.BoxInfo.Offset, size: h.BoxInfo.Size})
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("scan mp4 %s: %w", path, err)
	}

	moovIndex := -1
	for i, box := range boxes {
		if box.typ == gomp4.BoxTypeMoov() {
			moovIndex = i
			break
		}
	}
	if moovIndex < 0 {
		return errors.New("moov box not found")
	}
	moov := boxes[moovIndex]
	if moov.size > 64<<20 {
		return fmt.Errorf("moov box too large (%d bytes)", moov.size)
	}

	raw := make([]byte, moov.size)
	if _, err := src.ReadAt(raw, int64(moov.offset)); err != nil {
		return fmt.Errorf("read moov: %w", err)
	}
	header := childBoxes(raw)
	if len(header) != 1 {
		return errors.New("malformed moov box")
	}
	newMoov := buildBox("moov", t.rebuildMoov(header[0].payload))

	delta := int64(len(newMoov)) - int64(moov.size)
	if delta != 0 {
		if err := shiftChunkOffsets(childBoxes(newMoov)[0].payload, moov.offset+moov.size, delta); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tags-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	for i, box := range boxes {
		if i == moovIndex {
			if _, err := io.Copy(tmp, bytes.NewReader(newMoov)); err != nil {
				return err
			}
			continue
		}
		if _, err := io.Copy(tmp, io.NewSectionReader(src, int64(box.offset), int64(box.size))); err != nil {
			return err
		}
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	committed = true
	return nil
}
