package audiotags

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	gomp4 "github.com/abema/go-mp4"
)

const (
	dataTypeUTF8 = 1
	freeformMean = "com.apple.iTunes"
)

var (
	atomTitle       = gomp4.BoxType{0xA9, 'n', 'a', 'm'}
	atomArtist      = gomp4.BoxType{0xA9, 'A', 'R', 'T'}
	atomAlbum       = gomp4.BoxType{0xA9, 'a', 'l', 'b'}
	atomComposer    = gomp4.BoxType{0xA9, 'c', 'm', 'p'}
	atomWriter      = gomp4.BoxType{0xA9, 'w', 'r', 't'}
	atomYear        = gomp4.BoxType{0xA9, 'd', 'a', 'y'}
	atomGenre       = gomp4.BoxType{0xA9, 'g', 'e', 'n'}
	atomDescription = gomp4.BoxType{'d', 'e', 's', 'c'}
	atomFreeform    = gomp4.BoxType{'-', '-', '-', '-'}
)

type mp4Atoms struct {
	description string
	writer      string
	freeform    map[string]string
}

// readMP4Atoms walks moov/udta/meta/ilst collecting the atoms dhowden/tag
// leaves out. Freeform keys are lower-cased names without the mean prefix.
func readMP4Atoms(r io.ReadSeeker) (*mp4Atoms, error) {
	atoms := &mp4Atoms{freeform: map[string]string{}}
	_, err := gomp4.ReadBoxStructure(r, func(h *gomp4.ReadHandle) (interface{}, error) {
		switch h.BoxInfo.Type {
		case gomp4.BoxTypeMoov(), gomp4.BoxTypeUdta(), gomp4.BoxTypeMeta(), gomp4.BoxTypeIlst():
			return h.Expand()
		case atomFreeform:
			var buf bytes.Buffer
			if _, err := h.ReadData(&buf); err != nil {
				return nil, err
			}
			if _, name, value, ok := parseFreeform(buf.Bytes()); ok {
				atoms.freeform[strings.ToLower(name)] = value
			}
		case atomDescription, atomWriter:
			var buf bytes.Buffer
			if _, err := h.ReadData(&buf); err != nil {
				return nil, err
			}
			value := textFromItem(buf.Bytes())
			if h.BoxInfo.Type == atomDescription {
				atoms.description = value
			} else {
				atoms.writer = value
			}
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return atoms, nil
}

// textFromItem decodes the data child of an ilst item:
// [size][data][version:1][type:3][locale:4][value].
func textFromItem(item []byte) string {
	for _, child := range childBoxes(item) {
		if child.typ == "data" && len(child.payload) >= 8 {
			return strings.TrimSpace(string(child.payload[8:]))
		}
	}
	return ""
}

func parseFreeform(payload []byte) (mean, name, value string, ok bool) {
	for _, child := range childBoxes(payload) {
		switch child.typ {
		case "mean":
			if len(child.payload) > 4 {
				mean = string(child.payload[4:])
			}
		case "name":
			if len(child.payload) > 4 {
				name = string(child.payload[4:])
			}
		case "data":
			if len(child.payload) >= 8 {
				value = strings.TrimSpace(string(child.payload[8:]))
			}
		}
	}
	return mean, name, value, mean != "" && name != ""
}

type rawBox struct {
	typ     string
	start   int // offset of the header within the parent slice
	header  int
	size    int
	payload []byte
}

// childBoxes splits buf into consecutive boxes. Truncated or malformed
// trailing data stops the walk.
func childBoxes(buf []byte) []rawBox {
	var out []rawBox
	offset := 0
	for offset+8 <= len(buf) {
		size := int(binary.BigEndian.Uint32(buf[offset:]))
		header := 8
		switch size {
		case 0:
			size = len(buf) - offset
		case 1:
			if offset+16 > len(buf) {
				return out
			}
			size = int(binary.BigEndian.Uint64(buf[offset+8:]))
			header = 16
		}
		if size < header || offset+size > len(buf) {
			return out
		}
		out = append(out, rawBox{
			typ:     string(buf[offset+4 : offset+8]),
			start:   offset,
			header:  header,
			size:    size,
			payload: buf[offset+header : offset+size],
		})
		offset += size
	}
	return out
}

func buildBox(typ string, content []byte) []byte {
	buf := make([]byte, 8+len(content))
	binary.BigEndian.PutUint32(buf[0:4], uint32(8+len(content)))
	copy(buf[4:8], typ)
	copy(buf[8:], content)
	return buf
}

func buildDataItem(atom gomp4.BoxType, value string) []byte {
	data := make([]byte, 8+len(value))
	data[3] = dataTypeUTF8
	copy(data[8:], value)
	return buildBox(string(atom[:]), buildBox("data", data))
}

func buildFreeformItem(name, value string) []byte {
	var content bytes.Buffer
	content.Write(buildBox("mean", append(make([]byte, 4), freeformMean...)))
	content.Write(buildBox("name", append(make([]byte, 4), name...)))
	data := make([]byte, 8+len(value))
	data[3] = dataTypeUTF8
	copy(data[8:], value)
	content.Write(buildBox("data", data))
	return buildBox(string(atomFreeform[:]), content.Bytes())
}

// buildMetaHandler is the hdlr box iTunes expects inside udta/meta.
func buildMetaHandler() []byte {
	content := make([]byte, 25)
	copy(content[8:12], "mdir")
	copy(content[12:16], "appl")
	return buildBox("hdlr", content)
}

func (t Tags) ilstItems() (items [][]byte, replaced map[string]bool, replacedFreeform map[string]bool) {
	replaced = map[string]bool{}
	replacedFreeform = map[string]bool{}
	add := func(atom gomp4.BoxType, value string) {
		if value = strings.TrimSpace(value); value == "" {
			return
		}
		replaced[string(atom[:])] = true
		items = append(items, buildDataItem(atom, value))
	}
	addFreeform := func(name, value string) {
		if value = strings.TrimSpace(value); value == "" {
			return
		}
		replacedFreeform[strings.ToLower(name)] = true
		items = append(items, buildFreeformItem(name, value))
	}

	add(atomTitle, t.Title)
	add(atomArtist, t.Author)
	add(atomAlbum, firstNonEmpty(FormatSeriesAlbum(t.Series, t.SeriesPart), t.Album, t.Title))
	add(atomComposer, t.Narrator)
	add(atomYear, t.Year)
	add(atomGenre, t.Genre)
	add(atomDescription, t.Description)
	addFreeform("ASIN", t.ASIN)
	addFreeform("ISBN", t.ISBN)
	return items, replaced, replacedFreeform
}

// mergeIlst keeps existing items the new tags do not cover (cover art,
// chapters, encoder info) and appends the new values.
func (t Tags) mergeIlst(existing []byte) []byte {
	items, replaced, replacedFreeform := t.ilstItems()
	var content bytes.Buffer
	for _, child := range childBoxes(existing) {
		if replaced[child.typ] {
			continue
		}
		if child.typ == string(atomFreeform[:]) {
			if _, name, _, ok := parseFreeform(child.payload); ok && replacedFreeform[strings.ToLower(name)] {
				continue
			}
		}
		content.Write(existing[child.start : child.start+child.size])
	}
	for _, item := range items {
		content.Write(item)
	}
	return content.Bytes()
}

func (t Tags) rebuildMoov(moov []byte) []byte {
	var out bytes.Buffer
	found := false
	for _, child := range childBoxes(moov) {
		if child.typ == "udta" {
			out.Write(buildBox("udta", t.rebuildUdta(child.payload)))
			found = true
			continue
		}
		out.Write(moov[child.start : child.start+child.size])
	}
	if !found {
		out.Write(buildBox("udta", t.rebuildUdta(nil)))
	}
	return out.Bytes()
}

func (t Tags) rebuildUdta(udta []byte) []byte {
	var out bytes.Buffer
	found := false
	for _, child := range childBoxes(udta) {
		if child.typ == "meta" && len(child.payload) >= 4 {
			out.Write(buildBox("meta", t.rebuildMeta(child.payload)))
			found = true
			continue
		}
		out.Write(udta[child.start : child.start+child.size])
	}
	if !found {
		meta := make([]byte, 4)
		meta = append(meta, buildMetaHandler()...)
		meta = append(meta, buildBox("ilst", t.mergeIlst(nil))...)
		out.Write(buildBox("meta", meta))
	}
	return out.Bytes()
}

// rebuildMeta keeps the 4 byte version/flags prefix of the full box.
func (t Tags) rebuildMeta(meta []byte) []byte {
	out := bytes.NewBuffer(append([]byte(nil), meta[:4]...))
	found := false
	for _, child := range childBoxes(meta[4:]) {
		if child.typ == "ilst" {
			out.Write(buildBox("ilst", t.mergeIlst(child.payload)))
			found = true
			continue
		}
		out.Write(meta[4+child.start : 4+child.start+child.size])
	}
	if !found {
		out.Write(buildBox("ilst", t.mergeIlst(nil)))
	}
	return out.Bytes()
}

var chunkOffsetParents = map[string]bool{"trak": true, "mdia": true, "minf": true, "stbl": true}

// shiftChunkOffsets adds delta to every stco/co64 entry at or beyond
// threshold. moov is modified in place.
func shiftChunkOffsets(moov []byte, threshold uint64, delta int64) error {
	for _, child := range childBoxes(moov) {
		payload := child.payload
		switch {
		case chunkOffsetParents[child.typ]:
			if err := shiftChunkOffsets(payload, threshold, delta); err != nil {
				return err
			}
		case child.typ == "stco" && len(payload) >= 8:
			count := int(binary.BigEndian.Uint32(payload[4:8]))
			for i := 0; i < count && 8+4*i+4 <= len(payload); i++ {
				pos := payload[8+4*i:]
				value := uint64(binary.BigEndian.Uint32(pos))
				if value < threshold {
					continue
				}
				shifted := int64(value) + delta
				if shifted < 0 || shifted > int64(^uint32(0)) {
					return fmt.Errorf("chunk offset %d out of range after shift", shifted)
				}
				binary.BigEndian.PutUint32(pos, uint32(shifted))
			}
		case child.typ == "co64" && len(payload) >= 8:
			count := int(binary.BigEndian.Uint32(payload[4:8]))
			for i := 0; i < count && 8+8*i+8 <= len(payload); i++ {
				pos := payload[8+8*i:]
				value := binary.BigEndian.Uint64(pos)
				if value < threshold {
					continue
				}
				binary.BigEndian.PutUint64(pos, uint64(int64(value)+delta))
			}
		}
	}
	return nil
}
