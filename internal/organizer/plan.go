package organizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"audioshelf/internal/audiotags"
	"audioshelf/internal/queue"
	"audioshelf/internal/textutil"
)

const (
	unknownAuthor = "Unknown Author"
	unknownTitle  = "Unknown Title"
)

// FileMove maps one source member to its name inside the book directory.
type FileMove struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Plan is everything the organizer would do for an item.
type Plan struct {
	Destination string     `json:"destination"`
	Mode        string     `json:"mode"`
	Files       []FileMove `json:"files"`
	TotalBytes  int64      `json:"total_bytes"`
	Exists      bool       `json:"exists"`
	Eligible    bool       `json:"eligible"`
	Reason      string     `json:"reason,omitempty"`
}

// Destination computes {output}/{Author}/{Series}/{Title}, dropping the
// series level when no series is known.
func Destination(outputDir string, meta queue.Metadata) string {
	author := textutil.SanitizeSegment(meta.Author, unknownAuthor)
	title := textutil.SanitizeSegment(meta.Title, unknownTitle)
	if series := strings.TrimSpace(meta.Series); series != "" {
		return filepath.Join(outputDir, author, textutil.SanitizeSegment(series, "Series"), title)
	}
	return filepath.Join(outputDir, author, title)
}

// targetNames renames audio to "{Title}{ext}", or "{Title} - NN{ext}" for
// multi-part books in the given order. Other files keep their sanitized
// names. Collisions get a numeric suffix.
func targetNames(title string, files []string) []FileMove {
	title = textutil.SanitizeSegment(title, unknownTitle)
	var audioCount int
	for _, f := range files {
		if audiotags.IsAudio(f) {
			audioCount++
		}
	}
	width := max(2, len(fmt.Sprint(audioCount)))

	used := make(map[string]int, len(files))
	moves := make([]FileMove, 0, len(files))
	part := 0
	for _, src := range files {
		ext := strings.ToLower(filepath.Ext(src))
		var name string
		if audiotags.IsAudio(src) {
			part++
			if audioCount == 1 {
				name = title + ext
			} else {
				name = fmt.Sprintf("%s - %0*d%s", title, width, part, ext)
			}
		} else {
			name = textutil.SanitizeSegment(filepath.Base(src), "file"+ext)
		}
		key := strings.ToLower(name)
		if n := used[key]; n > 0 {
			stem := strings.TrimSuffix(name, filepath.Ext(name))
			name = fmt.Sprintf("%s (%d)%s", stem, n+1, filepath.Ext(name))
		}
		used[key]++
		moves = append(moves, FileMove{Source: src, Target: name})
	}
	return moves
}

// buildPlan resolves destination, file names and sizes without touching disk
// beyond stat calls.
func (o *Organizer) buildPlan(item *queue.Item) (Plan, error) {
	files := append([]string(nil), item.Files...)
	textutil.SortNatural(files)

	plan := Plan{
		Destination: Destination(o.cfg.Paths.OutputDir, item.Metadata),
		Mode:        o.modeFor(item),
		Files:       targetNames(item.Metadata.Title, files),
	}
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return plan, fmt.Errorf("source %s: %w", filepath.Base(f), err)
		}
		if !info.Mode().IsRegular() {
			return plan, fmt.Errorf("source %s is not a regular file", filepath.Base(f))
		}
		plan.TotalBytes += info.Size()
	}
	if _, err := os.Lstat(plan.Destination); err == nil {
		plan.Exists = true
	}
	plan.Eligible, plan.Reason = o.decide(item)
	return plan, nil
}

func (o *Organizer) modeFor(item *queue.Item) string {
	switch item.Mode {
	case queue.ModeCopy, queue.ModeMove:
		return item.Mode
	}
	if o.cfg.Library.DefaultMode == queue.ModeCopy {
		return queue.ModeCopy
	}
	return queue.ModeMove
}
