package identification

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"audioshelf/internal/audiotags"
	"audioshelf/internal/config"
	"audioshelf/internal/logging"
	"audioshelf/internal/queue"
	"audioshelf/internal/stage"
	"audioshelf/internal/textutil"
)

// maxTagProbes bounds how many audio files are opened per group.
const maxTagProbes = 5

// TagReader reads embedded tags from one file.
type TagReader func(path string) (audiotags.Tags, error)

// Identifier is the identify stage: local tags plus name heuristics.
type Identifier struct {
	cfg      *config.Config
	logger   *slog.Logger
	readTags TagReader
}

// NewIdentifier creates the identify stage handler.
func NewIdentifier(cfg *config.Config, logger *slog.Logger) *Identifier {
	return NewIdentifierWithReader(cfg, logger, audiotags.Read)
}

// NewIdentifierWithReader allows injecting a tag reader (used in tests).
func NewIdentifierWithReader(cfg *config.Config, logger *slog.Logger, reader TagReader) *Identifier {
	if reader == nil {
		reader = audiotags.Read
	}
	return &Identifier{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "identifier"),
		readTags: reader,
	}
}

// Prepare sets progress messaging.
func (i *Identifier) Prepare(_ context.Context, item *queue.Item) error {
	item.ProgressMessage = "Reading tags"
	return nil
}

// Execute replaces the item's metadata with a fresh local identification,
// keeping user-edited fields.
func (i *Identifier) Execute(ctx context.Context, item *queue.Item) error {
	if err := stage.CheckCancelled(ctx, "identifier", "identify"); err != nil {
		return err
	}
	logger := logging.WithContext(ctx, i.logger)
	identified := i.Identify(ctx, item.SourcePath, item.Files)
	applyIdentified(&item.Metadata, identified)
	item.ProgressMessage = "Identified " + item.Metadata.DisplayTitle()

	logger.Info("local identification complete",
		logging.String("title", item.Metadata.Title),
		logging.String("author", item.Metadata.Author),
		logging.String("title_source", string(item.Metadata.Source(queue.FieldTitle))),
		logging.String("author_source", string(item.Metadata.Source(queue.FieldAuthor))),
		logging.Bool("has_identifier", item.Metadata.ISBN != "" || item.Metadata.ASIN != ""),
	)
	return nil
}

// HealthCheck verifies the input directory is readable.
func (i *Identifier) HealthCheck(context.Context) stage.Health {
	if _, err := os.Stat(i.cfg.Paths.InputDir); err != nil {
		return stage.Unhealthy("identifier", fmt.Sprintf("input dir: %v", err))
	}
	return stage.Healthy("identifier")
}

// Identify reads tags from the group's audio files and parses its name.
func (i *Identifier) Identify(ctx context.Context, sourcePath string, files []string) queue.Metadata {
	audio := audioFiles(files)
	tags := i.probeTags(ctx, audio)
	if len(audio) > 1 && tags.Album != "" && tags.Series == "" {
		// Chaptered rips carry the chapter name in the title frame.
		tags.Title = tags.Album
	}
	return Merge(tags, i.nameHints(sourcePath, files, audio))
}

func (i *Identifier) probeTags(ctx context.Context, audio []string) audiotags.Tags {
	logger := logging.WithContext(ctx, i.logger)
	var combined audiotags.Tags
	for idx, path := range audio {
		if idx >= maxTagProbes || ctx.Err() != nil {
			break
		}
		tags, err := i.readTags(path)
		if err != nil {
			logger.Debug("tag read failed", logging.String("path", path), logging.Error(err))
			continue
		}
		fillTags(&combined, tags)
		if combined.Title != "" && combined.Author != "" {
			break
		}
	}
	return combined
}

func fillTags(dst *audiotags.Tags, src audiotags.Tags) {
	fill := func(target *string, value string) {
		if *target == "" {
			*target = value
		}
	}
	fill(&dst.Title, src.Title)
	fill(&dst.Author, src.Author)
	fill(&dst.Album, src.Album)
	fill(&dst.Narrator, src.Narrator)
	fill(&dst.Year, src.Year)
	fill(&dst.Genre, src.Genre)
	fill(&dst.Description, src.Description)
	if dst.Series == "" {
		dst.Series, dst.SeriesPart = src.Series, src.SeriesPart
	}
	fill(&dst.ISBN, src.ISBN)
	fill(&dst.ASIN, src.ASIN)
}

// nameHints parses the leaf directory name. A single-file group whose
// directory name carries no author falls back to the file name, as do
// groups rooted at a single file or at the input root.
func (i *Identifier) nameHints(sourcePath string, files, audio []string) NameHints {
	order := i.cfg.Pipeline.FilenameOrder
	fileHint := func() (NameHints, bool) {
		candidates := audio
		if len(candidates) == 0 {
			candidates = files
		}
		if len(candidates) != 1 {
			return NameHints{}, false
		}
		return ParseName(filepath.Base(candidates[0]), true, order), true
	}

	clean := filepath.Clean(sourcePath)
	if len(files) == 1 && filepath.Clean(files[0]) == clean {
		return ParseName(filepath.Base(clean), true, order)
	}

	var dirHints NameHints
	base := filepath.Base(clean)
	if base != "." && base != string(filepath.Separator) && clean != filepath.Clean(i.cfg.Paths.InputDir) {
		dirHints = ParseName(base, false, order)
	}

	if fromFile, ok := fileHint(); ok && (dirHints.Title == "" || (dirHints.Author == "" && fromFile.Author != "")) {
		fillHints(&fromFile, dirHints)
		return fromFile
	}
	if dirHints.Title == "" && len(files) > 0 {
		sorted := append([]string(nil), files...)
		textutil.SortNatural(sorted)
		return ParseName(filepath.Base(sorted[0]), true, order)
	}
	return dirHints
}

func fillHints(dst *NameHints, src NameHints) {
	if dst.Year == "" {
		dst.Year = src.Year
	}
	if dst.Series == "" {
		dst.Series, dst.SeriesPart = src.Series, src.SeriesPart
	}
}

func audioFiles(files []string) []string {
	var out []string
	for _, f := range files {
		if audiotags.IsAudio(f) {
			out = append(out, f)
		}
	}
	textutil.SortNatural(out)
	return out
}
