package organizer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"audioshelf/internal/audiotags"
	"audioshelf/internal/fileutil"
	"audioshelf/internal/logging"
	"audioshelf/internal/queue"
	"audioshelf/internal/sidecar"
	"audioshelf/internal/stage"
)

// build fills stageDir with the finished book: copied files, rewritten
// tags, sidecar, cover and ownership. It returns non-fatal notes.
func (o *Organizer) build(ctx context.Context, item *queue.Item, plan Plan, stageDir string) ([]string, error) {
	logger := logging.WithContext(ctx, o.logger)
	dirMode := os.FileMode(o.cfg.Library.DirMode)
	fileMode := os.FileMode(o.cfg.Library.FileMode)

	if err := os.RemoveAll(stageDir); err != nil {
		return nil, classify("reset staging", err)
	}
	if err := os.MkdirAll(stageDir, dirMode); err != nil {
		return nil, classify("create staging", err)
	}

	for i, move := range plan.Files {
		if err := stage.CheckCancelled(ctx, "organizer", "stage files"); err != nil {
			return nil, err
		}
		item.ProgressMessage = fmt.Sprintf("Staging file %d of %d", i+1, len(plan.Files))
		if err := o.ops.copy(move.Source, filepath.Join(stageDir, move.Target), fileMode); err != nil {
			return nil, classify("stage "+filepath.Base(move.Source), err)
		}
	}

	var notes []string
	if o.cfg.Library.WriteTags {
		note, err := o.rewriteTags(ctx, item.Metadata, plan, stageDir)
		if err != nil {
			return nil, err
		}
		if note != "" {
			notes = append(notes, note)
		}
	}

	if _, err := sidecar.Write(stageDir, sidecar.FromMetadata(item.Metadata), fileMode); err != nil {
		return nil, classify("write sidecar", err)
	}

	if url := strings.TrimSpace(item.Metadata.CoverURL); url != "" && !hasCover(plan) {
		if err := o.fetchCover(ctx, url, stageDir, fileMode); err != nil {
			if fileutil.IsNoSpace(err) {
				return nil, classify("write cover", err)
			}
			logging.WarnWithContext(logger, "cover art unavailable", "cover_fetch_failed",
				logging.String("url", url),
				logging.Error(err),
				logging.String(logging.FieldImpact, "book organized without cover art"),
				logging.String(logging.FieldErrorHint, "set a different cover_url or add cover.jpg manually"),
			)
			notes = append(notes, "cover art unavailable")
		}
	}

	if err := filepath.WalkDir(stageDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return o.applyOwnership(path, d.IsDir())
	}); err != nil {
		return nil, classify("apply ownership", err)
	}
	return notes, nil
}

func (o *Organizer) rewriteTags(ctx context.Context, meta queue.Metadata, plan Plan, stageDir string) (string, error) {
	tags := tagsFor(meta)
	failed := 0
	for _, move := range plan.Files {
		if !audiotags.IsAudio(move.Target) {
			continue
		}
		if err := stage.CheckCancelled(ctx, "organizer", "write tags"); err != nil {
			return "", err
		}
		path := filepath.Join(stageDir, move.Target)
		err := o.writeTags(path, tags)
		switch {
		case err == nil, errors.Is(err, audiotags.ErrUnsupported):
		case fileutil.IsNoSpace(err):
			return "", classify("write tags", err)
		default:
			failed++
			o.logger.Warn("tag rewrite failed",
				logging.String("file", move.Target),
				logging.Error(err),
				logging.String(logging.FieldEventType, "tag_write_failed"),
				logging.String(logging.FieldImpact, "file keeps its original tags"),
				logging.String(logging.FieldErrorHint, "the file may be corrupt; check it with a tag editor"),
			)
		}
	}
	if failed > 0 {
		return fmt.Sprintf("tags not written for %d files", failed), nil
	}
	return "", nil
}

func tagsFor(meta queue.Metadata) audiotags.Tags {
	return audiotags.Tags{
		Title:       meta.Title,
		Author:      meta.Author,
		Narrator:    meta.Narrator,
		Year:        meta.Year,
		Genre:       meta.Genre,
		Description: meta.Description,
		Series:      meta.Series,
		SeriesPart:  meta.SeriesPart,
		ISBN:        meta.ISBN,
		ASIN:        meta.ASIN,
	}
}

func hasCover(plan Plan) bool {
	for _, move := range plan.Files {
		switch strings.ToLower(filepath.Ext(move.Target)) {
		case ".jpg", ".jpeg", ".png":
			return true
		}
	}
	return false
}

// applyOwnership sets the configured mode and, when set, owner.
func (o *Organizer) applyOwnership(path string, isDir bool) error {
	mode := os.FileMode(o.cfg.Library.FileMode)
	if isDir {
		mode = os.FileMode(o.cfg.Library.DirMode)
	}
	if err := os.Chmod(path, mode); err != nil {
		return err
	}
	uid, gid := o.cfg.Library.OwnerUID, o.cfg.Library.OwnerGID
	if uid < 0 && gid < 0 {
		return nil
	}
	return o.ops.chown(path, uid, gid)
}
