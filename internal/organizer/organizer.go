package organizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"audioshelf/internal/audiotags"
	"audioshelf/internal/config"
	"audioshelf/internal/fileutil"
	"audioshelf/internal/logging"
	"audioshelf/internal/metrics"
	"audioshelf/internal/notifications"
	"audioshelf/internal/queue"
	"audioshelf/internal/services"
	"audioshelf/internal/services/audiobookshelf"
	"audioshelf/internal/stage"
	"audioshelf/internal/staging"
)

// fileOps holds the filesystem calls the organizer makes, so tests can
// inject failures.
type fileOps struct {
	copy      func(src, dst string, mode os.FileMode) error
	rename    func(src, dst string) error
	freeBytes func(path string) (uint64, error)
	chown     func(path string, uid, gid int) error
}

func defaultFileOps() fileOps {
	return fileOps{
		copy:      fileutil.CopyFileVerified,
		rename:    os.Rename,
		freeBytes: fileutil.FreeBytes,
		chown:     os.Lchown,
	}
}

// Organizer is the organize stage handler.
type Organizer struct {
	cfg       *config.Config
	logger    *slog.Logger
	notifier  notifications.Service
	library   audiobookshelf.Service
	http      *http.Client
	ops       fileOps
	writeTags func(path string, t audiotags.Tags) error
}

// NewOrganizer constructs the organizer with configured collaborators.
func NewOrganizer(cfg *config.Config, logger *slog.Logger) *Organizer {
	return NewOrganizerWithDependencies(cfg, logger, notifications.NewService(cfg), audiobookshelf.NewConfiguredService(cfg))
}

// NewOrganizerWithDependencies allows injecting collaborators (used in tests).
func NewOrganizerWithDependencies(cfg *config.Config, logger *slog.Logger, notifier notifications.Service, library audiobookshelf.Service) *Organizer {
	timeout := time.Duration(cfg.Library.CoverTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Organizer{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "organizer"),
		notifier:  notifier,
		library:   library,
		http:      &http.Client{Timeout: timeout},
		ops:       defaultFileOps(),
		writeTags: audiotags.Write,
	}
}

// Prepare sets progress messaging.
func (o *Organizer) Prepare(_ context.Context, item *queue.Item) error {
	item.ProgressMessage = "Preparing organization"
	return nil
}

// Preview returns the plan for item without changing anything.
func (o *Organizer) Preview(item *queue.Item, mode string) (Plan, error) {
	probe := *item
	if mode != "" {
		probe.Mode = mode
	}
	return o.buildPlan(&probe)
}

// Execute organizes the item, or parks it for review when the gate says no.
func (o *Organizer) Execute(ctx context.Context, item *queue.Item) error {
	if err := stage.CheckCancelled(ctx, "organizer", "gate"); err != nil {
		return err
	}
	logger := logging.WithContext(ctx, o.logger)

	plan, err := o.buildPlan(item)
	if err != nil {
		return services.Wrap(services.ErrValidation, "organizer", "plan", "Source files are missing or unreadable", err)
	}
	if !plan.Eligible {
		logger.Info("organize deferred", logging.Args(logging.DecisionAttrs("confidence_gate", "review", plan.Reason)...)...)
		item.Hold(plan.Reason)
		o.publish(ctx, notifications.EventNeedsReview, item, "")
		return nil
	}
	logger.Info("organize approved",
		logging.Args(append(logging.DecisionAttrs("confidence_gate", "organize", plan.Reason),
			logging.String("destination", plan.Destination),
			logging.String("mode", plan.Mode),
		)...)...)

	if o.cfg.Pipeline.DryRun {
		item.Hold("Dry run: would organize to " + plan.Destination)
		return nil
	}
	if plan.Exists && !o.cfg.Library.OverwriteExisting {
		return services.Wrap(services.ErrConflict, "organizer", "destination",
			fmt.Sprintf("Destination already exists: %s", plan.Destination), nil)
	}
	if err := o.checkFreeSpace(plan.TotalBytes); err != nil {
		return err
	}

	stageDir := staging.Dir(o.cfg.Paths.StagingDir, item.ID)
	notes, err := o.build(ctx, item, plan, stageDir)
	if err == nil {
		err = o.publishTree(ctx, stageDir, plan)
	}
	if err != nil {
		if rmErr := os.RemoveAll(stageDir); rmErr != nil {
			logger.Warn("staging cleanup failed", logging.String("path", stageDir), logging.Error(rmErr))
		}
		return err
	}

	if plan.Mode == queue.ModeMove {
		o.removeSources(ctx, item, plan)
	}
	metrics.OrganizedBytes.WithLabelValues(plan.Mode).Add(float64(plan.TotalBytes))
	item.SetDone(plan.Destination)
	if len(notes) > 0 {
		item.ProgressMessage = "Organized (" + strings.Join(notes, "; ") + ")"
	}
	logger.Info("organization completed",
		logging.String("destination", plan.Destination),
		logging.String("mode", plan.Mode),
		logging.Int("files", len(plan.Files)),
		logging.Int64("bytes", plan.TotalBytes),
	)

	if err := o.library.Scan(ctx); err != nil {
		logging.WarnWithContext(logger, "library rescan failed", "library_scan_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the book appears after the next scheduled scan"),
			logging.String(logging.FieldErrorHint, "check audiobookshelf.url and audiobookshelf.api_key"),
		)
		metrics.LibraryScans.WithLabelValues("failed").Inc()
	} else {
		metrics.LibraryScans.WithLabelValues("ok").Inc()
	}
	o.publish(ctx, notifications.EventOrganized, item, plan.Destination)
	return nil
}

// HealthCheck verifies the output and staging roots exist.
func (o *Organizer) HealthCheck(context.Context) stage.Health {
	for _, dir := range []string{o.cfg.Paths.OutputDir, o.cfg.Paths.StagingDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return stage.Unhealthy("organizer", fmt.Sprintf("%s unavailable", dir))
		}
	}
	return stage.Healthy("organizer")
}

func (o *Organizer) checkFreeSpace(required int64) error {
	free, err := o.ops.freeBytes(o.cfg.Paths.StagingDir)
	if err != nil {
		o.logger.Debug("free space check skipped", logging.Error(err))
		return nil
	}
	need := uint64(required) + uint64(o.cfg.Library.MinFreeMiB)*1024*1024
	if free < need {
		return services.Wrap(services.ErrTransient, "organizer", "free space",
			fmt.Sprintf("Not enough free space: need %d MiB, have %d MiB", need>>20, free>>20), nil)
	}
	return nil
}

// publishTree renames the finished staging tree into place. With
// overwrite enabled an existing destination is set aside first and removed
// only after the new tree is in place.
func (o *Organizer) publishTree(ctx context.Context, stageDir string, plan Plan) error {
	if err := stage.CheckCancelled(ctx, "organizer", "relocate"); err != nil {
		return err
	}
	if err := o.mkdirParents(filepath.Dir(plan.Destination)); err != nil {
		return classify("create library directory", err)
	}

	var aside string
	if plan.Exists {
		aside = plan.Destination + ".replaced-" + filepath.Base(stageDir)
		if err := o.ops.rename(plan.Destination, aside); err != nil {
			return classify("set aside existing destination", err)
		}
	}
	if err := o.ops.rename(stageDir, plan.Destination); err != nil {
		if aside != "" {
			_ = o.ops.rename(aside, plan.Destination)
		}
		if fileutil.IsCrossDevice(err) {
			return services.Wrap(services.ErrConfiguration, "organizer", "relocate",
				"paths.staging_dir must be on the same filesystem as paths.output_dir", err)
		}
		return classify("relocate staged book", err)
	}
	if aside != "" {
		if err := os.RemoveAll(aside); err != nil {
			o.logger.Warn("remove replaced book failed", logging.String("path", aside), logging.Error(err))
		}
	}
	return nil
}

// mkdirParents creates missing library directories and applies ownership
// to the ones it created.
func (o *Organizer) mkdirParents(dir string) error {
	var missing []string
	for p := dir; ; p = filepath.Dir(p) {
		if _, err := os.Stat(p); err == nil {
			break
		}
		missing = append(missing, p)
		if parent := filepath.Dir(p); parent == p {
			break
		}
	}
	if err := os.MkdirAll(dir, os.FileMode(o.cfg.Library.DirMode)); err != nil {
		return err
	}
	for i := len(missing) - 1; i >= 0; i-- {
		if err := o.applyOwnership(missing[i], true); err != nil {
			return err
		}
	}
	return nil
}

func (o *Organizer) removeSources(ctx context.Context, item *queue.Item, plan Plan) {
	logger := logging.WithContext(ctx, o.logger)
	for _, move := range plan.Files {
		if err := os.Remove(move.Source); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(logger, "source cleanup failed", "source_cleanup_failed",
				logging.String("path", move.Source),
				logging.Error(err),
				logging.String(logging.FieldImpact, "the organized copy is complete; the source remains"),
				logging.String(logging.FieldErrorHint, "remove the source manually"),
			)
		}
	}

	root := filepath.Clean(o.cfg.Paths.InputDir)
	dir := filepath.Clean(item.SourcePath)
	if len(item.Files) == 1 && filepath.Clean(item.Files[0]) == dir {
		dir = filepath.Dir(dir)
	}
	for dir != root && strings.HasPrefix(dir, root+string(filepath.Separator)) {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
}

func (o *Organizer) publish(ctx context.Context, event notifications.Event, item *queue.Item, destination string) {
	if o.notifier == nil {
		return
	}
	payload := notifications.Payload{
		"title":       item.Metadata.DisplayTitle(),
		"reason":      item.Reason,
		"destination": destination,
	}
	if err := o.notifier.Publish(ctx, event, payload); err != nil {
		logging.WithContext(ctx, o.logger).Warn("notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "no push notification for this item"),
		)
	}
}

// classify wraps a filesystem error, marking disk-full separately so the
// UI shows an actionable reason.
func classify(operation string, err error) error {
	switch {
	case fileutil.IsNoSpace(err):
		return services.Wrap(services.ErrTransient, "organizer", operation, "Disk full", err)
	case errors.Is(err, os.ErrPermission):
		return services.Wrap(services.ErrConfiguration, "organizer", operation, "Permission denied", err)
	default:
		return services.Wrap(services.ErrTransient, "organizer", operation, "Filesystem error", err)
	}
}
