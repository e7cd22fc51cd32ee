package api

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"audioshelf/internal/logging"
	"audioshelf/internal/queue"
	"audioshelf/internal/services"
	"audioshelf/internal/workflow"
)

// Process confirms an organize with the given mode. The gate is bypassed:
// a user decision is accepted regardless of confidence.
func (s *Service) Process(ctx context.Context, id, mode string) (QueueItem, error) {
	mode, err := normalizeMode(mode, false)
	if err != nil {
		return QueueItem{}, err
	}
	item, err := s.editIdle(ctx, id, "process", func(item *queue.Item) error {
		if item.Status == queue.StatusDone {
			return services.Wrap(services.ErrConflict, "api", "process", "Item is already organized", nil)
		}
		item.Mode = mode
		item.Confirmed = true
		item.Status = queue.StatusPending
		item.Stage = queue.StageOrganize
		item.Reason = ""
		item.ProgressMessage = "Queued for organize (" + mode + ")"
		return nil
	})
	if err != nil {
		return QueueItem{}, err
	}
	s.wake()
	logging.WithContext(ctx, s.logger).Info("organize confirmed",
		logging.Args(append(logging.DecisionAttrs("user_process", "organize", "confirmed by user"),
			logging.String(logging.FieldItemID, item.ID),
			logging.String("mode", mode),
		)...)...)
	return FromQueueItem(item), nil
}

// Ignore deletes the item. An in-flight item is cancelled and its stage
// aborts at the next safe point. With removeSource, the source tree is
// deleted as well unless the item was already organized.
func (s *Service) Ignore(ctx context.Context, id string, removeSource bool) error {
	item, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	cancelled := false
	if s.pipeline != nil {
		cancelled = s.pipeline.Cancel(item.ID, workflow.ErrItemRemoved)
	}
	if _, err := s.store.Remove(ctx, item.ID); err != nil {
		return err
	}
	s.dropResults(item.ID)

	logger := logging.WithContext(ctx, s.logger)
	logger.Info("item ignored",
		logging.String(logging.FieldItemID, item.ID),
		logging.Bool("cancelled_in_flight", cancelled),
		logging.Bool("remove_source", removeSource),
	)
	if !removeSource || item.Status == queue.StatusDone {
		return nil
	}
	if err := s.removeSource(item.SourcePath); err != nil {
		logging.WarnWithContext(logger, "source removal failed", "source_remove_failed",
			logging.String("path", item.SourcePath),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the item is gone but its files remain"),
			logging.String(logging.FieldErrorHint, "delete the source manually"),
		)
		return services.Wrap(services.ErrTransient, "api", "ignore", "Item removed but source could not be deleted", err)
	}
	return nil
}

// removeSource deletes a path strictly inside the input root.
func (s *Service) removeSource(path string) error {
	root := filepath.Clean(s.cfg.Paths.InputDir)
	path = filepath.Clean(path)
	if path == root || !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return errors.New("source is outside the input directory")
	}
	return os.RemoveAll(path)
}

// Update replaces the named metadata fields with user values. User values
// outrank every other source in later merges.
func (s *Service) Update(ctx context.Context, id string, fields map[string]string) (QueueItem, error) {
	if len(fields) == 0 {
		return QueueItem{}, services.Wrap(services.ErrValidation, "api", "update", "No fields to update", nil)
	}
	for name := range fields {
		if !queue.IsField(name) {
			return QueueItem{}, services.Wrap(services.ErrValidation, "api", "update", "Unknown metadata field "+name, nil)
		}
	}
	item, err := s.editIdle(ctx, id, "update", func(item *queue.Item) error {
		for name, value := range fields {
			item.Metadata.Set(name, strings.TrimSpace(value), queue.SourceUser)
		}
		return nil
	})
	if err != nil {
		return QueueItem{}, err
	}
	return FromQueueItem(item), nil
}

// Retry re-queues an item that failed or is waiting for review. A failed
// item resumes at the stage that failed; a held item is searched again so
// edited metadata is re-scored before the gate.
func (s *Service) Retry(ctx context.Context, id string) (QueueItem, error) {
	item, err := s.editIdle(ctx, id, "retry", func(item *queue.Item) error {
		switch item.Status {
		case queue.StatusError:
			if item.Stage == "" {
				item.Stage = queue.StageIdentify
			}
		case queue.StatusManualIntervention:
			item.Stage = queue.StageEnrich
		default:
			return services.Wrap(services.ErrConflict, "api", "retry",
				"Only failed or held items can be retried (status "+string(item.Status)+")", nil)
		}
		item.Status = queue.StatusPending
		item.Confirmed = false
		item.Reason = ""
		item.ProgressMessage = "Queued for retry"
		return nil
	})
	if err != nil {
		return QueueItem{}, err
	}
	s.wake()
	return FromQueueItem(item), nil
}
