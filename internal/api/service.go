package api

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"audioshelf/internal/aggregator"
	"audioshelf/internal/config"
	"audioshelf/internal/logging"
	"audioshelf/internal/organizer"
	"audioshelf/internal/queue"
	"audioshelf/internal/services"
)

// Store is the queue persistence the service needs.
type Store interface {
	List(ctx context.Context, statuses ...queue.Status) ([]*queue.Item, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	GetByID(ctx context.Context, id string) (*queue.Item, error)
	Update(ctx context.Context, item *queue.Item) error
	Remove(ctx context.Context, id string) (bool, error)
}

// Pipeline is the workflow manager's ownership surface. Reserve keeps
// workers off an item while the service edits it.
type Pipeline interface {
	Active(id string) bool
	Reserve(id string) (release func(), ok bool)
	Cancel(id string, cause error) bool
	Wake()
}

// Previewer computes organize plans without side effects.
type Previewer interface {
	Preview(item *queue.Item, mode string) (organizer.Plan, error)
}

// Monitor is the stability monitor's control surface.
type Monitor interface {
	Rescan()
	Tracked() int
}

// Grouper reports ingestion groups that have not finalized yet.
type Grouper interface {
	OpenGroups() int
}

// Dependencies wires the service. Monitor and Grouper are optional.
type Dependencies struct {
	Config    *config.Config
	Store     Store
	Pipeline  Pipeline
	Previewer Previewer
	Searcher  aggregator.Searcher
	Monitor   Monitor
	Grouper   Grouper
	Logger    *slog.Logger
}

// Service implements the review operations.
type Service struct {
	cfg       *config.Config
	store     Store
	pipeline  Pipeline
	previewer Previewer
	searcher  aggregator.Searcher
	monitor   Monitor
	grouper   Grouper
	logger    *slog.Logger

	mu      sync.Mutex
	results map[string][]aggregator.ScoredCandidate
}

// NewService constructs a Service.
func NewService(deps Dependencies) *Service {
	return &Service{
		cfg:       deps.Config,
		store:     deps.Store,
		pipeline:  deps.Pipeline,
		previewer: deps.Previewer,
		searcher:  deps.Searcher,
		monitor:   deps.Monitor,
		grouper:   deps.Grouper,
		logger:    logging.NewComponentLogger(deps.Logger, "api"),
		results:   make(map[string][]aggregator.ScoredCandidate),
	}
}

// List returns queue items, optionally filtered by status.
func (s *Service) List(ctx context.Context, statuses ...queue.Status) ([]QueueItem, error) {
	items, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	out := FromQueueItems(items)
	for i := range out {
		out[i].Active = s.active(out[i].ID)
	}
	return out, nil
}

// Stats returns per-status counts.
func (s *Service) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeQueueStats(stats), nil
}

// Counters reports entries and groups not yet queued.
func (s *Service) Counters() PipelineCounters {
	var c PipelineCounters
	if s.monitor != nil {
		c.TrackedEntries = s.monitor.Tracked()
	}
	if s.grouper != nil {
		c.OpenGroups = s.grouper.OpenGroups()
	}
	return c
}

// Describe fetches a single queue item.
func (s *Service) Describe(ctx context.Context, id string) (QueueItem, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return QueueItem{}, err
	}
	dto := FromQueueItem(item)
	dto.Active = s.active(id)
	return dto, nil
}

// Rescan forgets what the monitor already emitted and walks the input root
// again on its next tick.
func (s *Service) Rescan(ctx context.Context) error {
	if s.monitor == nil {
		return services.Wrap(services.ErrConfiguration, "api", "rescan", "Monitor is not running", nil)
	}
	s.monitor.Rescan()
	logging.WithContext(ctx, s.logger).Info("rescan requested", logging.String(logging.FieldEventType, "rescan_requested"))
	return nil
}

// Preview returns the organize plan for an item without changing it.
func (s *Service) Preview(ctx context.Context, id, mode string) (organizer.Plan, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return organizer.Plan{}, err
	}
	if mode, err = normalizeMode(mode, true); err != nil {
		return organizer.Plan{}, err
	}
	plan, err := s.previewer.Preview(item, mode)
	if err != nil {
		return organizer.Plan{}, services.Wrap(services.ErrValidation, "api", "preview", "Source files are missing or unreadable", err)
	}
	return plan, nil
}

func (s *Service) load(ctx context.Context, id string) (*queue.Item, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, services.Wrap(services.ErrValidation, "api", "lookup", "Item id is required", nil)
	}
	item, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, services.Wrap(services.ErrNotFound, "api", "lookup", "Queue item not found", nil)
	}
	return item, nil
}

// editIdle runs a read-modify-write on an item no worker owns. The item is
// reserved before it is read and stays reserved until the write lands, so a
// worker can neither claim it in between nor be overwritten by a stale copy.
func (s *Service) editIdle(ctx context.Context, id, operation string, edit func(*queue.Item) error) (*queue.Item, error) {
	id = strings.TrimSpace(id)
	if s.pipeline != nil {
		release, ok := s.pipeline.Reserve(id)
		if !ok {
			return nil, services.Wrap(services.ErrConflict, "api", operation, "Item is being processed; try again when it settles", nil)
		}
		defer release()
	}
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := edit(item); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) active(id string) bool {
	return s.pipeline != nil && s.pipeline.Active(id)
}

func (s *Service) wake() {
	if s.pipeline != nil {
		s.pipeline.Wake()
	}
}

func normalizeMode(mode string, allowEmpty bool) (string, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	switch mode {
	case queue.ModeCopy, queue.ModeMove:
		return mode, nil
	case "":
		if allowEmpty {
			return "", nil
		}
	}
	return "", services.Wrap(services.ErrValidation, "api", "mode", "Mode must be copy or move", nil)
}
