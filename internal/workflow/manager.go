package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"audioshelf/internal/config"
	"audioshelf/internal/logging"
	"audioshelf/internal/notifications"
	"audioshelf/internal/queue"
	"audioshelf/internal/stage"
)

const minPollInterval = 50 * time.Millisecond

// StageSet bundles the stage handlers the manager runs, in order.
type StageSet struct {
	Identifier stage.Handler
	Enricher   stage.Handler
	Organizer  stage.Handler
}

type pipelineStage struct {
	name    queue.Stage
	label   string
	handler stage.Handler
}

// Manager coordinates queue processing using registered stage handlers.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	notifier     notifications.Service
	pollInterval time.Duration
	workers      int

	heartbeat *HeartbeatMonitor
	wake      chan struct{}

	mu       sync.RWMutex
	stages   []pipelineStage
	active   map[string]context.CancelCauseFunc
	reserved map[string]struct{}
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastItem *queue.Item
}

// NewManager constructs a workflow manager with the configured notifier.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	logger = logging.NewComponentLogger(logger, "workflow")
	poll := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if poll < minPollInterval {
		poll = minPollInterval
	}
	workers := cfg.Pipeline.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		notifier:     notifier,
		pollInterval: poll,
		workers:      workers,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		wake:     make(chan struct{}, 1),
		active:   make(map[string]context.CancelCauseFunc),
		reserved: make(map[string]struct{}),
	}
}

// ConfigureStages registers the stage handlers. Nil handlers are skipped.
func (m *Manager) ConfigureStages(set StageSet) {
	var stages []pipelineStage
	if set.Identifier != nil {
		stages = append(stages, pipelineStage{name: queue.StageIdentify, label: "Identifying", handler: set.Identifier})
	}
	if set.Enricher != nil {
		stages = append(stages, pipelineStage{name: queue.StageEnrich, label: "Searching metadata providers", handler: set.Enricher})
	}
	if set.Organizer != nil {
		stages = append(stages, pipelineStage{name: queue.StageOrganize, label: "Organizing", handler: set.Organizer})
	}
	m.mu.Lock()
	m.stages = stages
	m.mu.Unlock()
}

// Wake nudges idle workers to look for work immediately.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Active reports whether a worker currently owns the item.
func (m *Manager) Active(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[id]
	return ok
}

// Reserve keeps workers from claiming id until release is called, so a
// caller can read, modify and write the item without a stage racing it. It
// fails when a worker already owns the item or another caller holds it.
func (m *Manager) Reserve(id string) (release func(), ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, owned := m.active[id]; owned {
		return nil, false
	}
	if _, held := m.reserved[id]; held {
		return nil, false
	}
	m.reserved[id] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.reserved, id)
			m.mu.Unlock()
		})
	}, true
}

// Cancel asks the worker owning id to stop at its next safe point. It
// reports whether the item was in flight.
func (m *Manager) Cancel(id string, cause error) bool {
	m.mu.RLock()
	cancel, ok := m.active[id]
	m.mu.RUnlock()
	if ok {
		cancel(cause)
	}
	return ok
}

// stageIndex returns where a pending item resumes. Unknown or empty stages
// restart from the beginning.
func (m *Manager) stageIndex(stages []pipelineStage, name queue.Stage) int {
	for i, stg := range stages {
		if stg.name == name {
			return i
		}
	}
	return 0
}
