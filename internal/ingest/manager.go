package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"audioshelf/internal/config"
	"audioshelf/internal/logging"
	"audioshelf/internal/metrics"
	"audioshelf/internal/monitor"
	"audioshelf/internal/queue"
	"audioshelf/internal/textutil"
)

// Store is the slice of the queue store ingestion needs.
type Store interface {
	FindBySource(ctx context.Context, sourcePath string) (*queue.Item, error)
	ListBySource(ctx context.Context, sourcePath string) ([]*queue.Item, error)
	Create(ctx context.Context, item *queue.Item) error
	Update(ctx context.Context, item *queue.Item) error
}

type group struct {
	key       string
	members   map[string]struct{}
	opened    time.Time
	lastAdded time.Time
}

// Manager groups stable paths and creates queue items.
type Manager struct {
	cfg    *config.Config
	store  Store
	logger *slog.Logger
	window time.Duration
	now    func() time.Time

	// OnItem is called after an item is created or extended.
	OnItem func(item *queue.Item)

	mu     sync.Mutex
	groups map[string]*group

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates an ingestion manager.
func NewManager(cfg *config.Config, store Store, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "ingest"),
		window: cfg.GroupingWindow(),
		now:    time.Now,
		groups: make(map[string]*group),
	}
}

// HandleStable is the monitor's emit callback.
func (m *Manager) HandleStable(ctx context.Context, stable []monitor.Stable) {
	now := m.now()
	for _, s := range stable {
		m.Accept(ctx, s.Path, now)
	}
}

// Accept filters path, extracts it when it is an archive, and adds the
// result to its directory group.
func (m *Manager) Accept(ctx context.Context, path string, now time.Time) {
	if !m.cfg.IsAllowedExtension(filepath.Base(path)) {
		metrics.ItemsIngested.WithLabelValues("filtered").Inc()
		m.logger.Debug("path filtered by extension", logging.String("path", path))
		return
	}
	if suffix := ArchiveSuffix(path); suffix != "" {
		m.extract(ctx, path, suffix, now)
		return
	}
	m.addMember(path, now)
}

func (m *Manager) extract(ctx context.Context, archive, suffix string, now time.Time) {
	format := suffix[1:]
	dest, files, err := Extract(archive)
	if err != nil && dest == "" {
		metrics.ArchiveExtractions.WithLabelValues(format, "failed").Inc()
		m.recordArchiveFailure(ctx, archive, err)
		return
	}
	if err != nil {
		logging.WarnWithContext(m.logger, "archive extracted but not removed", "archive_cleanup_failed",
			logging.String("archive", archive),
			logging.Error(err),
			logging.String(logging.FieldImpact, "archive stays in the input directory"),
			logging.String(logging.FieldErrorHint, "delete the archive manually"),
		)
	}
	metrics.ArchiveExtractions.WithLabelValues(format, "ok").Inc()
	m.logger.Info("archive extracted",
		logging.String("archive", archive),
		logging.String("destination", dest),
		logging.Int("files", len(files)),
	)
	for _, f := range files {
		if m.cfg.IsAllowedExtension(filepath.Base(f)) && ArchiveSuffix(f) == "" {
			m.addMember(f, now)
		}
	}
}

func (m *Manager) recordArchiveFailure(ctx context.Context, archive string, cause error) {
	logger := logging.WithContext(ctx, m.logger)
	logging.ErrorWithContext(logger, "archive extraction failed", "archive_extract_failed",
		logging.String("archive", archive),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "inspect the archive; it was left in place"),
	)
	existing, err := m.store.FindBySource(ctx, archive)
	if err != nil {
		logger.Error("lookup archive item failed", logging.Error(err))
		return
	}
	if existing != nil {
		return
	}
	item := queue.NewItem(archive, []string{archive})
	item.Mode = m.cfg.Library.DefaultMode
	item.SetFailed(fmt.Sprintf("Archive extraction failed: %v", cause))
	if err := m.store.Create(ctx, item); err != nil {
		logger.Error("record archive failure", logging.Error(err))
		return
	}
	metrics.ItemsIngested.WithLabelValues("archive_error").Inc()
	if m.OnItem != nil {
		m.OnItem(item)
	}
}

// groupKey is the member's directory, or the file itself when it sits
// directly in the input root.
func (m *Manager) groupKey(path string) string {
	dir := filepath.Dir(path)
	if filepath.Clean(dir) == filepath.Clean(m.cfg.Paths.InputDir) {
		return path
	}
	return dir
}

func (m *Manager) addMember(path string, now time.Time) {
	key := m.groupKey(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[key]
	if !ok {
		g = &group{key: key, members: make(map[string]struct{}), opened: now}
		m.groups[key] = g
	}
	if _, dup := g.members[path]; !dup {
		g.members[path] = struct{}{}
		g.lastAdded = now
	}
	metrics.OpenGroups.Set(float64(len(m.groups)))
}

// OpenGroups returns the number of groups still settling.
func (m *Manager) OpenGroups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.groups)
}

// Sweep finalizes every group whose last member arrived at least one
// grouping window ago and returns the items it created or extended.
func (m *Manager) Sweep(ctx context.Context, now time.Time) ([]*queue.Item, error) {
	m.mu.Lock()
	var ready []*group
	for key, g := range m.groups {
		if now.Sub(g.lastAdded) >= m.window {
			ready = append(ready, g)
			delete(m.groups, key)
		}
	}
	metrics.OpenGroups.Set(float64(len(m.groups)))
	m.mu.Unlock()

	slices.SortFunc(ready, func(a, b *group) int { return a.opened.Compare(b.opened) })

	var (
		items []*queue.Item
		errs  []error
	)
	for _, g := range ready {
		item, err := m.finalize(ctx, g)
		if err != nil {
			errs = append(errs, err)
			m.requeue(g)
			continue
		}
		if item != nil {
			items = append(items, item)
		}
	}
	return items, errors.Join(errs...)
}

// requeue puts a group back after a store failure so the next sweep retries.
func (m *Manager) requeue(g *group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.groups[g.key]; ok {
		for path := range g.members {
			current.members[path] = struct{}{}
		}
		return
	}
	m.groups[g.key] = g
}

func (m *Manager) finalize(ctx context.Context, g *group) (*queue.Item, error) {
	logger := logging.WithContext(ctx, m.logger)
	var files []string
	for path := range g.members {
		if _, err := os.Stat(path); err == nil {
			files = append(files, path)
		}
	}
	if len(files) == 0 {
		logger.Debug("group emptied before finalize", logging.String("group", g.key))
		return nil, nil
	}
	textutil.SortNatural(files)

	known, err := m.store.ListBySource(ctx, g.key)
	if err != nil {
		return nil, fmt.Errorf("find group %s: %w", g.key, err)
	}
	// Files a finished item organized stay with it. Anything else in a
	// reused folder belongs to the open item, or starts a new book.
	var owner *queue.Item
	for _, item := range known {
		if item.Status == queue.StatusDone {
			files = unclaimed(item.Files, files)
		} else if owner == nil {
			owner = item
		}
	}
	if owner != nil {
		return m.extend(ctx, owner, files)
	}
	if len(files) == 0 {
		metrics.ItemsIngested.WithLabelValues("duplicate").Inc()
		return nil, nil
	}

	item := queue.NewItem(g.key, files)
	item.Mode = m.cfg.Library.DefaultMode
	item.ProgressMessage = "Queued"
	if err := m.store.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create item for %s: %w", g.key, err)
	}
	metrics.ItemsIngested.WithLabelValues("queued").Inc()
	logger.Info("group finalized",
		logging.String(logging.FieldItemID, item.ID),
		logging.String("source", g.key),
		logging.Int("files", len(files)),
		logging.Duration("settle", g.lastAdded.Sub(g.opened)),
	)
	if m.OnItem != nil {
		m.OnItem(item)
	}
	return item, nil
}

// unclaimed returns the files not already listed in owned.
func unclaimed(owned, files []string) []string {
	var out []string
	for _, f := range files {
		if !slices.Contains(owned, f) {
			out = append(out, f)
		}
	}
	return out
}

// extend folds late arrivals into an unfinished item that owns the group.
// An item mid-stage is left alone.
func (m *Manager) extend(ctx context.Context, item *queue.Item, files []string) (*queue.Item, error) {
	added := unclaimed(item.Files, files)
	if len(added) == 0 {
		metrics.ItemsIngested.WithLabelValues("duplicate").Inc()
		return nil, nil
	}
	if item.Status == queue.StatusProcessing {
		logging.WarnWithContext(m.logger, "late files for a queued book ignored", "ingest_late_files",
			logging.String(logging.FieldItemID, item.ID),
			logging.String("status", string(item.Status)),
			logging.Int("files", len(added)),
			logging.String(logging.FieldImpact, "new files are not part of the organized book"),
			logging.String(logging.FieldErrorHint, "ignore the item and rescan once the transfer completes"),
		)
		return nil, nil
	}

	item.Files = append(item.Files, added...)
	textutil.SortNatural(item.Files)
	if err := m.store.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("extend item %s: %w", item.ID, err)
	}
	metrics.ItemsIngested.WithLabelValues("extended").Inc()
	m.logger.Info("late files added to item",
		logging.String(logging.FieldItemID, item.ID),
		logging.Int("added", len(added)),
	)
	if m.OnItem != nil {
		m.OnItem(item)
	}
	return item, nil
}

// Start runs the finalize loop until Stop or ctx cancellation.
func (m *Manager) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return errors.New("ingest manager already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	interval := min(max(m.window/4, 100*time.Millisecond), time.Second)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if _, err := m.Sweep(runCtx, m.now()); err != nil && runCtx.Err() == nil {
					logging.ErrorWithContext(m.logger, "group finalize failed", "ingest_finalize_failed",
						logging.Error(err),
						logging.String(logging.FieldErrorHint, "check queue database health"),
					)
				}
			}
		}
	}()
	return nil
}

// Stop halts the finalize loop.
func (m *Manager) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.runMu.Unlock()

	cancel()
	m.wg.Wait()
}
