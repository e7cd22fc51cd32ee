package monitor

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"audioshelf/internal/config"
	"audioshelf/internal/logging"
	"audioshelf/internal/metrics"
)

// Stable describes a path whose size and mtime held for the window.
type Stable struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// EmitFunc receives each batch of newly stable paths.
type EmitFunc func(ctx context.Context, stable []Stable)

type snapshot struct {
	size  int64
	mtime time.Time
}

type entry struct {
	snapshot
	firstSeen   time.Time
	stableSince time.Time
}

// Monitor tracks files under one input root.
type Monitor struct {
	root         string
	window       time.Duration
	pollInterval time.Duration
	watchEvents  bool
	emit         EmitFunc
	logger       *slog.Logger
	stat         func(string) (fs.FileInfo, error)
	now          func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
	emitted map[string]snapshot

	wake chan struct{}

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a monitor over cfg.Paths.InputDir.
func New(cfg *config.Config, emit EmitFunc, logger *slog.Logger) *Monitor {
	poll := time.Duration(cfg.Pipeline.PollIntervalSeconds) * time.Second
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Monitor{
		root:         cfg.Paths.InputDir,
		window:       cfg.StabilityWindow(),
		pollInterval: poll,
		watchEvents:  cfg.Pipeline.WatchEvents,
		emit:         emit,
		logger:       logging.NewComponentLogger(logger, "monitor"),
		stat:         os.Stat,
		now:          time.Now,
		entries:      make(map[string]*entry),
		emitted:      make(map[string]snapshot),
		wake:         make(chan struct{}, 1),
	}
}

// Observe starts tracking path unless it is already tracked or was emitted
// with the same snapshot. Directories and vanished paths are ignored.
func (m *Monitor) Observe(path string, now time.Time) {
	if skipName(filepath.Base(path)) {
		return
	}
	info, err := m.stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	snap := snapshot{size: info.Size(), mtime: info.ModTime()}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[path]; ok {
		return
	}
	if prev, ok := m.emitted[path]; ok {
		if prev == snap {
			return
		}
		delete(m.emitted, path)
	}
	m.entries[path] = &entry{snapshot: snap, firstSeen: now, stableSince: now}
	metrics.TrackedEntries.Set(float64(len(m.entries)))
}

// Scan walks the root and observes every regular file.
func (m *Monitor) Scan(ctx context.Context, now time.Time) error {
	seen := make(map[string]struct{})
	err := filepath.WalkDir(m.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
				m.logger.Debug("scan skipped path", logging.String("path", path), logging.Error(err))
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != m.root && skipName(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		seen[path] = struct{}{}
		m.Observe(path, now)
		return nil
	})

	m.mu.Lock()
	for path := range m.emitted {
		if _, ok := seen[path]; !ok {
			delete(m.emitted, path)
		}
	}
	m.mu.Unlock()
	return err
}

// Sweep re-stats every tracked path and returns those whose snapshot held
// for the full window. Returned paths are no longer tracked and are not
// returned again while unchanged.
func (m *Monitor) Sweep(now time.Time) []Stable {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stable []Stable
	for path, e := range m.entries {
		info, err := m.stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				delete(m.entries, path)
				m.logger.Debug("tracked path disappeared", logging.String("path", path))
				continue
			}
			m.logger.Debug("stat failed; retrying next sweep", logging.String("path", path), logging.Error(err))
			continue
		}
		current := snapshot{size: info.Size(), mtime: info.ModTime()}
		if current != e.snapshot {
			e.snapshot = current
			e.stableSince = now
			continue
		}
		if now.Sub(e.stableSince) >= m.window {
			stable = append(stable, Stable{Path: path, Size: current.size, ModTime: current.mtime})
		}
	}
	for _, s := range stable {
		delete(m.entries, s.Path)
		m.emitted[s.Path] = snapshot{size: s.Size, mtime: s.ModTime}
	}
	metrics.TrackedEntries.Set(float64(len(m.entries)))
	metrics.StableEntries.Add(float64(len(stable)))

	sort.Slice(stable, func(i, j int) bool { return stable[i].Path < stable[j].Path })
	return stable
}

// Tracked returns the number of paths waiting to stabilize.
func (m *Monitor) Tracked() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Rescan forgets which paths were already emitted and wakes the loop so
// every file under the root is observed again.
func (m *Monitor) Rescan() {
	m.mu.Lock()
	clear(m.emitted)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Start runs the poll loop until Stop or ctx cancellation.
func (m *Monitor) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return errors.New("monitor already running")
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	events := m.startWatcher(runCtx)
	m.wg.Add(1)
	go m.loop(runCtx, events)
	return nil
}

// Stop halts the loop and waits for it to exit.
func (m *Monitor) Stop() {
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

func (m *Monitor) loop(ctx context.Context, events <-chan string) {
	defer m.wg.Done()

	m.logger.Info("monitoring input directory",
		logging.String("root", m.root),
		logging.Duration("stability_window", m.window),
		logging.Duration("poll_interval", m.pollInterval),
		logging.Bool("watch_events", events != nil),
	)
	m.tick(ctx)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			m.Observe(path, m.now())
		case <-m.wake:
			m.tick(ctx)
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	now := m.now()
	if err := m.Scan(ctx, now); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(m.logger, "input scan failed", "monitor_scan_failed",
			logging.String("root", m.root),
			logging.Error(err),
			logging.String(logging.FieldImpact, "new files may be picked up late"),
			logging.String(logging.FieldErrorHint, "check permissions on paths.input_dir"),
		)
	}
	stable := m.Sweep(now)
	if len(stable) == 0 || m.emit == nil {
		return
	}
	for _, s := range stable {
		m.logger.Debug("path stable", logging.String("path", s.Path), logging.Int64("size", s.Size))
	}
	m.emit(ctx, stable)
}

// skipName filters OS junk and hidden partial-download files.
func skipName(name string) bool {
	if name == "" {
		return true
	}
	lower := strings.ToLower(name)
	switch {
	case lower == ".ds_store", lower == "thumbs.db", lower == "__macosx":
		return true
	case strings.HasPrefix(name, "."):
		return true
	case strings.HasSuffix(lower, ".part"), strings.HasSuffix(lower, ".crdownload"), strings.HasSuffix(lower, ".!qb"):
		return true
	}
	return false
}
