package monitor

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"audioshelf/internal/logging"
)

// startWatcher subscribes to create/write/rename events under the root.
// It returns nil when watching is disabled or unavailable; polling still
// covers every path in that case.
func (m *Monitor) startWatcher(ctx context.Context) <-chan string {
	if !m.watchEvents {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.WarnWithContext(m.logger, "file event watcher unavailable", "monitor_watch_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "new files are found on the next poll only"),
			logging.String(logging.FieldErrorHint, "raise fs.inotify.max_user_instances or set pipeline.watch_events = false"),
		)
		return nil
	}
	m.watchTree(watcher, m.root)

	out := make(chan string, 64)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(out)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
					continue
				}
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					m.watchTree(watcher, ev.Name)
					continue
				}
				select {
				case out <- ev.Name:
				case <-ctx.Done():
					return
				default:
					// The next poll picks it up.
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Debug("file watcher error", logging.Error(err))
			}
		}
	}()
	return out
}

func (m *Monitor) watchTree(watcher *fsnotify.Watcher, root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != m.root && skipName(d.Name()) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			m.logger.Debug("watch directory failed", logging.String("path", path), logging.Error(err))
		}
		return nil
	})
}
