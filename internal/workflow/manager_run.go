package workflow

import (
	"context"
	"errors"
	"time"

	"audioshelf/internal/logging"
	"audioshelf/internal/queue"
	"audioshelf/internal/staging"
)

// Start restores interrupted work and launches the worker pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.stages) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	if err := m.restoreInFlight(runCtx); err != nil {
		m.logger.Warn("restore in-flight items failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "restore_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String(logging.FieldImpact, "interrupted items stay in processing until retried"),
		)
	}
	staging.CleanOrphaned(runCtx, m.cfg.Paths.StagingDir, nil, m.logger)

	m.wg.Add(m.workers)
	for i := 0; i < m.workers; i++ {
		go m.runWorker(runCtx, i)
	}
	m.logger.Info("workflow started", logging.Int("workers", m.workers))
	return nil
}

// Stop cancels the workers and waits for them to return. Items in flight
// stay in processing and are restored on the next Start.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// restoreInFlight returns items left in processing by a previous run to
// pending. Their stage is kept so they resume where they stopped.
func (m *Manager) restoreInFlight(ctx context.Context) error {
	items, err := m.store.List(ctx, queue.StatusProcessing)
	if err != nil {
		return err
	}
	for _, item := range items {
		item.Status = queue.StatusPending
		item.LastHeartbeat = nil
		item.ProgressMessage = "Resuming after restart"
		if err := m.store.Update(ctx, item); err != nil {
			return err
		}
	}
	if len(items) > 0 {
		m.logger.Info("restored interrupted items", logging.Int("count", len(items)))
	}
	return nil
}

func (m *Manager) runWorker(ctx context.Context, worker int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", worker))
	for {
		if ctx.Err() != nil {
			return
		}
		item, itemCtx, err := m.claimNext(ctx)
		if err != nil {
			m.setLastError(err)
			logger.Error("failed to fetch next queue item",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			m.waitForWork(ctx)
			continue
		}
		if item == nil {
			m.waitForWork(ctx)
			continue
		}
		m.processItem(itemCtx, logger, item)
		m.release(item.ID)
	}
}

// claimNext picks the oldest pending item that is neither owned by another
// worker nor reserved by an API edit, and registers a cancellable context for it.
func (m *Manager) claimNext(ctx context.Context) (*queue.Item, context.Context, error) {
	items, err := m.store.List(ctx, queue.StatusPending)
	if err != nil {
		return nil, nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		if _, owned := m.active[item.ID]; owned {
			continue
		}
		if _, held := m.reserved[item.ID]; held {
			continue
		}
		itemCtx, cancel := context.WithCancelCause(ctx)
		m.active[item.ID] = cancel
		return item, itemCtx, nil
	}
	return nil, nil, nil
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	cancel, ok := m.active[id]
	delete(m.active, id)
	m.mu.Unlock()
	if ok {
		cancel(nil)
	}
}

func (m *Manager) waitForWork(ctx context.Context) {
	timer := time.NewTimer(m.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-timer.C:
	}
}
