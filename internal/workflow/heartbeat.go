package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"audioshelf/internal/logging"
	"audioshelf/internal/queue"
)

// HeartbeatMonitor stamps heartbeats for owned items and spots stalled ones.
type HeartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HeartbeatMonitor{store: store, logger: logger, interval: interval, timeout: timeout}
}

// StartLoop updates the item's heartbeat until ctx is cancelled.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, itemID string) {
	defer wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, itemID); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}

// Stalled returns processing items whose heartbeat is older than the timeout.
func (h *HeartbeatMonitor) Stalled(ctx context.Context, now time.Time) ([]*queue.Item, error) {
	if h.timeout <= 0 {
		return nil, nil
	}
	items, err := h.store.List(ctx, queue.StatusProcessing)
	if err != nil {
		return nil, err
	}
	cutoff := now.Add(-h.timeout)
	var stalled []*queue.Item
	for _, item := range items {
		if item.LastHeartbeat != nil && item.LastHeartbeat.Before(cutoff) {
			stalled = append(stalled, item)
		}
	}
	return stalled, nil
}
