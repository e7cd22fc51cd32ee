package workflow

import (
	"context"
	"sort"
	"time"

	"audioshelf/internal/logging"
	"audioshelf/internal/metrics"
	"audioshelf/internal/queue"
	"audioshelf/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	Workers     int
	ActiveItems []string
	Stalled     int
	LastError   string
	LastItem    *queue.Item
	QueueStats  map[queue.Status]int
	StageHealth map[string]stage.Health
}

// Status returns the latest workflow information and refreshes the queue
// gauges.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{Running: m.running, Workers: m.workers}
	for id := range m.active {
		summary.ActiveItems = append(summary.ActiveItems, id)
	}
	stages := m.stages
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastItem != nil {
		copied := *m.lastItem
		summary.LastItem = &copied
	}
	m.mu.RUnlock()
	sort.Strings(summary.ActiveItems)

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	} else {
		counts := make(map[string]int, len(stats))
		for status, n := range stats {
			counts[string(status)] = n
		}
		metrics.SetQueueCounts(counts)
	}
	summary.QueueStats = stats

	if stalled, err := m.heartbeat.Stalled(ctx, time.Now()); err == nil {
		summary.Stalled = len(stalled)
	}

	summary.StageHealth = make(map[string]stage.Health, len(stages))
	for _, stg := range stages {
		summary.StageHealth[string(stg.name)] = stg.handler.HealthCheck(ctx)
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastItem(item *queue.Item) {
	m.mu.Lock()
	if item != nil {
		copied := *item
		m.lastItem = &copied
	} else {
		m.lastItem = nil
	}
	m.mu.Unlock()
}
