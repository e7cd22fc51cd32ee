package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"audioshelf/internal/logging"
	"audioshelf/internal/metrics"
	"audioshelf/internal/queue"
	"audioshelf/internal/services"
	"audioshelf/internal/stage"
)

// ErrItemRemoved is the cancellation cause used when an item is ignored
// while a worker owns it.
var ErrItemRemoved = errors.New("item removed")

// processItem runs the stage chain for one owned item until it holds,
// finishes, fails, or its context is cancelled.
func (m *Manager) processItem(ctx context.Context, logger *slog.Logger, item *queue.Item) {
	m.mu.RLock()
	stages := m.stages
	m.mu.RUnlock()

	ctx = services.WithRequestID(services.WithItemID(ctx, item.ID), uuid.NewString())
	for _, stg := range stages[m.stageIndex(stages, item.Stage):] {
		stageCtx := services.WithStage(ctx, string(stg.name))
		if stop := m.runStage(stageCtx, logger, stg, item); stop {
			return
		}
	}

	if item.Status == queue.StatusProcessing {
		item.Hold("Pipeline finished without organizing")
		m.persist(ctx, logging.WithContext(ctx, logger), item)
	}
}

// runStage executes one stage and persists the outcome. It reports whether
// the chain should stop.
func (m *Manager) runStage(ctx context.Context, logger *slog.Logger, stg pipelineStage, item *queue.Item) bool {
	stageLogger := logging.WithContext(ctx, logger)
	started := time.Now()

	now := started.UTC()
	item.Begin(stg.name, stg.label)
	item.LastHeartbeat = &now
	if err := m.store.Update(ctx, item); err != nil {
		m.setLastError(err)
		stageLogger.Error("failed to persist stage start",
			logging.Error(err),
			logging.String(logging.FieldEventType, "persist_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return true
	}
	m.setLastItem(item)
	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("source", item.SourcePath),
	)

	err := stg.handler.Prepare(ctx, item)
	if err == nil {
		err = m.executeWithHeartbeat(ctx, stg.handler, item)
	}

	if interrupted(ctx, err, item) {
		m.handleInterrupted(ctx, stageLogger, stg, item, started)
		return true
	}
	if err != nil {
		m.handleStageFailure(ctx, stageLogger, stg, item, err, started)
		return true
	}

	item.LastHeartbeat = nil
	outcome := "ok"
	switch item.Status {
	case queue.StatusDone:
		outcome = "done"
	case queue.StatusManualIntervention:
		outcome = "held"
	}
	if !m.persist(ctx, stageLogger, item) {
		return true
	}
	metrics.RecordStage(string(stg.name), outcome, time.Since(started))
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("status", string(item.Status)),
		logging.String("progress_message", item.ProgressMessage),
		logging.Duration("stage_duration", time.Since(started)),
	)
	m.setLastItem(item)
	return item.Status != queue.StatusProcessing
}

// interrupted reports whether a cancelled stage should be dropped rather than
// recorded. A stage that already reached done or manual_intervention
// before shutdown is kept; a removed item never is.
func interrupted(ctx context.Context, err error, item *queue.Item) bool {
	if ctx.Err() == nil {
		return false
	}
	if errors.Is(context.Cause(ctx), ErrItemRemoved) {
		return true
	}
	return err != nil || item.Status == queue.StatusProcessing
}

// handleInterrupted covers both an ignored item and daemon shutdown. A
// removed item is not written back; a shutdown leaves it in processing so
// the next Start resumes it.
func (m *Manager) handleInterrupted(ctx context.Context, logger *slog.Logger, stg pipelineStage, item *queue.Item, started time.Time) {
	metrics.RecordStage(string(stg.name), "cancelled", time.Since(started))
	if errors.Is(context.Cause(ctx), ErrItemRemoved) {
		logger.Info("stage aborted for removed item", logging.String(logging.FieldEventType, "stage_cancelled"))
		return
	}
	logger.Debug("stage interrupted by shutdown", logging.String("stage", string(stg.name)), logging.String("item", item.ID))
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, item *queue.Item) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, item.ID)

	err := handler.Execute(ctx, item)
	hbCancel()
	hbWG.Wait()
	return err
}

// persist writes the item with a context that survives cancellation, so a
// finished stage is recorded even while the daemon shuts down.
func (m *Manager) persist(ctx context.Context, logger *slog.Logger, item *queue.Item) bool {
	if err := m.store.Update(context.WithoutCancel(ctx), item); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		m.setLastError(wrapped)
		logger.Error("failed to persist stage result",
			logging.Error(wrapped),
			logging.String(logging.FieldEventType, "persist_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return false
	}
	return true
}
