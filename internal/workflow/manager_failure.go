package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"audioshelf/internal/logging"
	"audioshelf/internal/metrics"
	"audioshelf/internal/notifications"
	"audioshelf/internal/queue"
	"audioshelf/internal/services"
)

func (m *Manager) handleStageFailure(ctx context.Context, logger *slog.Logger, stg pipelineStage, item *queue.Item, stageErr error, started time.Time) {
	message := failureMessage(stg.name, stageErr)
	status := services.FailureStatus(stageErr)
	if status == queue.StatusManualIntervention {
		item.Hold(message)
	} else {
		item.SetFailed(message)
	}

	attrs := append(logging.ErrorAttrs(stageErr),
		logging.String("resolved_status", string(status)),
		logging.String("reason", message),
		logging.Alert("stage_failure"),
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldErrorHint, "fix the cause, then retry or edit the item"),
	)
	logger.Error("stage failed", logging.Args(attrs...)...)

	m.persist(ctx, logger, item)
	metrics.RecordStage(string(stg.name), "failed", time.Since(started))
	m.setLastError(stageErr)
	m.setLastItem(item)

	event := notifications.EventError
	if status == queue.StatusManualIntervention {
		event = notifications.EventNeedsReview
	}
	m.notify(ctx, logger, event, item)
}

func failureMessage(stageName queue.Stage, err error) string {
	if err == nil {
		return fmt.Sprintf("%s failed without error detail", stageName)
	}
	details := services.Details(err)
	if message := strings.TrimSpace(details.Message); message != "" {
		return message
	}
	if message := strings.TrimSpace(err.Error()); message != "" {
		return message
	}
	return fmt.Sprintf("%s failed", stageName)
}

func (m *Manager) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, item *queue.Item) {
	if m.notifier == nil {
		return
	}
	payload := notifications.Payload{
		"title":  item.Metadata.DisplayTitle(),
		"reason": item.Reason,
	}
	if err := m.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logging.WarnWithContext(logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "no push notification for this item"),
		)
	}
}
