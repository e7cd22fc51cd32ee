package logging

import (
	"context"
	"log/slog"

	"audioshelf/internal/services"
)

// Attribute keys shared by every component.
const (
	FieldComponent     = "component"
	FieldItemID        = "item_id"
	FieldStage         = "stage"
	FieldCorrelationID = "correlation_id"

	// FieldAlert marks anomalies worth surfacing in dashboards.
	FieldAlert = "alert"
	// FieldEventType classifies a log line for filtering (stage_complete, provider_failed, ...).
	FieldEventType = "event_type"
	// FieldErrorHint carries the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType names the decision being logged.
	FieldDecisionType = "decision_type"
	// FieldErrorKind, FieldErrorOperation and FieldErrorDetail mirror services.ErrorDetails.
	FieldErrorKind      = "error_kind"
	FieldErrorOperation = "error_operation"
	FieldErrorDetail    = "error_detail"
)

// ContextFields turns the ids carried by ctx into log attributes.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	add := func(key string, lookup func(context.Context) (string, bool)) {
		if v, ok := lookup(ctx); ok {
			fields = append(fields, slog.String(key, v))
		}
	}
	add(FieldItemID, services.ItemIDFromContext)
	add(FieldStage, services.StageFromContext)
	add(FieldCorrelationID, services.RequestIDFromContext)
	return fields
}

// WithContext is logger.With(ContextFields(ctx)...), tolerating a nil logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if fields := ContextFields(ctx); len(fields) > 0 {
		return logger.With(attrsToArgs(fields)...)
	}
	return logger
}
