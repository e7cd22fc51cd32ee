package services

import (
	"errors"
	"strings"

	"audioshelf/internal/queue"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrConflict      = errors.New("conflict")
	ErrCancelled     = errors.New("cancelled")
)

// StageError carries the marker plus the stage/operation context captured by Wrap.
type StageError struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Err       error
}

func (e *StageError) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if e.Err != nil {
		return e.Marker.Error() + ": " + detail + ": " + e.Err.Error()
	}
	return e.Marker.Error() + ": " + detail
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Err}
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &StageError{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Err:       err,
	}
}

// ErrorDetails is a flattened view of a wrapped error for logs and API payloads.
type ErrorDetails struct {
	Kind      string
	Stage     string
	Operation string
	Message   string
	Cause     string
}

// Details extracts the structured context recorded by Wrap. Errors that were
// not produced by Wrap are reported as transient with the raw message.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		return ErrorDetails{Kind: kindName(ErrTransient), Message: err.Error()}
	}
	details := ErrorDetails{
		Kind:      kindName(stageErr.Marker),
		Stage:     stageErr.Stage,
		Operation: stageErr.Operation,
		Message:   stageErr.Message,
	}
	if stageErr.Err != nil {
		details.Cause = stageErr.Err.Error()
	}
	return details
}

// FailureStatus maps a stage error to the queue status the workflow manager
// should persist after the stage fails. Validation and lookup problems need a
// human; everything else is an error the user can retry.
func FailureStatus(err error) queue.Status {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound):
		return queue.StatusManualIntervention
	default:
		return queue.StatusError
	}
}

func kindName(marker error) string {
	switch {
	case errors.Is(marker, ErrExternalTool):
		return "external_tool"
	case errors.Is(marker, ErrValidation):
		return "validation"
	case errors.Is(marker, ErrConfiguration):
		return "configuration"
	case errors.Is(marker, ErrNotFound):
		return "not_found"
	case errors.Is(marker, ErrTimeout):
		return "timeout"
	case errors.Is(marker, ErrConflict):
		return "conflict"
	case errors.Is(marker, ErrCancelled):
		return "cancelled"
	default:
		return "transient"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage != "" {
		parts = append(parts, stage)
	}
	if operation != "" {
		parts = append(parts, operation)
	}
	if message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
