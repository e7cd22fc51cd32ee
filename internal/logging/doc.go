// Package logging assembles the structured slog loggers used across the
// audioshelf daemon and CLI.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code tags log lines
// with queue item IDs, stages, and correlation IDs without repeating itself.
// A no-op logger is provided for tests and wiring code that cannot fail.
package logging
