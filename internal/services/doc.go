// Package services defines shared utilities consumed by the pipeline stage
// handlers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp queue item IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent queue statuses (error vs manual intervention).
//
// Sub-packages hold clients for downstream collaborators such as the
// Audiobookshelf library scanner.
package services
