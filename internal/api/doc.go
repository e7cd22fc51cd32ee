// Package api holds the transport-neutral service behind the daemon's HTTP
// surface and the CLI.
//
// Service implements every review operation: listing, status counters,
// rescan, destination preview, confirmed organize, ignore, metadata edits,
// manual search, candidate apply and retry. Mutations respect pipeline
// ownership: an item a worker currently owns rejects edits with a conflict,
// and ignoring it cancels the worker at its next safe point.
//
// DTOs use camelCase JSON tags. Timestamps are RFC3339 with milliseconds.
// Metadata is passed through in its stored form.
package api
