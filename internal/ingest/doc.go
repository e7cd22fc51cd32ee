// Package ingest turns stable input paths into queue items.
//
// Paths outside the extension allow-list are dropped. Archives are unpacked
// into a sibling directory and their contents join the normal flow. Every
// remaining path joins the open group for its directory; each new member
// restarts that group's settle timer, and a group whose timer runs out
// becomes exactly one pending queue item. Files sitting directly in the
// input root form single-file groups keyed by their own path.
package ingest
