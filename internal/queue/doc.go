// Package queue persists QueueItems, the unit of work flowing through the
// audioshelf pipeline, in a SQLite database that survives daemon restarts.
//
// Items carry their source directory, member files, merged book metadata,
// confidence, and lifecycle status. Identifiers are UUIDv7 so listing by id
// is also listing by arrival order.
package queue
