// Package fileutil holds the filesystem primitives the organizer builds on:
// verified copies, cross-device moves, free-space probes, and errno checks.
package fileutil
