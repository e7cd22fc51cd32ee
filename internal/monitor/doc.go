// Package monitor detects input files that have stopped changing.
//
// Every tracked path keeps its last observed size and modification time.
// A sweep that sees a different snapshot restarts the path's stable timer;
// once the snapshot has held for the stability window the path is emitted
// once and dropped from tracking. Periodic directory walks are the source
// of truth. fsnotify events only shorten the time until a new path is seen.
package monitor
