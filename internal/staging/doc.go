// Package staging names per-item staging directories and removes the ones
// left behind by a crash. A staging directory is never the only copy of a
// book in move mode, so discarding one is always safe.
package staging
