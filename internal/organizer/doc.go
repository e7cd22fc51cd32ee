// Package organizer is the final pipeline stage. It decides whether an item
// may be organized, builds the book's library tree in a private staging
// directory, and publishes that tree with a single rename.
//
// Sources are copied into staging, never moved, so every failure before
// the rename leaves the input untouched in both modes. Move mode deletes
// the sources only after the rename succeeded. Cover art and the library
// rescan are best effort.
package organizer
