// Package workflow advances queue items through identify, enrich and
// organize.
//
// The Manager runs a bounded pool of workers. A worker claims one pending
// item, owns it until it reaches a holding or terminal state, and persists
// the item after every stage so a restart resumes where it stopped. Items
// are claimed in arrival order and never by two workers at once; the API
// consults Active before accepting edits and uses Cancel to stop an item
// that is being ignored mid-stage.
package workflow
