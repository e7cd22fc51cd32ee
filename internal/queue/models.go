package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending            Status = "pending"
	StatusProcessing         Status = "processing"
	StatusManualIntervention Status = "manual_intervention"
	StatusDone               Status = "done"
	StatusError              Status = "error"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusManualIntervention,
	StatusDone,
	StatusError,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Stage names the pipeline step an item is at (or last completed) while processing.
type Stage string

const (
	StageIdentify Stage = "identify"
	StageEnrich   Stage = "enrich"
	StageOrganize Stage = "organize"
)

// Organize modes.
const (
	ModeCopy = "copy"
	ModeMove = "move"
)

// Item represents a queue item persisted in SQLite.
type Item struct {
	ID              string
	SourcePath      string
	Files           []string
	Status          Status
	Stage           Stage
	Metadata        Metadata
	Confidence      int
	MatchSource     string
	Mode            string
	Confirmed       bool
	DestinationPath string
	Reason          string
	ProgressMessage string
	LastHeartbeat   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further pipeline work happens without user action.
func (s Status) IsTerminal() bool {
	return s == StatusDone
}

// IsHolding reports whether the item waits on a user (review or retry).
func (s Status) IsHolding() bool {
	return s == StatusManualIntervention || s == StatusError
}

// Begin moves the item into processing at the given stage and clears stale reasons.
func (i *Item) Begin(stage Stage, message string) {
	i.Status = StatusProcessing
	i.Stage = stage
	i.Reason = ""
	i.ProgressMessage = message
}

// Hold parks the item for manual intervention with a human-readable reason.
func (i *Item) Hold(reason string) {
	i.Status = StatusManualIntervention
	i.Reason = reason
	i.ProgressMessage = reason
	i.LastHeartbeat = nil
}

// SetFailed marks the item as errored with the given reason.
func (i *Item) SetFailed(reason string) {
	i.Status = StatusError
	i.Reason = reason
	i.ProgressMessage = reason
	i.LastHeartbeat = nil
}

// SetDone records a successful organize.
func (i *Item) SetDone(destination string) {
	i.Status = StatusDone
	i.DestinationPath = destination
	i.Reason = ""
	i.ProgressMessage = "Organized"
	i.LastHeartbeat = nil
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath        string
	SchemaVersion int
	TotalItems    int
	Integrity     bool
	Error         string
}
