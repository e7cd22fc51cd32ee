package api

import (
	"audioshelf/internal/organizer"
	"audioshelf/internal/queue"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueItem describes a queue entry in a transport-friendly format.
type QueueItem struct {
	ID              string         `json:"id"`
	SourcePath      string         `json:"sourcePath"`
	Files           []string       `json:"files"`
	Status          string         `json:"status"`
	Stage           string         `json:"stage,omitempty"`
	Metadata        queue.Metadata `json:"metadata"`
	Confidence      int            `json:"confidence"`
	MatchSource     string         `json:"matchSource,omitempty"`
	Mode            string         `json:"mode,omitempty"`
	Confirmed       bool           `json:"confirmed"`
	DestinationPath string         `json:"destinationPath,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	ProgressMessage string         `json:"progressMessage,omitempty"`
	Active          bool           `json:"active"`
	LastHeartbeat   string         `json:"lastHeartbeat,omitempty"`
	CreatedAt       string         `json:"createdAt,omitempty"`
	UpdatedAt       string         `json:"updatedAt,omitempty"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	Workers     int            `json:"workers"`
	ActiveItems []string       `json:"activeItems"`
	Stalled     int            `json:"stalled"`
	QueueStats  map[string]int `json:"queueStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastItem    *QueueItem     `json:"lastItem,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// PipelineCounters reports work in flight ahead of the queue.
type PipelineCounters struct {
	TrackedEntries int `json:"trackedEntries"`
	OpenGroups     int `json:"openGroups"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool             `json:"running"`
	PID          int              `json:"pid"`
	QueueDBPath  string           `json:"queueDbPath"`
	LockFilePath string           `json:"lockFilePath"`
	InputDir     string           `json:"inputDir"`
	OutputDir    string           `json:"outputDir"`
	DryRun       bool             `json:"dryRun"`
	Pipeline     PipelineCounters `json:"pipeline"`
	Workflow     WorkflowStatus   `json:"workflow"`
}

// QueueListResponse wraps a collection of queue items.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueItemResponse wraps a single queue item.
type QueueItemResponse struct {
	Item QueueItem `json:"item"`
}

// QueueStatsResponse provides per-status counts.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// PreviewResponse carries the organize plan for an item.
type PreviewResponse struct {
	Plan organizer.Plan `json:"plan"`
}

// ProcessRequest confirms an organize with the chosen mode.
type ProcessRequest struct {
	Mode string `json:"mode"`
}

// UpdateRequest replaces the named metadata fields.
type UpdateRequest struct {
	Fields map[string]string `json:"fields"`
}

// IgnoreRequest controls whether the source is deleted with the item.
type IgnoreRequest struct {
	RemoveSource bool `json:"removeSource"`
}

// SearchRequest is a manual search. Empty fields fall back to the item's
// current metadata.
type SearchRequest struct {
	Query  string `json:"query"`
	Author string `json:"author,omitempty"`
	ISBN   string `json:"isbn,omitempty"`
	ASIN   string `json:"asin,omitempty"`
}

// Candidate is one ranked search result. Index addresses it in an apply.
type Candidate struct {
	Index       int    `json:"index"`
	Provider    string `json:"provider"`
	Score       int    `json:"score"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle,omitempty"`
	Author      string `json:"author,omitempty"`
	Narrator    string `json:"narrator,omitempty"`
	Series      string `json:"series,omitempty"`
	SeriesPart  string `json:"seriesPart,omitempty"`
	Year        string `json:"year,omitempty"`
	ISBN        string `json:"isbn,omitempty"`
	ASIN        string `json:"asin,omitempty"`
	Description string `json:"description,omitempty"`
	CoverURL    string `json:"coverUrl,omitempty"`
}

// SearchResponse lists ranked candidates and the providers that failed.
type SearchResponse struct {
	Candidates []Candidate `json:"candidates"`
	Failed     []string    `json:"failed,omitempty"`
}

// ApplyRequest selects a candidate from the last search.
type ApplyRequest struct {
	Index int `json:"index"`
}

// ApplyResponse reports the applied candidate's effect.
type ApplyResponse struct {
	Item    QueueItem `json:"item"`
	Changed []string  `json:"changed"`
}

// RescanResponse acknowledges a rescan.
type RescanResponse struct {
	Requested bool `json:"requested"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
