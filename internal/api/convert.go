package api

import (
	"sort"

	"audioshelf/internal/aggregator"
	"audioshelf/internal/queue"
	"audioshelf/internal/stage"
	"audioshelf/internal/workflow"
)

// FromQueueItem converts a queue item into its API representation.
func FromQueueItem(item *queue.Item) QueueItem {
	if item == nil {
		return QueueItem{}
	}
	dto := QueueItem{
		ID:              item.ID,
		SourcePath:      item.SourcePath,
		Files:           append([]string{}, item.Files...),
		Status:          string(item.Status),
		Stage:           string(item.Stage),
		Metadata:        item.Metadata.Clone(),
		Confidence:      item.Confidence,
		MatchSource:     item.MatchSource,
		Mode:            item.Mode,
		Confirmed:       item.Confirmed,
		DestinationPath: item.DestinationPath,
		Reason:          item.Reason,
		ProgressMessage: item.ProgressMessage,
	}
	if item.LastHeartbeat != nil {
		dto.LastHeartbeat = item.LastHeartbeat.UTC().Format(dateTimeFormat)
	}
	if !item.CreatedAt.IsZero() {
		dto.CreatedAt = item.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !item.UpdatedAt.IsZero() {
		dto.UpdatedAt = item.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromQueueItems converts a slice of queue items.
func FromQueueItems(items []*queue.Item) []QueueItem {
	out := make([]QueueItem, 0, len(items))
	for _, item := range items {
		out = append(out, FromQueueItem(item))
	}
	return out
}

// MergeQueueStats converts status counts, keeping every known status.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = 0
	}
	for status, n := range stats {
		out[string(status)] = n
	}
	return out
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:     summary.Running,
		Workers:     summary.Workers,
		ActiveItems: append([]string{}, summary.ActiveItems...),
		Stalled:     summary.Stalled,
		QueueStats:  MergeQueueStats(summary.QueueStats),
		LastError:   summary.LastError,
		StageHealth: StageHealthSlice(summary.StageHealth),
	}
	if summary.LastItem != nil {
		item := FromQueueItem(summary.LastItem)
		status.LastItem = &item
	}
	return status
}

// StageHealthSlice returns stage health in a stable order.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for name, h := range health {
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FromCandidates converts ranked candidates, numbering them for apply.
func FromCandidates(candidates []aggregator.ScoredCandidate) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for i, c := range candidates {
		out = append(out, Candidate{
			Index:       i,
			Provider:    c.Provider,
			Score:       c.Score,
			Title:       c.Title,
			Subtitle:    c.Subtitle,
			Author:      c.Author,
			Narrator:    c.Narrator,
			Series:      c.Series,
			SeriesPart:  c.SeriesPart,
			Year:        c.Year,
			ISBN:        c.ISBN,
			ASIN:        c.ASIN,
			Description: c.Description,
			CoverURL:    c.CoverURL,
		})
	}
	return out
}
