// Package metrics exposes Prometheus instruments for the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Intake
	StableEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audioshelf_stable_entries_total",
			Help: "Filesystem entries that passed the stability window",
		},
	)

	TrackedEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audioshelf_tracked_entries",
			Help: "Entries currently waiting to stabilize",
		},
	)

	OpenGroups = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audioshelf_open_groups",
			Help: "File groups waiting for the grouping window to elapse",
		},
	)

	ItemsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audioshelf_items_ingested_total",
			Help: "Queue items created by ingestion",
		},
		[]string{"outcome"},
	)

	ArchiveExtractions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audioshelf_archive_extractions_total",
			Help: "Archive extraction attempts",
		},
		[]string{"format", "status"},
	)

	// Stages
	StageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audioshelf_stage_outcomes_total",
			Help: "Stage executions by outcome",
		},
		[]string{"stage", "outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audioshelf_stage_duration_seconds",
			Help:    "Time spent executing a stage",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"stage"},
	)

	// Providers
	ProviderQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audioshelf_provider_queries_total",
			Help: "Catalog queries by provider and status",
		},
		[]string{"provider", "status"},
	)

	ProviderQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audioshelf_provider_query_duration_seconds",
			Help:    "Latency of catalog queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	MatchConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audioshelf_match_confidence",
			Help:    "Confidence of the best candidate per aggregation",
			Buckets: []float64{0, 30, 50, 70, 80, 90, 95, 100},
		},
	)

	// Library
	OrganizedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audioshelf_organized_bytes_total",
			Help: "Bytes written into the library",
		},
		[]string{"mode"},
	)

	LibraryScans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audioshelf_library_scans_total",
			Help: "Downstream library rescan requests",
		},
		[]string{"status"},
	)

	QueueItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audioshelf_queue_items",
			Help: "Queue items by status",
		},
		[]string{"status"},
	)
)

// RecordProviderQuery records one catalog query.
func RecordProviderQuery(provider, status string, duration time.Duration) {
	ProviderQueries.WithLabelValues(provider, status).Inc()
	ProviderQueryDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordStage records one stage execution.
func RecordStage(stage, outcome string, duration time.Duration) {
	StageOutcomes.WithLabelValues(stage, outcome).Inc()
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// SetQueueCounts replaces the per-status gauge values.
func SetQueueCounts(counts map[string]int) {
	for status, count := range counts {
		QueueItems.WithLabelValues(status).Set(float64(count))
	}
}
