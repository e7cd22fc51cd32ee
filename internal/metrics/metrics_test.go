package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"audioshelf/internal/metrics"
)

func TestRecordProviderQuery(t *testing.T) {
	before := testutil.ToFloat64(metrics.ProviderQueries.WithLabelValues("openlibrary", "ok"))
	metrics.RecordProviderQuery("openlibrary", "ok", 25*time.Millisecond)
	after := testutil.ToFloat64(metrics.ProviderQueries.WithLabelValues("openlibrary", "ok"))
	if after != before+1 {
		t.Fatalf("expected counter to increase by 1, got %v -> %v", before, after)
	}
}

func TestSetQueueCounts(t *testing.T) {
	metrics.SetQueueCounts(map[string]int{"pending": 3, "done": 7})
	if got := testutil.ToFloat64(metrics.QueueItems.WithLabelValues("done")); got != 7 {
		t.Fatalf("done gauge = %v", got)
	}
}
