package api_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"audioshelf/internal/aggregator"
	"audioshelf/internal/api"
	"audioshelf/internal/config"
	"audioshelf/internal/organizer"
	"audioshelf/internal/providers"
	"audioshelf/internal/queue"
	"audioshelf/internal/services"
	"audioshelf/internal/testsupport"
	"audioshelf/internal/workflow"
)

type fakePipeline struct {
	mu        sync.Mutex
	active    map[string]bool
	reserved  map[string]bool
	cancelled map[string]error
	wakes     int
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{active: map[string]bool{}, reserved: map[string]bool{}, cancelled: map[string]error{}}
}

func (p *fakePipeline) Reserve(id string) (func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[id] || p.reserved[id] {
		return nil, false
	}
	p.reserved[id] = true
	return func() {
		p.mu.Lock()
		delete(p.reserved, id)
		p.mu.Unlock()
	}, true
}

func (p *fakePipeline) isReserved(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserved[id]
}

func (p *fakePipeline) Active(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active[id]
}

func (p *fakePipeline) Cancel(id string, cause error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled[id] = cause
	return p.active[id]
}

func (p *fakePipeline) Wake() {
	p.mu.Lock()
	p.wakes++
	p.mu.Unlock()
}

type fakeSearcher struct {
	result  aggregator.Result
	queries []providers.Query
}

func (f *fakeSearcher) Search(_ context.Context, q providers.Query) aggregator.Result {
	f.queries = append(f.queries, q)
	return f.result
}

func (f *fakeSearcher) Names() []string { return []string{"stub"} }

type fakeMonitor struct{ rescans int }

func (m *fakeMonitor) Rescan()      { m.rescans++ }
func (m *fakeMonitor) Tracked() int { return 3 }

type fixture struct {
	cfg      *config.Config
	store    *queue.Store
	pipeline *fakePipeline
	searcher *fakeSearcher
	monitor  *fakeMonitor
	svc      *api.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	f := &fixture{
		cfg:      cfg,
		store:    testsupport.MustOpenStore(t, cfg),
		pipeline: newFakePipeline(),
		searcher: &fakeSearcher{},
		monitor:  &fakeMonitor{},
	}
	f.svc = api.NewService(api.Dependencies{
		Config:    cfg,
		Store:     f.store,
		Pipeline:  f.pipeline,
		Previewer: organizer.NewOrganizer(cfg, nil),
		Searcher:  f.searcher,
		Monitor:   f.monitor,
	})
	return f
}

func (f *fixture) heldItem(t *testing.T) *queue.Item {
	t.Helper()
	dir := filepath.Join(f.cfg.Paths.InputDir, "Dune - Frank Herbert")
	file := filepath.Join(dir, "dune.m4b")
	testsupport.WriteFile(t, file, 512)
	item := testsupport.NewItem(t, f.store, dir, file)
	item.Metadata.Set(queue.FieldTitle, "Dune", queue.SourceFilename)
	item.Metadata.Set(queue.FieldAuthor, "Frank Herbert", queue.SourceTag)
	item.Stage = queue.StageOrganize
	item.Hold("Confidence 0 below threshold 70")
	if err := f.store.Update(context.Background(), item); err != nil {
		t.Fatalf("Update: %v", err)
	}
	return item
}

func TestProcessConfirmsAndWakes(t *testing.T) {
	f := newFixture(t)
	item := f.heldItem(t)

	got, err := f.svc.Process(context.Background(), item.ID, "COPY")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got.Status != string(queue.StatusPending) || got.Stage != string(queue.StageOrganize) || !got.Confirmed || got.Mode != queue.ModeCopy {
		t.Fatalf("unexpected item %+v", got)
	}
	stored := testsupport.MustGet(t, f.store, item.ID)
	if !stored.Confirmed || stored.Reason != "" {
		t.Fatalf("stored item not confirmed: %+v", stored)
	}
	if f.pipeline.wakes != 1 {
		t.Fatalf("wakes = %d", f.pipeline.wakes)
	}
}

func TestProcessValidation(t *testing.T) {
	f := newFixture(t)
	item := f.heldItem(t)

	if _, err := f.svc.Process(context.Background(), item.ID, "link"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("bad mode error = %v", err)
	}
	if _, err := f.svc.Process(context.Background(), "missing", "copy"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing item error = %v", err)
	}
	item.SetDone("/library/Dune")
	if err := f.store.Update(context.Background(), item); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := f.svc.Process(context.Background(), item.ID, "copy"); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("done item error = %v", err)
	}
}

func TestEditsRejectedWhileItemIsOwned(t *testing.T) {
	f := newFixture(t)
	item := f.heldItem(t)
	f.pipeline.active[item.ID] = true

	_, err := f.svc.Update(context.Background(), item.ID, map[string]string{queue.FieldTitle: "Other"})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := f.svc.Retry(context.Background(), item.ID); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict on retry, got %v", err)
	}
	if got := testsupport.MustGet(t, f.store, item.ID); got.Metadata.Title != "Dune" {
		t.Fatalf("owned item was modified: %q", got.Metadata.Title)
	}
}

// writeWatchingStore records whether each write happened while the item
// was reserved against the workers.
type writeWatchingStore struct {
	*queue.Store
	pipeline *fakePipeline
	writes   []bool
}

func (s *writeWatchingStore) Update(ctx context.Context, item *queue.Item) error {
	s.writes = append(s.writes, s.pipeline.isReserved(item.ID))
	return s.Store.Update(ctx, item)
}

func TestEditsHoldReservationUntilWritten(t *testing.T) {
	f := newFixture(t)
	item := f.heldItem(t)
	watched := &writeWatchingStore{Store: f.store, pipeline: f.pipeline}
	svc := api.NewService(api.Dependencies{Config: f.cfg, Store: watched, Pipeline: f.pipeline})

	if _, err := svc.Update(context.Background(), item.ID, map[string]string{queue.FieldTitle: "Dune Messiah"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := svc.Process(context.Background(), item.ID, queue.ModeMove); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(watched.writes) != 2 || !watched.writes[0] || !watched.writes[1] {
		t.Fatalf("writes outside a reservation: %v", watched.writes)
	}
	if f.pipeline.isReserved(item.ID) {
		t.Fatal("reservation not released after the edit")
	}

	release, ok := f.pipeline.Reserve(item.ID)
	if !ok {
		t.Fatal("Reserve should succeed on an idle item")
	}
	defer release()
	if _, err := svc.Update(context.Background(), item.ID, map[string]string{queue.FieldTitle: "Other"}); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("concurrent edit error = %v", err)
	}
	if got := testsupport.MustGet(t, f.store, item.ID); got.Metadata.Title != "Dune Messiah" {
		t.Fatalf("concurrent edit was written: %q", got.Metadata.Title)
	}
}

func TestUpdateRecordsUserSource(t *testing.T) {
	f := newFixture(t)
	item := f.heldItem(t)

	got, err := f.svc.Update(context.Background(), item.ID, map[string]string{
		queue.FieldTitle:  " Dune Messiah ",
		queue.FieldSeries: "Dune",
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Metadata.Title != "Dune Messiah" || got.Metadata.Source(queue.FieldTitle) != queue.SourceUser {
		t.Fatalf("title = %q source = %q", got.Metadata.Title, got.Metadata.Source(queue.FieldTitle))
	}
	if got.Status != string(queue.StatusManualIntervention) {
		t.Fatalf("update should not move the item, status %s", got.Status)
	}

	if _, err := f.svc.Update(context.Background(), item.ID, map[string]string{"colour": "red"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("unknown field error = %v", err)
	}
}

func TestIgnoreCancelsAndRemoves(t *testing.T) {
	f := newFixture(t)
	item := f.heldItem(t)
	f.pipeline.active[item.ID] = true

	if err := f.svc.Ignore(context.Background(), item.ID, true); err != nil {
		t.Fatalf("Ignore: %v", err)
	}
	if !errors.Is(f.pipeline.cancelled[item.ID], workflow.ErrItemRemoved) {
		t.Fatalf("cancel cause = %v", f.pipeline.cancelled[item.ID])
	}
	if got, _ := f.store.GetByID(context.Background(), item.ID); got != nil {
		t.Fatal("item still stored")
	}
	if _, err := os.Stat(item.SourcePath); !os.IsNotExist(err) {
		t.Fatalf("source should be removed: %v", err)
	}
	if _, err := os.Stat(f.cfg.Paths.InputDir); err != nil {
		t.Fatalf("input root removed: %v", err)
	}
}

func TestIgnoreKeepsSourceOutsideInputRoot(t *testing.T) {
	f := newFixture(t)
	outside := filepath.Join(testsupport.BaseDir(f.cfg), "elsewhere")
	testsupport.WriteFile(t, filepath.Join(outside, "book.mp3"), 8)
	item := testsupport.NewItem(t, f.store, outside, filepath.Join(outside, "book.mp3"))

	err := f.svc.Ignore(context.Background(), item.ID, true)
	if err == nil {
		t.Fatal("expected source removal to be refused")
	}
	if _, statErr := os.Stat(outside); statErr != nil {
		t.Fatalf("outside path touched: %v", statErr)
	}
	if got, _ := f.store.GetByID(context.Background(), item.ID); got != nil {
		t.Fatal("item should still be removed")
	}
}

func TestSearchThenApply(t *testing.T) {
	f := newFixture(t)
	item := f.heldItem(t)
	f.searcher.result = aggregator.Result{Candidates: []aggregator.ScoredCandidate{
		{Candidate: providers.Candidate{Provider: "audible", Title: "Dune (Unabridged)", Author: "F. Herbert", ASIN: "B002V1OF70", Year: "2007"}, Score: 88},
		{Candidate: providers.Candidate{Provider: "openlibrary", Title: "Dune", Author: "Frank Herbert"}, Score: 80},
	}}

	resp, err := f.svc.Search(context.Background(), item.ID, api.SearchRequest{Query: "dune", Author: "herbert"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Candidates) != 2 || resp.Candidates[1].Index != 1 {
		t.Fatalf("unexpected candidates %+v", resp.Candidates)
	}
	if q := f.searcher.queries[0]; q.Title != "dune" || q.Author != "herbert" {
		t.Fatalf("query = %+v", q)
	}
	if stored := testsupport.MustGet(t, f.store, item.ID); stored.Metadata.ASIN != "" || stored.Confidence != 0 {
		t.Fatal("search must not change the item")
	}

	applied, err := f.svc.Apply(context.Background(), item.ID, 0)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	meta := applied.Item.Metadata
	if meta.Title != "Dune (Unabridged)" || meta.Author != "Frank Herbert" || meta.ASIN != "B002V1OF70" {
		t.Fatalf("merged metadata = %+v", meta)
	}
	if applied.Item.Confidence != 88 || applied.Item.MatchSource != "audible" {
		t.Fatalf("confidence=%d source=%s", applied.Item.Confidence, applied.Item.MatchSource)
	}

	if _, err := f.svc.Apply(context.Background(), item.ID, 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("second apply should need a new search, got %v", err)
	}
}

func TestSearchFallsBackToItemMetadata(t *testing.T) {
	f := newFixture(t)
	item := f.heldItem(t)

	if _, err := f.svc.Search(context.Background(), item.ID, api.SearchRequest{ASIN: "b002v1of70"}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	q := f.searcher.queries[0]
	if q.Title != "Dune" || q.Author != "Frank Herbert" || q.ASIN != "B002V1OF70" {
		t.Fatalf("query = %+v", q)
	}
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		status    queue.Status
		stage     queue.Stage
		wantStage queue.Stage
		wantErr   error
	}{
		{"failed organize", queue.StatusError, queue.StageOrganize, queue.StageOrganize, nil},
		{"failed without stage", queue.StatusError, "", queue.StageIdentify, nil},
		{"held", queue.StatusManualIntervention, queue.StageOrganize, queue.StageEnrich, nil},
		{"done", queue.StatusDone, queue.StageOrganize, "", services.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			item := f.heldItem(t)
			item.Status = tt.status
			item.Stage = tt.stage
			item.Confirmed = true
			if err := f.store.Update(context.Background(), item); err != nil {
				t.Fatalf("Update: %v", err)
			}

			got, err := f.svc.Retry(context.Background(), item.ID)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Retry: %v", err)
			}
			if got.Status != string(queue.StatusPending) || got.Stage != string(tt.wantStage) || got.Confirmed {
				t.Fatalf("unexpected item %+v", got)
			}
		})
	}
}

func TestPreviewAndCounters(t *testing.T) {
	f := newFixture(t)
	item := f.heldItem(t)

	plan, err := f.svc.Preview(context.Background(), item.ID, "move")
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	want := filepath.Join(f.cfg.Paths.OutputDir, "Frank Herbert", "Dune")
	if plan.Destination != want || plan.Mode != queue.ModeMove || plan.Eligible {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if stored := testsupport.MustGet(t, f.store, item.ID); stored.Status != queue.StatusManualIntervention {
		t.Fatal("preview changed the item")
	}

	if err := f.svc.Rescan(context.Background()); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	if f.monitor.rescans != 1 {
		t.Fatalf("rescans = %d", f.monitor.rescans)
	}
	if c := f.svc.Counters(); c.TrackedEntries != 3 || c.OpenGroups != 0 {
		t.Fatalf("counters = %+v", c)
	}
	stats, err := f.svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[string(queue.StatusManualIntervention)] != 1 || stats[string(queue.StatusDone)] != 0 {
		t.Fatalf("stats = %v", stats)
	}
}
