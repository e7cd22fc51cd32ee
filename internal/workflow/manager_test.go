package workflow_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"audioshelf/internal/config"
	"audioshelf/internal/notifications"
	"audioshelf/internal/queue"
	"audioshelf/internal/services"
	"audioshelf/internal/stage"
	"audioshelf/internal/testsupport"
	"audioshelf/internal/workflow"
)

type stubStage struct {
	name        string
	mu          sync.Mutex
	calls       []string
	executeHook func(context.Context, *queue.Item) error
}

func newStubStage(name string) *stubStage {
	return &stubStage{name: name}
}

func (s *stubStage) Prepare(context.Context, *queue.Item) error { return nil }

func (s *stubStage) Execute(ctx context.Context, item *queue.Item) error {
	s.mu.Lock()
	s.calls = append(s.calls, item.ID)
	hook := s.executeHook
	s.mu.Unlock()
	if hook != nil {
		return hook(ctx, item)
	}
	return nil
}

func (s *stubStage) HealthCheck(context.Context) stage.Health { return stage.Healthy(s.name) }

func (s *stubStage) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) snapshot() []notifications.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Event(nil), r.events...)
}

type harness struct {
	cfg      *config.Config
	store    *queue.Store
	mgr      *workflow.Manager
	notifier *recordingNotifier
	identify *stubStage
	enrich   *stubStage
	organize *stubStage
}

func newHarness(t *testing.T, workers int) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.Workers = workers
	cfg.Workflow.QueuePollInterval = 0
	h := &harness{
		cfg:      cfg,
		store:    testsupport.MustOpenStore(t, cfg),
		notifier: &recordingNotifier{},
		identify: newStubStage("identify"),
		enrich:   newStubStage("enrich"),
		organize: newStubStage("organize"),
	}
	h.organize.executeHook = func(_ context.Context, item *queue.Item) error {
		item.SetDone("/library/" + item.ID)
		return nil
	}
	h.mgr = workflow.NewManagerWithNotifier(cfg, h.store, nil, h.notifier)
	h.mgr.ConfigureStages(workflow.StageSet{Identifier: h.identify, Enricher: h.enrich, Organizer: h.organize})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	if err := h.mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		h.mgr.Stop()
		cancel()
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitForStatus(t *testing.T, store *queue.Store, id string, status queue.Status) *queue.Item {
	t.Helper()
	var item *queue.Item
	waitFor(t, "status "+string(status), func() bool {
		item = testsupport.MustGet(t, store, id)
		return item.Status == status
	})
	return item
}

func TestManagerRunsStageChain(t *testing.T) {
	h := newHarness(t, 1)
	item := testsupport.NewItem(t, h.store, "/in/Dune", "/in/Dune/dune.m4b")
	h.start(t)

	done := waitForStatus(t, h.store, item.ID, queue.StatusDone)
	if done.Stage != queue.StageOrganize || done.DestinationPath != "/library/"+item.ID {
		t.Fatalf("unexpected final item: stage=%s dest=%s", done.Stage, done.DestinationPath)
	}
	if done.LastHeartbeat != nil {
		t.Fatal("heartbeat should be cleared once done")
	}
	for _, s := range []*stubStage{h.identify, h.enrich, h.organize} {
		if s.callCount() != 1 {
			t.Fatalf("%s ran %d times", s.name, s.callCount())
		}
	}
}

func TestTransientFailureMarksError(t *testing.T) {
	h := newHarness(t, 1)
	h.enrich.executeHook = func(context.Context, *queue.Item) error {
		return services.Wrap(services.ErrTransient, "enrich", "search", "Providers unreachable", nil)
	}
	item := testsupport.NewItem(t, h.store, "/in/Dune", "/in/Dune/dune.m4b")
	h.start(t)

	failed := waitForStatus(t, h.store, item.ID, queue.StatusError)
	if failed.Reason != "Providers unreachable" || failed.Stage != queue.StageEnrich {
		t.Fatalf("reason=%q stage=%s", failed.Reason, failed.Stage)
	}
	if h.organize.callCount() != 0 {
		t.Fatal("organizer must not run after a failure")
	}
	waitFor(t, "error notification", func() bool {
		events := h.notifier.snapshot()
		return len(events) == 1 && events[0] == notifications.EventError
	})
}

func TestValidationFailureNeedsReview(t *testing.T) {
	h := newHarness(t, 1)
	h.identify.executeHook = func(context.Context, *queue.Item) error {
		return services.Wrap(services.ErrValidation, "identify", "files", "No audio files in group", nil)
	}
	item := testsupport.NewItem(t, h.store, "/in/Empty", "/in/Empty/readme.pdf")
	h.start(t)

	held := waitForStatus(t, h.store, item.ID, queue.StatusManualIntervention)
	if held.Reason != "No audio files in group" {
		t.Fatalf("reason = %q", held.Reason)
	}
	waitFor(t, "review notification", func() bool {
		events := h.notifier.snapshot()
		return len(events) == 1 && events[0] == notifications.EventNeedsReview
	})
}

func TestHeldItemStopsChain(t *testing.T) {
	h := newHarness(t, 1)
	h.enrich.executeHook = func(_ context.Context, item *queue.Item) error {
		item.Hold("Needs a look")
		return nil
	}
	item := testsupport.NewItem(t, h.store, "/in/Dune", "/in/Dune/dune.m4b")
	h.start(t)

	waitForStatus(t, h.store, item.ID, queue.StatusManualIntervention)
	if h.organize.callCount() != 0 {
		t.Fatal("organizer ran for a held item")
	}
}

func TestPendingItemResumesAtRecordedStage(t *testing.T) {
	h := newHarness(t, 1)
	item := testsupport.NewItem(t, h.store, "/in/Dune", "/in/Dune/dune.m4b")
	item.Stage = queue.StageOrganize
	item.Confirmed = true
	if err := h.store.Update(context.Background(), item); err != nil {
		t.Fatalf("Update: %v", err)
	}
	h.start(t)

	waitForStatus(t, h.store, item.ID, queue.StatusDone)
	if h.identify.callCount() != 0 || h.enrich.callCount() != 0 {
		t.Fatal("earlier stages should be skipped")
	}
}

func TestStartRestoresInterruptedItems(t *testing.T) {
	h := newHarness(t, 1)
	item := testsupport.NewItem(t, h.store, "/in/Dune", "/in/Dune/dune.m4b")
	item.Begin(queue.StageEnrich, "Searching")
	if err := h.store.Update(context.Background(), item); err != nil {
		t.Fatalf("Update: %v", err)
	}
	orphan := filepath.Join(h.cfg.Paths.StagingDir, "item-crashed")
	testsupport.WriteFile(t, filepath.Join(orphan, "part.mp3"), 4)

	h.start(t)

	waitForStatus(t, h.store, item.ID, queue.StatusDone)
	if h.identify.callCount() != 0 || h.enrich.callCount() != 1 {
		t.Fatalf("identify=%d enrich=%d", h.identify.callCount(), h.enrich.callCount())
	}
	waitFor(t, "orphaned staging removal", func() bool {
		_, err := os.Stat(orphan)
		return os.IsNotExist(err)
	})
}

func TestShutdownAfterOrganizeKeepsDone(t *testing.T) {
	h := newHarness(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.organize.executeHook = func(_ context.Context, item *queue.Item) error {
		item.SetDone("/library/Frank Herbert/Dune")
		cancel()
		return nil
	}
	item := testsupport.NewItem(t, h.store, "/in/Dune", "/in/Dune/dune.m4b")
	if err := h.mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "organize", func() bool { return h.organize.callCount() == 1 })
	h.mgr.Stop()

	got := testsupport.MustGet(t, h.store, item.ID)
	if got.Status != queue.StatusDone || got.DestinationPath != "/library/Frank Herbert/Dune" {
		t.Fatalf("finished item not recorded: status=%s dest=%s", got.Status, got.DestinationPath)
	}
}

func TestShutdownMidStageLeavesProcessing(t *testing.T) {
	h := newHarness(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.enrich.executeHook = func(stageCtx context.Context, _ *queue.Item) error {
		cancel()
		<-stageCtx.Done()
		return stage.CheckCancelled(stageCtx, "enricher", "search providers")
	}
	item := testsupport.NewItem(t, h.store, "/in/Dune", "/in/Dune/dune.m4b")
	if err := h.mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "enrich", func() bool { return h.enrich.callCount() == 1 })
	h.mgr.Stop()

	got := testsupport.MustGet(t, h.store, item.ID)
	if got.Status != queue.StatusProcessing || got.Stage != queue.StageEnrich {
		t.Fatalf("interrupted item should stay in processing/enrich, got %s/%s", got.Status, got.Stage)
	}
	if h.organize.callCount() != 0 {
		t.Fatal("organize should not run after shutdown")
	}
}

func TestCancelRemovedItemMidStage(t *testing.T) {
	h := newHarness(t, 1)
	entered := make(chan struct{})
	h.organize.executeHook = func(ctx context.Context, _ *queue.Item) error {
		close(entered)
		<-ctx.Done()
		return stage.CheckCancelled(ctx, "organizer", "stage files")
	}
	item := testsupport.NewItem(t, h.store, "/in/Dune", "/in/Dune/dune.m4b")
	h.start(t)

	<-entered
	if !h.mgr.Active(item.ID) {
		t.Fatal("item should be owned by a worker")
	}
	if _, err := h.store.Remove(context.Background(), item.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !h.mgr.Cancel(item.ID, workflow.ErrItemRemoved) {
		t.Fatal("Cancel should report an in-flight item")
	}
	waitFor(t, "release", func() bool { return !h.mgr.Active(item.ID) })

	got, err := h.store.GetByID(context.Background(), item.ID)
	if err != nil || got != nil {
		t.Fatalf("removed item reappeared: %+v %v", got, err)
	}
	if events := h.notifier.snapshot(); len(events) != 0 {
		t.Fatalf("cancelled item should not notify: %v", events)
	}
}

func TestReservedItemIsNotClaimed(t *testing.T) {
	h := newHarness(t, 1)
	item := testsupport.NewItem(t, h.store, "/in/Dune", "/in/Dune/dune.m4b")
	release, ok := h.mgr.Reserve(item.ID)
	if !ok {
		t.Fatal("Reserve on an idle item should succeed")
	}
	if _, again := h.mgr.Reserve(item.ID); again {
		t.Fatal("a second reservation should be refused")
	}
	h.start(t)

	for i := 0; i < 5; i++ {
		h.mgr.Wake()
		time.Sleep(20 * time.Millisecond)
	}
	if h.identify.callCount() != 0 || h.mgr.Active(item.ID) {
		t.Fatal("worker claimed a reserved item")
	}

	release()
	h.mgr.Wake()
	waitForStatus(t, h.store, item.ID, queue.StatusDone)
	waitFor(t, "release", func() bool { return !h.mgr.Active(item.ID) })
	if _, ok := h.mgr.Reserve(item.ID); !ok {
		t.Fatal("Reserve should succeed once the item is released")
	}
}

func TestItemsHaveSingleOwner(t *testing.T) {
	h := newHarness(t, 3)
	var mu sync.Mutex
	running := map[string]int{}
	overlap := false
	h.enrich.executeHook = func(_ context.Context, item *queue.Item) error {
		mu.Lock()
		running[item.ID]++
		if running[item.ID] > 1 {
			overlap = true
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		running[item.ID]--
		mu.Unlock()
		return nil
	}
	var ids []string
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		ids = append(ids, testsupport.NewItem(t, h.store, "/in/"+name, "/in/"+name+"/book.m4b").ID)
	}
	h.start(t)

	for _, id := range ids {
		waitForStatus(t, h.store, id, queue.StatusDone)
	}
	mu.Lock()
	defer mu.Unlock()
	if overlap {
		t.Fatal("an item was processed by two workers at once")
	}
	if h.enrich.callCount() != len(ids) {
		t.Fatalf("enrich ran %d times for %d items", h.enrich.callCount(), len(ids))
	}
}

func TestStatusReportsStageHealth(t *testing.T) {
	h := newHarness(t, 2)
	summary := h.mgr.Status(context.Background())
	if summary.Running || summary.Workers != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	for _, name := range []string{"identify", "enrich", "organize"} {
		if !summary.StageHealth[name].Ready {
			t.Fatalf("stage %s not reported ready", name)
		}
	}
	if summary.QueueStats[queue.StatusPending] != 0 {
		t.Fatalf("unexpected stats %v", summary.QueueStats)
	}
}
