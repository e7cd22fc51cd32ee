package organizer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/sys/unix"

	"audioshelf/internal/audiotags"
	"audioshelf/internal/config"
	"audioshelf/internal/notifications"
	"audioshelf/internal/queue"
	"audioshelf/internal/services"
	"audioshelf/internal/sidecar"
	"audioshelf/internal/testsupport"
)

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

type countingLibrary struct{ scans int }

func (c *countingLibrary) Scan(context.Context) error {
	c.scans++
	return nil
}

type fixture struct {
	cfg      *config.Config
	org      *Organizer
	notifier *recordingNotifier
	library  *countingLibrary
	tagged   []string
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	f := &fixture{cfg: cfg, notifier: &recordingNotifier{}, library: &countingLibrary{}}
	f.org = NewOrganizerWithDependencies(cfg, nil, f.notifier, f.library)
	f.org.ops.chown = func(string, int, int) error { return nil }
	f.org.writeTags = func(path string, _ audiotags.Tags) error {
		f.tagged = append(f.tagged, filepath.Base(path))
		return nil
	}
	return f
}

func (f *fixture) book(t *testing.T, confidence int, names ...string) *queue.Item {
	t.Helper()
	dir := filepath.Join(f.cfg.Paths.InputDir, "Dune - Frank Herbert")
	var files []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		testsupport.WriteFile(t, path, 1024)
		files = append(files, path)
	}
	item := queue.NewItem(dir, files)
	item.ID = "0190-test"
	item.Confidence = confidence
	item.Metadata.Set(queue.FieldTitle, "Dune", queue.SourceTag)
	item.Metadata.Set(queue.FieldAuthor, "Frank Herbert", queue.SourceTag)
	item.Metadata.Set(queue.FieldYear, "1965", queue.SourceProvider)
	item.Metadata.Set(queue.FieldASIN, "B002V1OF70", queue.SourceProvider)
	item.Metadata.Set(queue.FieldISBN, "9780441013593", queue.SourceProvider)
	item.Begin(queue.StageOrganize, "")
	return item
}

func TestDestination(t *testing.T) {
	set := func(title, author, series string) queue.Metadata {
		var m queue.Metadata
		m.Set(queue.FieldTitle, title, queue.SourceTag)
		m.Set(queue.FieldAuthor, author, queue.SourceTag)
		m.Set(queue.FieldSeries, series, queue.SourceTag)
		return m
	}
	tests := []struct {
		name string
		meta queue.Metadata
		want string
	}{
		{"plain", set("Dune", "Frank Herbert", ""), "/out/Frank Herbert/Dune"},
		{"series", set("Dune Messiah", "Frank Herbert", "Dune"), "/out/Frank Herbert/Dune/Dune Messiah"},
		{"unsafe", set("What/If: Again?", "A. Author", ""), "/out/A. Author/What-If - Again"},
		{"empty", set("", "", ""), "/out/Unknown Author/Unknown Title"},
		{"dots", set("..", "...", ""), "/out/Unknown Author/Unknown Title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Destination("/out", tt.meta); got != tt.want {
				t.Fatalf("Destination = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTargetNames(t *testing.T) {
	moves := targetNames("Dune", []string{"/in/01.mp3", "/in/02.mp3", "/in/cover.JPG", "/in/notes.pdf"})
	want := []string{"Dune - 01.mp3", "Dune - 02.mp3", "cover.JPG", "notes.pdf"}
	for i, m := range moves {
		if m.Target != want[i] {
			t.Fatalf("target[%d] = %q, want %q", i, m.Target, want[i])
		}
	}
	single := targetNames("Dune", []string{"/in/book.M4B"})
	if single[0].Target != "Dune.m4b" {
		t.Fatalf("single target = %q", single[0].Target)
	}
}

func TestLowConfidenceRoutesToReview(t *testing.T) {
	f := newFixture(t)
	item := f.book(t, 0, "book.m4b")

	if err := f.org.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if item.Status != queue.StatusManualIntervention || !strings.Contains(item.Reason, "below threshold 70") {
		t.Fatalf("status=%s reason=%q", item.Status, item.Reason)
	}
	if len(f.notifier.events) != 1 || f.notifier.events[0] != notifications.EventNeedsReview {
		t.Fatalf("events = %v", f.notifier.events)
	}
	if _, err := os.Stat(Destination(f.cfg.Paths.OutputDir, item.Metadata)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("nothing should be written: %v", err)
	}
}

func TestRequireConfirmationHoldsMiddleBand(t *testing.T) {
	f := newFixture(t)
	f.cfg.Confidence.RequireConfirmation = true
	item := f.book(t, 80, "book.m4b")

	if err := f.org.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if item.Status != queue.StatusManualIntervention || !strings.HasPrefix(item.Reason, "Awaiting confirmation") {
		t.Fatalf("status=%s reason=%q", item.Status, item.Reason)
	}

	item.Confirmed = true
	item.Begin(queue.StageOrganize, "")
	if err := f.org.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute confirmed: %v", err)
	}
	if item.Status != queue.StatusDone {
		t.Fatalf("confirmed item status = %s", item.Status)
	}
}

func TestMoveModeOrganizesAndRemovesSources(t *testing.T) {
	f := newFixture(t, testsupport.WithMode(config.ModeMove))
	item := f.book(t, 100, "02.mp3", "01.mp3")
	sourceDir := item.SourcePath

	if err := f.org.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	dest := filepath.Join(f.cfg.Paths.OutputDir, "Frank Herbert", "Dune")
	if item.Status != queue.StatusDone || item.DestinationPath != dest {
		t.Fatalf("status=%s dest=%q", item.Status, item.DestinationPath)
	}
	for _, name := range []string{"Dune - 01.mp3", "Dune - 02.mp3", sidecar.FileName} {
		if _, err := os.Stat(filepath.Join(dest, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	if len(f.tagged) != 2 {
		t.Fatalf("tagged = %v", f.tagged)
	}
	if _, err := os.Stat(sourceDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("source dir should be removed in move mode: %v", err)
	}
	if _, err := os.Stat(f.cfg.Paths.InputDir); err != nil {
		t.Fatalf("input root must survive: %v", err)
	}
	entries, _ := os.ReadDir(f.cfg.Paths.StagingDir)
	if len(entries) != 0 {
		t.Fatalf("staging not empty: %v", entries)
	}
	if f.library.scans != 1 {
		t.Fatalf("library scans = %d", f.library.scans)
	}

	doc, err := sidecar.Read(dest)
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	back := doc.Metadata()
	for _, field := range []string{queue.FieldTitle, queue.FieldAuthor, queue.FieldYear, queue.FieldISBN, queue.FieldASIN} {
		if back.Get(field) != item.Metadata.Get(field) {
			t.Errorf("sidecar %s = %q, want %q", field, back.Get(field), item.Metadata.Get(field))
		}
	}
}

func TestCopyModeKeepsSources(t *testing.T) {
	f := newFixture(t, testsupport.WithMode(config.ModeCopy))
	item := f.book(t, 95, "book.m4b")

	if err := f.org.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if item.Status != queue.StatusDone {
		t.Fatalf("status = %s", item.Status)
	}
	if _, err := os.Stat(item.Files[0]); err != nil {
		t.Fatalf("copy mode must keep the source: %v", err)
	}
	if _, err := os.Stat(filepath.Join(item.DestinationPath, "Dune.m4b")); err != nil {
		t.Fatalf("organized file missing: %v", err)
	}
}

func TestDiskFullDuringRelocationLeavesSourceIntact(t *testing.T) {
	f := newFixture(t, testsupport.WithMode(config.ModeMove))
	item := f.book(t, 100, "01.mp3", "02.mp3")
	before := make(map[string][]byte)
	for _, path := range item.Files {
		before[path] = testsupport.ReadFile(t, path)
	}
	f.org.ops.rename = func(src, dst string) error {
		return &os.LinkError{Op: "rename", Old: src, New: dst, Err: unix.ENOSPC}
	}

	err := f.org.Execute(context.Background(), item)
	if err == nil {
		t.Fatal("expected relocation failure")
	}
	if !errors.Is(err, unix.ENOSPC) || services.FailureStatus(err) != queue.StatusError {
		t.Fatalf("unexpected error classification: %v", err)
	}
	if item.Status == queue.StatusDone {
		t.Fatal("failed organize must never be done")
	}
	for path, data := range before {
		if got := testsupport.ReadFile(t, path); string(got) != string(data) {
			t.Fatalf("source %s changed", path)
		}
	}
	if _, err := os.Stat(filepath.Join(f.cfg.Paths.OutputDir, "Frank Herbert", "Dune")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("destination should not exist: %v", err)
	}
	entries, _ := os.ReadDir(f.cfg.Paths.StagingDir)
	if len(entries) != 0 {
		t.Fatalf("staging should be discarded: %v", entries)
	}
}

func TestInsufficientFreeSpace(t *testing.T) {
	f := newFixture(t)
	f.org.ops.freeBytes = func(string) (uint64, error) { return 10, nil }
	item := f.book(t, 100, "book.m4b")

	err := f.org.Execute(context.Background(), item)
	if err == nil || !strings.Contains(err.Error(), "Not enough free space") {
		t.Fatalf("expected free space error, got %v", err)
	}
	if _, statErr := os.Stat(item.Files[0]); statErr != nil {
		t.Fatalf("source touched: %v", statErr)
	}
}

func TestDryRunHoldsWithoutWriting(t *testing.T) {
	f := newFixture(t, testsupport.WithDryRun(true))
	item := f.book(t, 100, "book.m4b")

	if err := f.org.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if item.Status != queue.StatusManualIntervention || !strings.HasPrefix(item.Reason, "Dry run") {
		t.Fatalf("status=%s reason=%q", item.Status, item.Reason)
	}
	entries, _ := os.ReadDir(f.cfg.Paths.StagingDir)
	if len(entries) != 0 {
		t.Fatalf("dry run wrote staging: %v", entries)
	}
}

func TestExistingDestinationConflicts(t *testing.T) {
	f := newFixture(t)
	item := f.book(t, 100, "book.m4b")
	testsupport.WriteFile(t, filepath.Join(f.cfg.Paths.OutputDir, "Frank Herbert", "Dune", "old.m4b"), 8)

	err := f.org.Execute(context.Background(), item)
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	f.cfg.Library.OverwriteExisting = true
	if err := f.org.Execute(context.Background(), item); err != nil {
		t.Fatalf("overwrite Execute: %v", err)
	}
	if _, err := os.Stat(filepath.Join(item.DestinationPath, "old.m4b")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("replaced book should be gone: %v", err)
	}
}

func TestCoverArtIsBestEffort(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/good.png" {
			_, _ = w.Write(png)
			return
		}
		_, _ = w.Write([]byte("<html>not found</html>"))
	}))
	defer server.Close()

	f := newFixture(t, testsupport.WithMode(config.ModeCopy))
	item := f.book(t, 100, "book.m4b")
	item.Metadata.Set(queue.FieldCoverURL, server.URL+"/good.png", queue.SourceProvider)
	if err := f.org.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := os.Stat(filepath.Join(item.DestinationPath, "cover.png")); err != nil {
		t.Fatalf("cover missing: %v", err)
	}

	g := newFixture(t, testsupport.WithMode(config.ModeCopy))
	other := g.book(t, 100, "book.m4b")
	other.Metadata.Set(queue.FieldCoverURL, server.URL+"/bad", queue.SourceProvider)
	if err := g.org.Execute(context.Background(), other); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if other.Status != queue.StatusDone || !strings.Contains(other.ProgressMessage, "cover art unavailable") {
		t.Fatalf("status=%s progress=%q", other.Status, other.ProgressMessage)
	}
}

func TestPreviewDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	item := f.book(t, 10, "01.mp3", "02.mp3")

	plan, err := f.org.Preview(item, config.ModeCopy)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if plan.Mode != config.ModeCopy || plan.Eligible || plan.TotalBytes != 2048 || len(plan.Files) != 2 {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if item.Mode == config.ModeCopy {
		t.Fatal("preview changed the item mode")
	}
	if item.Status != queue.StatusProcessing {
		t.Fatalf("preview changed status to %s", item.Status)
	}
}
