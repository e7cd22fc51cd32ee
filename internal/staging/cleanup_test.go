package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"audioshelf/internal/logging"
)

func mkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func TestCleanInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanOrphanedKeepsActiveAndForeignDirs(t *testing.T) {
	root := t.TempDir()
	active := Dir(root, "0001")
	orphan := Dir(root, "0002")
	foreign := filepath.Join(root, "keep-me")
	for _, dir := range []string{active, orphan, foreign} {
		mkdir(t, dir)
	}

	result := CleanOrphaned(context.Background(), root, map[string]struct{}{"0001": {}}, nil)
	if len(result.Removed) != 1 || result.Removed[0] != orphan {
		t.Fatalf("removed = %v", result.Removed)
	}
	for _, dir := range []string{active, foreign} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("%s should remain: %v", dir, err)
		}
	}
}

func TestCleanStaleRemovesOldItemDirs(t *testing.T) {
	root := t.TempDir()
	old := Dir(root, "old")
	recent := Dir(root, "recent")
	mkdir(t, old)
	mkdir(t, recent)
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	result := CleanStale(context.Background(), root, time.Hour, logging.NewNop())
	if len(result.Removed) != 1 || result.Removed[0] != old {
		t.Fatalf("removed = %v", result.Removed)
	}
	if _, err := os.Stat(recent); err != nil {
		t.Fatalf("recent dir should remain: %v", err)
	}
}

func TestItemID(t *testing.T) {
	if id, ok := ItemID("item-abc"); !ok || id != "abc" {
		t.Fatalf("ItemID = %q, %v", id, ok)
	}
	if _, ok := ItemID("item-"); ok {
		t.Fatal("empty id accepted")
	}
	if _, ok := ItemID("other"); ok {
		t.Fatal("foreign name accepted")
	}
}
