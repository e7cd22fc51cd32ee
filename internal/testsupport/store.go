package testsupport

import (
	"context"
	"testing"

	"audioshelf/internal/config"
	"audioshelf/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewItem inserts an item for the given source directory and files.
func NewItem(t testing.TB, store *queue.Store, sourcePath string, files ...string) *queue.Item {
	t.Helper()

	item := queue.NewItem(sourcePath, files)
	if err := store.Create(context.Background(), item); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return item
}

// MustGet fetches an item that must exist.
func MustGet(t testing.TB, store *queue.Store, id string) *queue.Item {
	t.Helper()

	item, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("store.GetByID: %v", err)
	}
	if item == nil {
		t.Fatalf("item %s not found", id)
	}
	return item
}
