package audiobookshelf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"

	"audioshelf/internal/config"
)

func TestScanConfiguredLibrary(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key-123" {
			t.Errorf("unexpected auth header %q", got)
		}
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Audiobookshelf.URL = server.URL + "/"
	cfg.Audiobookshelf.APIKey = "key-123"
	cfg.Audiobookshelf.LibraryID = "lib-books"

	svc := NewConfiguredService(&cfg)
	if _, ok := svc.(*httpService); !ok {
		t.Fatalf("expected httpService, got %T", svc)
	}
	if err := svc.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if want := []string{"POST /api/libraries/lib-books/scan"}; !slices.Equal(calls, want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
}

func TestScanDiscoversBookLibraries(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		if r.URL.Path == "/api/libraries" {
			_, _ = w.Write([]byte(`{"libraries":[{"id":"a","mediaType":"book"},{"id":"p","mediaType":"podcast"},{"id":"b","mediaType":"book"}]}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := NewHTTPService(server.URL, "", "", server.Client())
	if err := svc.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []string{"GET /api/libraries", "POST /api/libraries/a/scan", "POST /api/libraries/b/scan"}
	if !slices.Equal(calls, want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
}

func TestScanReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	svc := NewHTTPService(server.URL, "bad", "lib", server.Client())
	if err := svc.Scan(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestUnconfiguredServiceIsNoop(t *testing.T) {
	cfg := config.Default()
	if err := NewConfiguredService(&cfg).Scan(context.Background()); err != nil {
		t.Fatalf("noop Scan returned %v", err)
	}
}
