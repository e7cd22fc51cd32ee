package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"audioshelf/internal/notifications"
	"audioshelf/internal/testsupport"
)

type captured struct {
	title, tags, priority, body string
}

func newServer(t *testing.T, status int) (*httptest.Server, chan captured) {
	t.Helper()
	ch := make(chan captured, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ch <- captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

func TestNoopWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := notifications.NewService(cfg)
	if err := svc.Publish(context.Background(), notifications.EventOrganized, notifications.Payload{"title": "Dune"}); err != nil {
		t.Fatalf("noop publish returned %v", err)
	}
}

func TestPublishFormatsEvents(t *testing.T) {
	tests := []struct {
		name         string
		event        notifications.Event
		payload      notifications.Payload
		wantTitle    string
		wantBody     string
		wantTags     string
		wantPriority string
	}{
		{
			name:      "organized",
			event:     notifications.EventOrganized,
			payload:   notifications.Payload{"title": "Dune by Frank Herbert", "destination": "/library/Frank Herbert/Dune"},
			wantTitle: "Audioshelf - Organized",
			wantBody:  "📚 Added to library: Dune by Frank Herbert\nPath: /library/Frank Herbert/Dune",
			wantTags:  "audioshelf,organized",
		},
		{
			name:      "review",
			event:     notifications.EventNeedsReview,
			payload:   notifications.Payload{"title": "Book Title", "reason": "Confidence 0 below 70"},
			wantTitle: "Audioshelf - Review",
			wantBody:  "🔎 Needs review: Book Title\nConfidence 0 below 70",
			wantTags:  "audioshelf,review",
		},
		{
			name:         "error",
			event:        notifications.EventError,
			payload:      notifications.Payload{"reason": "disk full"},
			wantTitle:    "Audioshelf - Error",
			wantBody:     "❌ Failed: Unknown book\ndisk full",
			wantTags:     "audioshelf,error",
			wantPriority: "high",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, ch := newServer(t, http.StatusOK)
			cfg := testsupport.NewConfig(t)
			cfg.Notifications.NtfyTopic = srv.URL
			svc := notifications.NewService(cfg)

			if err := svc.Publish(context.Background(), tt.event, tt.payload); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			got := <-ch
			if got.title != tt.wantTitle || got.body != tt.wantBody || got.tags != tt.wantTags || got.priority != tt.wantPriority {
				t.Fatalf("unexpected request %+v", got)
			}
		})
	}
}

func TestPublishRespectsToggles(t *testing.T) {
	srv, ch := newServer(t, http.StatusOK)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.Organized = false
	svc := notifications.NewService(cfg)

	if err := svc.Publish(context.Background(), notifications.EventOrganized, nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case got := <-ch:
		t.Fatalf("disabled event was sent: %+v", got)
	default:
	}
}

func TestPublishSurfacesHTTPErrors(t *testing.T) {
	srv, _ := newServer(t, http.StatusForbidden)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = srv.URL
	err := notifications.NewService(cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
