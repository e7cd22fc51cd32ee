package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"audioshelf/internal/config"
)

const userAgent = "audioshelf/1.0"

// Event names a notification kind.
type Event string

const (
	EventOrganized   Event = "organized"
	EventNeedsReview Event = "needs_review"
	EventError       Event = "error"
	EventTest        Event = "test"
)

// Payload carries event fields such as "title", "destination", "reason".
type Payload map[string]string

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op without a topic.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventOrganized:   cfg.Notifications.Organized,
			EventNeedsReview: cfg.Notifications.Review,
			EventError:       cfg.Notifications.Errors,
			EventTest:        true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, p Payload) (message, bool) {
	title := strings.TrimSpace(p["title"])
	if title == "" {
		title = "Unknown book"
	}
	switch event {
	case EventOrganized:
		body := "📚 Added to library: " + title
		if dest := strings.TrimSpace(p["destination"]); dest != "" {
			body += "\nPath: " + dest
		}
		return message{title: "Audioshelf - Organized", body: body, tags: []string{"audioshelf", "organized"}}, true
	case EventNeedsReview:
		body := "🔎 Needs review: " + title
		if reason := strings.TrimSpace(p["reason"]); reason != "" {
			body += "\n" + reason
		}
		return message{title: "Audioshelf - Review", body: body, tags: []string{"audioshelf", "review"}}, true
	case EventError:
		body := "❌ Failed: " + title
		if reason := strings.TrimSpace(p["reason"]); reason != "" {
			body += "\n" + reason
		}
		return message{title: "Audioshelf - Error", body: body, tags: []string{"audioshelf", "error"}, priority: "high"}, true
	case EventTest:
		return message{title: "Audioshelf - Test", body: "🧪 Notification test", tags: []string{"audioshelf", "test"}, priority: "low"}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
