package stage

import (
	"context"
	"errors"
	"testing"

	"audioshelf/internal/services"
)

func TestCheckCancelled(t *testing.T) {
	if err := CheckCancelled(context.Background(), "organizer", "stage"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	cause := errors.New("ignored by user")
	cancel(cause)

	err := CheckCancelled(ctx, "organizer", "stage")
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be wrapped, got %v", err)
	}
}

func TestHealthConstructors(t *testing.T) {
	if h := Healthy("identifier"); !h.Ready || h.Name != "identifier" {
		t.Fatalf("unexpected health %+v", h)
	}
	if h := Unhealthy("organizer", "output missing"); h.Ready || h.Detail != "output missing" {
		t.Fatalf("unexpected health %+v", h)
	}
}
