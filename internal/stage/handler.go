package stage

import (
	"context"

	"audioshelf/internal/queue"
)

// Handler describes the contract the workflow manager needs from each stage.
// Execute mutates the item in memory; the manager persists it afterwards.
type Handler interface {
	Prepare(context.Context, *queue.Item) error
	Execute(context.Context, *queue.Item) error
	HealthCheck(context.Context) Health
}
