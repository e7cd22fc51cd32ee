package stage

import (
	"context"

	"audioshelf/internal/services"
)

// CheckCancelled returns a cancellation error when ctx is done. Stages call
// it between steps so an ignored item stops before its next write.
func CheckCancelled(ctx context.Context, stageName, operation string) error {
	if err := context.Cause(ctx); err != nil {
		return services.Wrap(services.ErrCancelled, stageName, operation, "Item cancelled", err)
	}
	return nil
}
