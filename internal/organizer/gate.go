package organizer

import (
	"fmt"

	"audioshelf/internal/queue"
)

// decide applies the confidence gate. A user-confirmed item always passes.
// Below the probable threshold the item needs review; with
// require_confirmation set, anything short of automatic waits for the user.
func (o *Organizer) decide(item *queue.Item) (bool, string) {
	if item.Confirmed {
		return true, "confirmed by user"
	}
	probable := o.cfg.Confidence.Probable
	automatic := o.cfg.Confidence.Automatic
	switch {
	case item.Confidence < probable:
		return false, fmt.Sprintf("Confidence %d below threshold %d", item.Confidence, probable)
	case o.cfg.Confidence.RequireConfirmation && item.Confidence < automatic:
		return false, fmt.Sprintf("Awaiting confirmation (confidence %d)", item.Confidence)
	default:
		return true, fmt.Sprintf("Confidence %d", item.Confidence)
	}
}
