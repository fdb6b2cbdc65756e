package publisher

import (
	"errors"
	"fmt"

	"github.com/social-scheduler/internal/models"
)

// ErrInvalidTransition is returned when an occurrence cannot move between two states
var ErrInvalidTransition = errors.New("invalid state transition")

var validTransitions = map[models.OccurrenceStatus][]models.OccurrenceStatus{
	models.OccurrenceStatusDraft: {
		models.OccurrenceStatusQueued,    // Submitted to a bulk job
		models.OccurrenceStatusCancelled, // Pattern deleted or regenerated
	},
	models.OccurrenceStatusQueued: {
		models.OccurrenceStatusPublishing, // Picked up by a worker
		models.OccurrenceStatusDraft,      // Released by a stopped job
	},
	models.OccurrenceStatusPublishing: {
		models.OccurrenceStatusPublished, // Platform accepted the post
		models.OccurrenceStatusFailed,    // Attempt error or timeout
	},
	models.OccurrenceStatusFailed: {
		models.OccurrenceStatusRetrying,  // Backoff scheduled
		models.OccurrenceStatusCancelled, // Permanent error or attempts exhausted
	},
	models.OccurrenceStatusRetrying: {
		models.OccurrenceStatusPublishing, // Backoff elapsed
		models.OccurrenceStatusCancelled,  // Job stopped during backoff
	},
	// Terminal states
	models.OccurrenceStatusPublished: {},
	models.OccurrenceStatusCancelled: {},
}

// ValidateTransition checks if an occurrence state transition is valid
func ValidateTransition(from, to models.OccurrenceStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("%w: unknown source state %q", ErrInvalidTransition, from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
}

// CanQueue checks if an occurrence may be submitted to a bulk job
func CanQueue(o *models.Occurrence) bool {
	return ValidateTransition(o.Status, models.OccurrenceStatusQueued) == nil
}
