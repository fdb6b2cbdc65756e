package publisher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/social-scheduler/internal/models"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to models.OccurrenceStatus
		ok       bool
	}{
		{models.OccurrenceStatusDraft, models.OccurrenceStatusQueued, true},
		{models.OccurrenceStatusQueued, models.OccurrenceStatusPublishing, true},
		{models.OccurrenceStatusQueued, models.OccurrenceStatusDraft, true},
		{models.OccurrenceStatusPublishing, models.OccurrenceStatusPublished, true},
		{models.OccurrenceStatusPublishing, models.OccurrenceStatusFailed, true},
		{models.OccurrenceStatusFailed, models.OccurrenceStatusRetrying, true},
		{models.OccurrenceStatusFailed, models.OccurrenceStatusCancelled, true},
		{models.OccurrenceStatusRetrying, models.OccurrenceStatusPublishing, true},
		{models.OccurrenceStatusDraft, models.OccurrenceStatusPublished, false},
		{models.OccurrenceStatusQueued, models.OccurrenceStatusPublished, false},
		{models.OccurrenceStatusPublished, models.OccurrenceStatusQueued, false},
		{models.OccurrenceStatusCancelled, models.OccurrenceStatusDraft, false},
		{"bogus", models.OccurrenceStatusDraft, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

func TestCanQueue(t *testing.T) {
	assert.True(t, CanQueue(&models.Occurrence{Status: models.OccurrenceStatusDraft}))
	for _, s := range []models.OccurrenceStatus{
		models.OccurrenceStatusQueued,
		models.OccurrenceStatusPublished,
		models.OccurrenceStatusCancelled,
	} {
		assert.False(t, CanQueue(&models.Occurrence{Status: s}), s)
	}
}

func TestBackoffDelay(t *testing.T) {
	opts := Options{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}

	assert.Equal(t, 100*time.Millisecond, backoffDelay(opts, 1, 0))
	assert.Equal(t, 200*time.Millisecond, backoffDelay(opts, 2, 0))
	assert.Equal(t, 400*time.Millisecond, backoffDelay(opts, 3, 0))
	assert.Equal(t, time.Second, backoffDelay(opts, 10, 0))

	opts.RetryJitter = 0.5
	assert.Equal(t, 150*time.Millisecond, backoffDelay(opts, 1, 1))
	assert.Equal(t, 50*time.Millisecond, backoffDelay(opts, 1, -1))
	assert.Equal(t, time.Second, backoffDelay(opts, 10, 1))
}
