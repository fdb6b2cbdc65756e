package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/social-scheduler/internal/content"
	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/internal/platform"
	"github.com/social-scheduler/pkg/logger"
)

func request() platform.Request {
	return platform.Request{
		OccurrenceID: "occ-1",
		AccountID:    "acct",
		Platform:     models.PlatformTwitter,
		ScheduledFor: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		AssignedTime: models.NewTimeOfDay(9, 0),
		Attempt:      2,
		Payload:      content.Payload{Ref: "hello", Data: models.JSON{"sequence": 3}},
	}
}

func TestPublishDeliversMessage(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "occ-1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"tw-42"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, Token: "secret"}, logger.Nop())
	receipt, err := c.Publish(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, "tw-42", receipt.ExternalPostID)
	assert.Equal(t, "occ-1", got.OccurrenceID)
	assert.Equal(t, models.PlatformTwitter, got.Platform)
	assert.Equal(t, models.NewTimeOfDay(9, 0), got.AssignedTime)
	assert.Equal(t, 2, got.Attempt)
	assert.Equal(t, "hello", got.PayloadRef)
}

func TestPublishWithoutResponseBodyUsesOccurrenceID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	receipt, err := NewClient(Config{URL: srv.URL}, logger.Nop()).Publish(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "occ-1", receipt.ExternalPostID)
}

func TestPublishClassifiesStatus(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusUnauthorized, false},
		{http.StatusUnprocessableEntity, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewClient(Config{URL: srv.URL}, logger.Nop()).Publish(context.Background(), request())
			require.Error(t, err)
			assert.Equal(t, tt.retryable, platform.Retryable(err))
		})
	}
}

func TestPublishUnreachableIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(Config{URL: url}, logger.Nop()).Publish(context.Background(), request())
	assert.ErrorIs(t, err, platform.ErrPublishFailure)
}
