package platform

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/social-scheduler/internal/models"
)

func fixed(id string) Publisher {
	return PublisherFunc(func(ctx context.Context, req Request) (Receipt, error) {
		return Receipt{ExternalPostID: id}, nil
	})
}

func TestRouterDispatch(t *testing.T) {
	ctx := context.Background()
	r := NewRouter()
	r.Register(models.PlatformTwitter, fixed("tw"))
	r.Register(models.PlatformLinkedIn, fixed("li"))
	assert.Equal(t, []models.Platform{models.PlatformLinkedIn, models.PlatformTwitter}, r.Platforms())

	got, err := r.Publish(ctx, Request{Platform: models.PlatformTwitter})
	require.NoError(t, err)
	assert.Equal(t, "tw", got.ExternalPostID)

	_, err = r.Publish(ctx, Request{Platform: models.PlatformFacebook})
	assert.ErrorIs(t, err, ErrPublishRejected)
	assert.False(t, Retryable(err))

	r.SetFallback(fixed("fb"))
	got, err = r.Publish(ctx, Request{Platform: models.PlatformFacebook})
	require.NoError(t, err)
	assert.Equal(t, "fb", got.ExternalPostID)
	assert.Len(t, r.Platforms(), 2)
}

func TestStatusError(t *testing.T) {
	assert.NoError(t, StatusError(http.StatusCreated, ""))
	assert.ErrorIs(t, StatusError(http.StatusTooManyRequests, ""), ErrPublishFailure)
	assert.ErrorIs(t, StatusError(http.StatusBadGateway, ""), ErrPublishFailure)
	assert.ErrorIs(t, StatusError(http.StatusForbidden, ""), ErrPublishRejected)
	assert.True(t, Retryable(errors.New("connection reset")))
	assert.False(t, Retryable(nil))
}
