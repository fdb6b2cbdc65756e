package dryrun

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/internal/platform"
	"github.com/social-scheduler/pkg/logger"
)

func TestPublish(t *testing.T) {
	p := New(logger.Nop())

	receipt, err := p.Publish(context.Background(), platform.Request{
		OccurrenceID: "occ-7",
		Platform:     models.PlatformLinkedIn,
	})
	require.NoError(t, err)
	assert.Equal(t, "dryrun:occ-7", receipt.ExternalPostID)
}

func TestPublishCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(logger.Nop()).Publish(ctx, platform.Request{OccurrenceID: "occ-7"})
	assert.ErrorIs(t, err, context.Canceled)
}
