package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPerHourLimiter(t *testing.T) {
	m := NewPerHourLimiter(map[string]int{"linkedin": 20, "twitter": 0})

	assert.True(t, m.Has("linkedin"))
	assert.False(t, m.Has("twitter"))

	// burst of 2 is available immediately, the third token is not
	assert.True(t, m.Allow("linkedin"))
	assert.True(t, m.Allow("linkedin"))
	assert.False(t, m.Allow("linkedin"))
}

func TestWaitIfLimited(t *testing.T) {
	m := NewMultiLimiter()
	require.NoError(t, m.WaitIfLimited(context.Background(), "unknown"))

	var nilLimiter *MultiLimiter
	require.NoError(t, nilLimiter.WaitIfLimited(context.Background(), "linkedin"))

	require.Error(t, m.Wait(context.Background(), "unknown"))
}
