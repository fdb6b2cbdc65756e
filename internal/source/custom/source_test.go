package custom

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/social-scheduler/internal/config"
	"github.com/social-scheduler/internal/source"
	"github.com/social-scheduler/pkg/logger"
)

func TestFetchKeepsConfigOrder(t *testing.T) {
	s := New(config.FeedsConfig{Custom: []string{"first", "", "second"}}, logger.Nop())

	m := source.NewManager()
	m.Register(s)
	items, errs := m.FetchAll(context.Background())
	require.Empty(t, errs)
	require.Len(t, items, 2)

	assert.Equal(t, "first", items[0].PayloadRef())
	assert.Equal(t, "second", items[1].PayloadRef())
	assert.Equal(t, "custom", items[0].SourceType)
}
