package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	name  string
	items []*Item
	err   error
}

func (s *stubSource) Name() string { return s.name }
func (s *stubSource) Type() string { return "stub" }
func (s *stubSource) HealthCheck(ctx context.Context) error { return nil }
func (s *stubSource) Fetch(ctx context.Context) ([]*Item, error) {
	return s.items, s.err
}

func TestFetchAllDedupesAndOrders(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC) }

	m := NewManager()
	m.Register(&stubSource{name: "a", items: []*Item{
		{ExternalID: "x", Title: "X", PublishedAt: day(3)},
		{ExternalID: "y", Title: "Y", PublishedAt: day(1)},
	}})
	m.Register(&stubSource{name: "b", items: []*Item{
		{ExternalID: "x", Title: "X again", PublishedAt: day(3)},
		{ExternalID: "z", Title: "Z", PublishedAt: day(2)},
	}})
	m.Register(&stubSource{name: "broken", err: errors.New("boom")})

	items, errs := m.FetchAll(context.Background())
	require.Len(t, errs, 1)
	require.Len(t, items, 3)

	assert.Equal(t, "Y", items[0].Title)
	assert.Equal(t, "Z", items[1].Title)
	assert.Equal(t, "X", items[2].Title)
	assert.NotNil(t, m.GetSourceByName("b"))
	assert.Nil(t, m.GetSourceByName("missing"))
}

func TestPayloadRef(t *testing.T) {
	it := &Item{Title: "Launch", Text: "We shipped", URL: "https://example.com/launch"}
	assert.Equal(t, "Launch\n\nWe shipped\n\nhttps://example.com/launch", it.PayloadRef())

	assert.Equal(t, "just text", (&Item{Text: "just text"}).PayloadRef())
	assert.Equal(t, "Same", (&Item{Title: "Same", Text: "Same"}).PayloadRef())
}

func TestGenerateExternalID(t *testing.T) {
	a := GenerateExternalID("rss", "https://example.com/1")
	assert.Len(t, a, 32)
	assert.Equal(t, a, GenerateExternalID("rss", "https://example.com/1"))
	assert.NotEqual(t, a, GenerateExternalID("custom", "https://example.com/1"))
}
