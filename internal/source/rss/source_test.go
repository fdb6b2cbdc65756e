package rss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/social-scheduler/internal/config"
	"github.com/social-scheduler/internal/source"
	"github.com/social-scheduler/pkg/logger"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Engineering</title>
  <item>
    <title>Fresh &lt;b&gt;post&lt;/b&gt;</title>
    <link>https://example.com/fresh</link>
    <description>&lt;p&gt;Hello   world&lt;/p&gt;</description>
    <category>go</category>
    <pubDate>Sun, 04 Jan 2026 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Stale post</title>
    <link>https://example.com/stale</link>
    <pubDate>Mon, 01 Dec 2025 10:00:00 GMT</pubDate>
  </item>
</channel>
</rss>`

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedXML))
	}))
	defer srv.Close()

	s := New(config.RSSFeed{Name: "eng", URL: srv.URL}, 7*24*time.Hour, logger.Nop())
	s.now = func() time.Time { return time.Date(2026, 1, 5, 7, 0, 0, 0, time.UTC) }

	items, err := s.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)

	it := items[0]
	assert.Equal(t, "Fresh post", it.Title)
	assert.Equal(t, "Hello world", it.Text)
	assert.Equal(t, "https://example.com/fresh", it.URL)
	assert.Equal(t, source.GenerateExternalID("rss", "https://example.com/fresh"), it.ExternalID)
	assert.Equal(t, []string{"go"}, it.Categories)
	assert.Equal(t, "eng", it.SourceName)
	assert.True(t, it.PublishedAt.Equal(time.Date(2026, 1, 4, 10, 0, 0, 0, time.UTC)))
}

func TestFetchNoMaxAgeKeepsEverything(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feedXML))
	}))
	defer srv.Close()

	items, err := New(config.RSSFeed{Name: "eng", URL: srv.URL}, 0, logger.Nop()).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestFetchBadFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	_, err := New(config.RSSFeed{Name: "eng", URL: srv.URL}, 0, logger.Nop()).Fetch(context.Background())
	assert.Error(t, err)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a b c", cleanText("<p>a</p><br/>b <i>c</i>"))
}
