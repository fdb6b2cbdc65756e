package rss

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/social-scheduler/internal/config"
	"github.com/social-scheduler/internal/source"
	"github.com/social-scheduler/pkg/logger"
)

// Source implements source.Source for RSS feeds
type Source struct {
	name   string
	url    string
	maxAge time.Duration
	parser *gofeed.Parser
	now    func() time.Time
	log    *logger.Logger
}

// New creates a new RSS source for a single feed. Items older than maxAge are
// skipped; zero keeps everything.
func New(feed config.RSSFeed, maxAge time.Duration, log *logger.Logger) *Source {
	return &Source{
		name:   feed.Name,
		url:    feed.URL,
		maxAge: maxAge,
		parser: gofeed.NewParser(),
		now:    time.Now,
		log:    log.WithSource("rss", feed.Name),
	}
}

// NewMultiple creates multiple RSS sources from config
func NewMultiple(cfg config.FeedsConfig, log *logger.Logger) []*Source {
	sources := make([]*Source, 0, len(cfg.RSS))
	for _, feed := range cfg.RSS {
		sources = append(sources, New(feed, cfg.MaxAge, log))
	}
	return sources
}

// Name returns the source name
func (s *Source) Name() string {
	return s.name
}

// Type returns "rss"
func (s *Source) Type() string {
	return "rss"
}

// Fetch retrieves items from the RSS feed
func (s *Source) Fetch(ctx context.Context) ([]*source.Item, error) {
	s.log.Debug().Str("url", s.url).Msg("Fetching RSS feed")

	feed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed %s: %w", s.name, err)
	}

	now := s.now()
	items := make([]*source.Item, 0, len(feed.Items))

	for _, entry := range feed.Items {
		publishedAt := now
		if entry.PublishedParsed != nil {
			publishedAt = *entry.PublishedParsed
			if s.maxAge > 0 && now.Sub(publishedAt) > s.maxAge {
				continue
			}
		}
		if entry.Link == "" && entry.Title == "" {
			continue
		}

		key := entry.Link
		if key == "" {
			key = entry.GUID
		}
		if key == "" {
			key = entry.Title
		}

		items = append(items, &source.Item{
			ExternalID:  source.GenerateExternalID("rss", key),
			Title:       cleanText(entry.Title),
			Text:        cleanText(entry.Description),
			URL:         entry.Link,
			SourceType:  "rss",
			SourceName:  s.name,
			Categories:  extractCategories(entry),
			PublishedAt: publishedAt.UTC(),
		})
	}

	s.log.Info().
		Int("count", len(items)).
		Str("feed", s.name).
		Msg("Fetched RSS items")

	return items, nil
}

// HealthCheck verifies the RSS feed is accessible
func (s *Source) HealthCheck(ctx context.Context) error {
	_, err := s.parser.ParseURLWithContext(s.url, ctx)
	return err
}

// cleanText removes HTML tags and extra whitespace
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "<br>", " ")
	text = strings.ReplaceAll(text, "<br/>", " ")
	text = strings.ReplaceAll(text, "<br />", " ")
	text = strings.ReplaceAll(text, "</p>", " ")
	text = strings.ReplaceAll(text, "<p>", "")

	var result strings.Builder
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			result.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(result.String()), " ")
}

// extractCategories collects feed categories and the author name
func extractCategories(entry *gofeed.Item) []string {
	categories := append([]string{}, entry.Categories...)
	if entry.Author != nil && entry.Author.Name != "" {
		categories = append(categories, entry.Author.Name)
	}
	return categories
}

var _ source.Source = (*Source)(nil)
