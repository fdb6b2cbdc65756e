package source

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Item is a piece of content pulled from an external source, ready to become a
// one-off draft occurrence
type Item struct {
	ExternalID  string
	Title       string
	Text        string
	URL         string
	SourceType  string
	SourceName  string
	Categories  []string
	PublishedAt time.Time
}

// PayloadRef returns the reference stored on the occurrence created for the item
func (i *Item) PayloadRef() string {
	var parts []string
	if i.Title != "" {
		parts = append(parts, i.Title)
	}
	if i.Text != "" && i.Text != i.Title {
		parts = append(parts, i.Text)
	}
	if i.URL != "" {
		parts = append(parts, i.URL)
	}
	return strings.Join(parts, "\n\n")
}

// Source defines the interface for content import sources
type Source interface {
	// Name returns the unique name of this source
	Name() string

	// Type returns the source type (rss, custom)
	Type() string

	// Fetch retrieves items from the source
	Fetch(ctx context.Context) ([]*Item, error)

	// HealthCheck verifies the source is accessible
	HealthCheck(ctx context.Context) error
}

// GenerateExternalID creates a unique ID for an item based on source and URL
func GenerateExternalID(sourceType, url string) string {
	data := fmt.Sprintf("%s:%s", sourceType, url)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash[:16]) // Use first 16 bytes (32 hex chars)
}

// Manager manages multiple content sources
type Manager struct {
	sources []Source
}

// NewManager creates a new source manager
func NewManager() *Manager {
	return &Manager{
		sources: make([]Source, 0),
	}
}

// Register adds a source to the manager
func (m *Manager) Register(source Source) {
	m.sources = append(m.sources, source)
}

// GetSources returns all registered sources
func (m *Manager) GetSources() []Source {
	return m.sources
}

// GetSourceByName returns a source by name
func (m *Manager) GetSourceByName(name string) Source {
	for _, s := range m.sources {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// FetchAll fetches items from all sources concurrently. Items are de-duplicated by
// ExternalID and ordered oldest first so their scheduled order follows publication order.
func (m *Manager) FetchAll(ctx context.Context) ([]*Item, []error) {
	type result struct {
		index int
		items []*Item
		err   error
	}

	results := make(chan result, len(m.sources))

	for i, source := range m.sources {
		go func(i int, s Source) {
			items, err := s.Fetch(ctx)
			results <- result{index: i, items: items, err: err}
		}(i, source)
	}

	perSource := make([][]*Item, len(m.sources))
	var errs []error

	for range m.sources {
		r := <-results
		if r.err != nil {
			errs = append(errs, r.err)
		} else {
			perSource[r.index] = r.items
		}
	}

	seen := make(map[string]struct{})
	var all []*Item
	for _, items := range perSource {
		for _, it := range items {
			if _, dup := seen[it.ExternalID]; dup {
				continue
			}
			seen[it.ExternalID] = struct{}{}
			all = append(all, it)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].PublishedAt.Before(all[j].PublishedAt)
	})

	return all, errs
}
