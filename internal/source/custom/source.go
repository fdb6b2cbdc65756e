package custom

import (
	"context"
	"time"

	"github.com/social-scheduler/internal/config"
	"github.com/social-scheduler/internal/source"
	"github.com/social-scheduler/pkg/logger"
)

// Source implements source.Source for fixed texts listed in the config
type Source struct {
	texts []string
	now   func() time.Time
	log   *logger.Logger
}

// New creates a new custom source
func New(cfg config.FeedsConfig, log *logger.Logger) *Source {
	return &Source{
		texts: cfg.Custom,
		now:   time.Now,
		log:   log.WithSource("custom", "texts"),
	}
}

// Name returns the source name
func (s *Source) Name() string {
	return "custom-texts"
}

// Type returns "custom"
func (s *Source) Type() string {
	return "custom"
}

// Fetch returns the configured texts in order. Each text is one nanosecond newer
// than the previous so the manager's ordering keeps the config order.
func (s *Source) Fetch(ctx context.Context) ([]*source.Item, error) {
	base := s.now().UTC()
	items := make([]*source.Item, 0, len(s.texts))

	for i, text := range s.texts {
		if text == "" {
			continue
		}
		items = append(items, &source.Item{
			ExternalID:  source.GenerateExternalID("custom", text),
			Text:        text,
			SourceType:  "custom",
			SourceName:  "texts",
			PublishedAt: base.Add(time.Duration(i)),
		})
	}

	s.log.Info().
		Int("count", len(items)).
		Msg("Returned custom texts")

	return items, nil
}

// HealthCheck always succeeds for custom source
func (s *Source) HealthCheck(ctx context.Context) error {
	return nil
}

var _ source.Source = (*Source)(nil)
