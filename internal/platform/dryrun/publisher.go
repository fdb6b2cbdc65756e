// Package dryrun provides a publisher that only logs what would be posted.
package dryrun

import (
	"context"

	"github.com/social-scheduler/internal/platform"
	"github.com/social-scheduler/pkg/logger"
)

// Publisher accepts every request without contacting a platform
type Publisher struct {
	log *logger.Logger
}

// New creates a dry-run publisher
func New(log *logger.Logger) *Publisher {
	return &Publisher{log: log.WithComponent("dryrun")}
}

// Publish logs the request and returns a synthetic post ID
func (p *Publisher) Publish(ctx context.Context, req platform.Request) (platform.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return platform.Receipt{}, err
	}
	p.log.Info().
		Str("occurrence_id", req.OccurrenceID).
		Str("platform", string(req.Platform)).
		Time("scheduled_for", req.ScheduledFor).
		Str("payload_ref", req.Payload.Ref).
		Int("attempt", req.Attempt).
		Msg("Dry run publish")
	return platform.Receipt{ExternalPostID: "dryrun:" + req.OccurrenceID}, nil
}

var _ platform.Publisher = (*Publisher)(nil)
