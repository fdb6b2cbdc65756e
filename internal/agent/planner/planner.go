package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/internal/recurrence"
	"github.com/social-scheduler/internal/slots"
	"github.com/social-scheduler/internal/storage"
	"github.com/social-scheduler/pkg/clock"
	"github.com/social-scheduler/pkg/logger"
)

var (
	// ErrNothingToExtend is returned when an extension target has no occurrences and no start date
	ErrNothingToExtend = errors.New("nothing to extend")
	// ErrInvalidRequest is returned for malformed scheduling requests
	ErrInvalidRequest = errors.New("invalid request")
	// ErrPatternActive is returned when editing a pattern that has not been paused
	ErrPatternActive = errors.New("pattern must be paused before editing")
	// ErrPatternPaused is returned when generating occurrences for a paused pattern
	ErrPatternPaused = errors.New("pattern is paused")
	// ErrEndConditionLocked is returned when a new end condition excludes generated occurrences
	ErrEndConditionLocked = errors.New("end condition would exclude generated occurrences")
)

// ScheduleResult is the outcome of one scheduling pass. Rejected drafts were not persisted.
type ScheduleResult struct {
	Scheduled []*models.Occurrence
	Rejected  []slots.Rejection
}

// Planner turns recurrence patterns and bulk requests into persisted draft occurrences
type Planner struct {
	repo        storage.Repository
	assigner    *slots.Assigner
	resolver    *slots.Resolver
	clock       clock.Clock
	defaults    models.Constraints
	horizonDays int
	log         *logger.Logger
}

// Config holds planner defaults
type Config struct {
	// HorizonDays is used when a caller passes a non-positive horizon.
	HorizonDays int
	// Constraints apply to bulk items and projects, which carry none of their own.
	Constraints models.Constraints
}

// New creates a planner
func New(repo storage.Repository, table slots.Table, clk clock.Clock, cfg Config, log *logger.Logger) *Planner {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 30
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Planner{
		repo:        repo,
		assigner:    slots.NewAssigner(table),
		resolver:    slots.NewResolver(table),
		clock:       clk,
		defaults:    cfg.Constraints,
		horizonDays: cfg.HorizonDays,
		log:         log.WithComponent("planner"),
	}
}

func (p *Planner) today(loc *time.Location) time.Time {
	return recurrence.Day(p.clock.Now().In(loc))
}

func (p *Planner) horizon(days int) int {
	if days <= 0 {
		return p.horizonDays
	}
	return days
}

func (p *Planner) checkPlatforms(platforms []models.Platform, c models.Constraints) error {
	if len(platforms) == 0 {
		return slots.ErrNoPlatformConfigured
	}
	for _, pl := range platforms {
		if _, err := p.assigner.Table().Candidates(pl, c); err != nil {
			return err
		}
	}
	return nil
}

// batch is one set of candidate dates for a single account
type batch struct {
	accountID   string
	platforms   []models.Platform
	constraints models.Constraints
	dates       []time.Time
	horizonDays int
	// stamp fills in identity fields of a draft produced for dates[candidate].
	stamp func(o *models.Occurrence, candidate int)
	// replaced are stored occurrences cancelled by the same commit; their slots are free.
	replaced []*models.Occurrence
}

// plan runs assignment and conflict resolution for b. Nothing is persisted.
func (p *Planner) plan(ctx context.Context, b batch) (*ScheduleResult, error) {
	if len(b.dates) == 0 {
		return &ScheduleResult{}, nil
	}

	first, last := b.dates[0], b.dates[len(b.dates)-1]
	lookahead := slots.Lookahead(b.constraints, b.horizonDays)
	existing, err := p.repo.LoadExistingOccurrences(ctx, b.accountID, first, recurrence.AddDays(last, lookahead))
	if err != nil {
		return nil, fmt.Errorf("failed to load existing occurrences: %w", err)
	}
	existing = withoutReplaced(existing, b.replaced)

	drafts, err := p.assigner.Assign(slots.AssignRequest{
		AccountID:   b.accountID,
		Dates:       b.dates,
		Platforms:   b.platforms,
		Constraints: b.constraints,
		Committed:   existing,
		HorizonDays: b.horizonDays,
	})
	if err != nil {
		return nil, err
	}
	for k, d := range drafts {
		d.ID = uuid.NewString()
		b.stamp(d, k/len(b.platforms))
	}

	res := p.resolver.Resolve(slots.ResolveRequest{
		Drafts:      drafts,
		Existing:    existing,
		Constraints: b.constraints,
		HorizonDays: b.horizonDays,
	})
	return &ScheduleResult{Scheduled: res.Accepted, Rejected: res.Rejected}, nil
}

func withoutReplaced(existing, replaced []*models.Occurrence) []*models.Occurrence {
	if len(replaced) == 0 {
		return existing
	}
	gone := make(map[string]bool, len(replaced))
	for _, o := range replaced {
		gone[o.ID] = true
	}
	kept := existing[:0]
	for _, o := range existing {
		if !gone[o.ID] {
			kept = append(kept, o)
		}
	}
	return kept
}

// guard re-checks every accepted draft against the slot index right before the commit and
// moves drafts whose slot was taken in the meantime to the rejected list.
func (p *Planner) guard(ctx context.Context, res *ScheduleResult, replaced []*models.Occurrence) error {
	released := make(map[models.SlotKey]bool, len(replaced))
	for _, o := range replaced {
		released[o.Key()] = true
	}
	kept := res.Scheduled[:0]
	for _, o := range res.Scheduled {
		if !released[o.Key()] {
			taken, err := p.repo.SlotTaken(ctx, o.Key())
			if err != nil {
				return fmt.Errorf("failed to check slot: %w", err)
			}
			if taken {
				res.Rejected = append(res.Rejected, slots.Rejection{
					Draft: o,
					Err:   fmt.Errorf("%w: slot taken before commit", slots.ErrConflictUnresolved),
				})
				continue
			}
		}
		kept = append(kept, o)
	}
	res.Scheduled = kept
	return nil
}

func (p *Planner) logRejected(res *ScheduleResult) {
	for _, rej := range res.Rejected {
		p.log.Warn().
			Err(rej.Err).
			Str("platform", string(rej.Draft.Platform)).
			Str("target_date", rej.Draft.DateKey()).
			Msg("Draft rejected")
	}
}
