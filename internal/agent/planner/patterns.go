package planner

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/internal/recurrence"
	"github.com/social-scheduler/internal/storage"
)

// CreatePattern validates and stores a new active pattern
func (p *Planner) CreatePattern(ctx context.Context, pattern *models.RecurrencePattern) (*models.RecurrencePattern, error) {
	if pattern.EndType == "" {
		pattern.EndType = models.EndNone
	}
	if err := recurrence.Validate(pattern); err != nil {
		return nil, err
	}
	if err := p.checkPlatforms(pattern.PlatformList(), pattern.Constraints); err != nil {
		return nil, err
	}
	if pattern.StartDate.IsZero() {
		pattern.StartDate = p.today(pattern.Constraints.Location())
	} else {
		pattern.StartDate = recurrence.Day(pattern.StartDate)
	}
	if pattern.ID == "" {
		pattern.ID = uuid.NewString()
	}
	pattern.Version = 1
	pattern.IsActive = true
	pattern.GeneratedCount = 0
	pattern.LastDate = nil

	if err := p.repo.CreatePattern(ctx, pattern); err != nil {
		return nil, fmt.Errorf("failed to save pattern: %w", err)
	}
	p.log.WithPatternID(pattern.ID).Info().
		Str("frequency", string(pattern.Frequency)).
		Int("interval", pattern.Interval).
		Strs("platforms", pattern.Platforms).
		Msg("Pattern created")
	return pattern, nil
}

// GetPattern returns a pattern by ID
func (p *Planner) GetPattern(ctx context.Context, id string) (*models.RecurrencePattern, error) {
	return p.repo.GetPattern(ctx, id)
}

// ListPatterns lists stored patterns
func (p *Planner) ListPatterns(ctx context.Context, filter storage.PatternFilter) ([]*models.RecurrencePattern, error) {
	return p.repo.ListPatterns(ctx, filter)
}

// PausePattern deactivates a pattern so it can be edited
func (p *Planner) PausePattern(ctx context.Context, id string) (*models.RecurrencePattern, error) {
	return p.setActive(ctx, id, false)
}

// ResumePattern reactivates a paused pattern
func (p *Planner) ResumePattern(ctx context.Context, id string) (*models.RecurrencePattern, error) {
	return p.setActive(ctx, id, true)
}

func (p *Planner) setActive(ctx context.Context, id string, active bool) (*models.RecurrencePattern, error) {
	pattern, err := p.repo.GetPattern(ctx, id)
	if err != nil {
		return nil, err
	}
	if pattern.IsActive == active {
		return pattern, nil
	}
	pattern.IsActive = active
	if err := p.repo.UpdatePattern(ctx, pattern, pattern.Version); err != nil {
		return nil, err
	}
	p.log.WithPatternID(id).Info().Bool("active", active).Msg("Pattern state changed")
	return pattern, nil
}

// UpdatePattern replaces the rule of a paused pattern. pattern.Version must be the version the
// caller read; bookkeeping fields are kept from the stored copy.
func (p *Planner) UpdatePattern(ctx context.Context, pattern *models.RecurrencePattern) (*models.RecurrencePattern, error) {
	stored, err := p.repo.GetPattern(ctx, pattern.ID)
	if err != nil {
		return nil, err
	}
	if stored.IsActive {
		return nil, ErrPatternActive
	}
	if stored.Version != pattern.Version {
		return nil, storage.ErrVersionConflict
	}
	if pattern.EndType == "" {
		pattern.EndType = models.EndNone
	}
	if err := recurrence.Validate(pattern); err != nil {
		return nil, err
	}
	if err := p.checkPlatforms(pattern.PlatformList(), pattern.Constraints); err != nil {
		return nil, err
	}
	if err := p.checkEndCondition(ctx, stored, pattern); err != nil {
		return nil, err
	}

	pattern.AccountID = stored.AccountID
	pattern.IsActive = false
	pattern.GeneratedCount = stored.GeneratedCount
	pattern.LastDate = stored.LastDate
	pattern.CreatedAt = stored.CreatedAt
	if pattern.StartDate.IsZero() {
		pattern.StartDate = stored.StartDate
	} else {
		pattern.StartDate = recurrence.Day(pattern.StartDate)
	}

	if err := p.repo.UpdatePattern(ctx, pattern, stored.Version); err != nil {
		return nil, err
	}
	p.log.WithPatternID(pattern.ID).Info().Int("version", pattern.Version).Msg("Pattern updated")
	return pattern, nil
}

// checkEndCondition rejects end conditions that already generated occurrences would violate
func (p *Planner) checkEndCondition(ctx context.Context, stored, next *models.RecurrencePattern) error {
	switch next.EndType {
	case models.EndMaxOccurrences:
		if next.MaxOccurrences < stored.GeneratedCount {
			return fmt.Errorf("%w: %d occurrences already generated, max would be %d",
				ErrEndConditionLocked, stored.GeneratedCount, next.MaxOccurrences)
		}
	case models.EndOnDate:
		live, err := p.repo.ListOccurrences(ctx, storage.OccurrenceFilter{
			PatternID: &stored.ID,
			Statuses:  storage.LiveStatuses,
		})
		if err != nil {
			return err
		}
		end := recurrence.Day(*next.EndDate)
		for _, o := range live {
			if o.TargetDate.After(end) {
				return fmt.Errorf("%w: occurrence on %s is after %s",
					ErrEndConditionLocked, o.DateKey(), end.Format("2006-01-02"))
			}
		}
	}
	return nil
}

// DeletePattern removes a pattern and cancels its drafts that have not been published. It
// returns the number of cancelled occurrences.
func (p *Planner) DeletePattern(ctx context.Context, id string) (int, error) {
	if _, err := p.repo.GetPattern(ctx, id); err != nil {
		return 0, err
	}
	drafts, err := p.repo.ListOccurrences(ctx, storage.OccurrenceFilter{
		PatternID: &id,
		Statuses:  []models.OccurrenceStatus{models.OccurrenceStatusDraft},
	})
	if err != nil {
		return 0, err
	}
	for _, o := range drafts {
		o.Status = models.OccurrenceStatusCancelled
		o.LastError = "pattern deleted"
	}
	if err := p.repo.DeletePattern(ctx, id, drafts); err != nil {
		return 0, fmt.Errorf("failed to delete pattern: %w", err)
	}
	p.log.WithPatternID(id).Info().Int("cancelled", len(drafts)).Msg("Pattern deleted")
	return len(drafts), nil
}
