package slots

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/social-scheduler/internal/models"
)

var (
	// ErrNoPlatformConfigured is returned when no target platform is given or a platform has no slot table
	ErrNoPlatformConfigured = errors.New("no platform configured")
	// ErrExhaustedHorizon is returned when spillover finds no valid date within the lookahead
	ErrExhaustedHorizon = errors.New("exhausted scheduling horizon")
	// ErrConflictUnresolved is attached to a draft whose slot collides on every candidate time and date
	ErrConflictUnresolved = errors.New("conflict unresolved")
	// ErrInvalidConstraints is returned for constraint combinations that can never be satisfied
	ErrInvalidConstraints = errors.New("invalid constraints")
)

// Slot is one ranked optimal publish time for a platform; lower rank is better
type Slot struct {
	At   models.TimeOfDay `mapstructure:"at" json:"at"`
	Rank int              `mapstructure:"rank" json:"rank"`
}

// Table maps each platform to its ranked optimal times
type Table map[models.Platform][]Slot

// Ranked returns the platform's times ordered by rank, earliest first among equal ranks
func (t Table) Ranked(p models.Platform) ([]models.TimeOfDay, bool) {
	slots, ok := t[p]
	if !ok || len(slots) == 0 {
		return nil, false
	}
	sorted := append([]Slot(nil), slots...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Rank != sorted[j].Rank {
			return sorted[i].Rank < sorted[j].Rank
		}
		return sorted[i].At < sorted[j].At
	})

	out := make([]models.TimeOfDay, 0, len(sorted))
	seen := make(map[models.TimeOfDay]bool, len(sorted))
	for _, s := range sorted {
		if seen[s.At] {
			continue
		}
		seen[s.At] = true
		out = append(out, s.At)
	}
	return out, true
}

// Candidates returns the ordered times a platform may use under c.
// Without timing optimization the platform walks the day from DefaultTime in spacing steps.
func (t Table) Candidates(p models.Platform, c models.Constraints) ([]models.TimeOfDay, error) {
	if !c.OptimizeTimings {
		step := models.TimeOfDay(c.Spacing() / time.Minute)
		var out []models.TimeOfDay
		for at := c.DefaultTime; at.Valid(); at += step {
			out = append(out, at)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: default time %s outside the day", ErrInvalidConstraints, c.DefaultTime)
		}
		return out, nil
	}

	ranked, ok := t.Ranked(p)
	if !ok {
		return nil, fmt.Errorf("%w: no optimal times for platform %q", ErrNoPlatformConfigured, p)
	}
	return ranked, nil
}

// Validate checks every slot time is inside the day
func (t Table) Validate() error {
	for p, slots := range t {
		for _, s := range slots {
			if !s.At.Valid() {
				return fmt.Errorf("platform %s: slot %d outside the day", p, s.At)
			}
		}
	}
	return nil
}

// At combines a date and a platform-local time of day
func At(day time.Time, tod models.TimeOfDay, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), tod.Hour(), tod.Minute(), 0, 0, loc)
}

// Lookahead returns the number of days a candidate may move from its original date
func Lookahead(c models.Constraints, horizonDays int) int {
	if c.LookaheadDays > 0 {
		return c.LookaheadDays
	}
	return 2 * max(horizonDays, 1)
}

type dayKey struct {
	account string
	date    string
}

type platformDayKey struct {
	account  string
	platform models.Platform
	date     string
}
