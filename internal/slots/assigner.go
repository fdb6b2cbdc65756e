package slots

import (
	"fmt"
	"time"

	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/internal/recurrence"
)

// AssignRequest describes one batch of candidate dates to turn into drafts
type AssignRequest struct {
	AccountID   string
	Dates       []time.Time
	Platforms   []models.Platform
	Constraints models.Constraints
	// Committed occurrences of the account count toward MaxPerDay.
	Committed []*models.Occurrence
	// HorizonDays sizes the default spillover lookahead.
	HorizonDays int
}

// Assigner picks a date and time of day for every (candidate, platform) pair
type Assigner struct {
	table Table
}

// NewAssigner creates an assigner over the given optimal-time table
func NewAssigner(table Table) *Assigner {
	return &Assigner{table: table}
}

// Table returns the optimal-time table the assigner uses
func (a *Assigner) Table() Table {
	return a.table
}

// Assign produces unsaved draft occurrences. It fails as a whole: either every
// candidate gets a date or no draft is returned.
func (a *Assigner) Assign(req AssignRequest) ([]*models.Occurrence, error) {
	if len(req.Platforms) == 0 {
		return nil, ErrNoPlatformConfigured
	}

	c := req.Constraints
	times := make(map[models.Platform][]models.TimeOfDay, len(req.Platforms))
	for _, p := range req.Platforms {
		ts, err := a.table.Candidates(p, c)
		if err != nil {
			return nil, err
		}
		times[p] = ts
	}

	groups := [][]models.Platform{req.Platforms}
	if c.SplitPlatforms {
		groups = make([][]models.Platform, 0, len(req.Platforms))
		for _, p := range req.Platforms {
			groups = append(groups, []models.Platform{p})
		}
	} else if c.MaxPerDay > 0 && len(req.Platforms) > c.MaxPerDay {
		return nil, fmt.Errorf("%w: %d platforms move together but max_per_day is %d",
			ErrInvalidConstraints, len(req.Platforms), c.MaxPerDay)
	}

	counts := make(map[dayKey]int)
	for _, o := range req.Committed {
		if o.AccountID == req.AccountID && o.IsLive() {
			counts[dayKey{o.AccountID, o.DateKey()}]++
		}
	}

	loc := c.Location()
	lookahead := Lookahead(c, req.HorizonDays)
	drafts := make([]*models.Occurrence, 0, len(req.Dates)*len(req.Platforms))

	for _, candidate := range req.Dates {
		for _, group := range groups {
			day, err := place(req.AccountID, recurrence.Day(candidate), len(group), counts, c, lookahead)
			if err != nil {
				return nil, err
			}
			counts[dayKey{req.AccountID, day.Format(time.DateOnly)}] += len(group)

			for _, p := range group {
				at := times[p][0]
				drafts = append(drafts, &models.Occurrence{
					AccountID:    req.AccountID,
					Platform:     p,
					TargetDate:   day,
					AssignedTime: at,
					ScheduledFor: At(day, at, loc),
					Status:       models.OccurrenceStatusDraft,
				})
			}
		}
	}

	return drafts, nil
}

// place finds the first date from day onward that satisfies the weekend and daily cap rules
func place(account string, day time.Time, n int, counts map[dayKey]int, c models.Constraints, lookahead int) (time.Time, error) {
	limit := recurrence.AddDays(day, lookahead)
	for d := day; !d.After(limit); d = recurrence.AddDays(d, 1) {
		if c.SkipWeekends && recurrence.IsWeekend(d) {
			continue
		}
		if c.MaxPerDay > 0 && counts[dayKey{account, d.Format(time.DateOnly)}]+n > c.MaxPerDay {
			continue
		}
		return d, nil
	}
	return time.Time{}, fmt.Errorf("%w: no date within %d days of %s", ErrExhaustedHorizon, lookahead, day.Format(time.DateOnly))
}
