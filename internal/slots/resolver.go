package slots

import (
	"fmt"
	"sort"
	"time"

	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/internal/recurrence"
)

// ResolveRequest holds drafts to check against the committed schedule
type ResolveRequest struct {
	Drafts      []*models.Occurrence
	Existing    []*models.Occurrence
	Constraints models.Constraints
	HorizonDays int
}

// Rejection is a draft that could not be placed, with the reason
type Rejection struct {
	Draft *models.Occurrence
	Err   error
}

// Resolution is the outcome of conflict resolution: every draft is either accepted or rejected
type Resolution struct {
	Accepted []*models.Occurrence
	Rejected []Rejection
}

// Resolver moves drafts off slots that are already taken
type Resolver struct {
	table Table
}

// NewResolver creates a resolver over the given optimal-time table
func NewResolver(table Table) *Resolver {
	return &Resolver{table: table}
}

// Resolve adjusts draft times (and, when needed, dates) so no two live occurrences of the same
// account and platform sit closer than the minimum spacing on one day. Drafts are processed in
// order; accepted drafts come back sorted by date, time, then platform.
func (r *Resolver) Resolve(req ResolveRequest) Resolution {
	c := req.Constraints
	spacing := int(c.Spacing() / time.Minute)
	lookahead := Lookahead(c, req.HorizonDays)
	loc := c.Location()

	occupied := make(map[platformDayKey][]models.TimeOfDay)
	counts := make(map[dayKey]int)
	for _, o := range req.Existing {
		if !o.IsLive() {
			continue
		}
		k := platformDayKey{o.AccountID, o.Platform, o.DateKey()}
		occupied[k] = append(occupied[k], o.AssignedTime)
		counts[dayKey{o.AccountID, o.DateKey()}]++
	}
	for _, d := range req.Drafts {
		counts[dayKey{d.AccountID, d.DateKey()}]++
	}

	free := func(k platformDayKey, at models.TimeOfDay) bool {
		for _, t := range occupied[k] {
			diff := int(t - at)
			if diff < 0 {
				diff = -diff
			}
			if diff < spacing {
				return false
			}
		}
		return true
	}

	var res Resolution
	for _, d := range req.Drafts {
		times, err := r.table.Candidates(d.Platform, c)
		if err != nil {
			res.Rejected = append(res.Rejected, Rejection{Draft: d, Err: err})
			counts[dayKey{d.AccountID, d.DateKey()}]--
			continue
		}

		placed := false
		original := d.TargetDate
		originKey := dayKey{d.AccountID, d.DateKey()}

		// Same date: current slot first, then the following ranks, wrapping around.
		k := platformDayKey{d.AccountID, d.Platform, d.DateKey()}
		for _, at := range rotate(times, d.AssignedTime) {
			if free(k, at) {
				d.AssignedTime = at
				placed = true
				break
			}
		}

		// Later dates, re-checking weekend and daily cap rules.
		limit := recurrence.AddDays(original, lookahead)
		for day := recurrence.AddDays(original, 1); !placed && !day.After(limit); day = recurrence.AddDays(day, 1) {
			if c.SkipWeekends && recurrence.IsWeekend(day) {
				continue
			}
			dk := dayKey{d.AccountID, day.Format(time.DateOnly)}
			if c.MaxPerDay > 0 && counts[dk]+1 > c.MaxPerDay {
				continue
			}
			k = platformDayKey{d.AccountID, d.Platform, dk.date}
			for _, at := range times {
				if free(k, at) {
					counts[originKey]--
					counts[dk]++
					d.TargetDate = day
					d.AssignedTime = at
					placed = true
					break
				}
			}
		}

		if !placed {
			counts[originKey]--
			res.Rejected = append(res.Rejected, Rejection{
				Draft: d,
				Err: fmt.Errorf("%w: %s on %s has no free slot within %d days",
					ErrConflictUnresolved, d.Platform, original.Format(time.DateOnly), lookahead),
			})
			continue
		}

		d.ScheduledFor = At(d.TargetDate, d.AssignedTime, loc)
		occupied[k] = append(occupied[k], d.AssignedTime)
		res.Accepted = append(res.Accepted, d)
	}

	sort.SliceStable(res.Accepted, func(i, j int) bool {
		a, b := res.Accepted[i], res.Accepted[j]
		if !a.TargetDate.Equal(b.TargetDate) {
			return a.TargetDate.Before(b.TargetDate)
		}
		if a.AssignedTime != b.AssignedTime {
			return a.AssignedTime < b.AssignedTime
		}
		return a.Platform < b.Platform
	})

	return res
}

// rotate returns times starting at current, followed by the rest in rank order after it.
// A current time that is not in the list is tried first.
func rotate(times []models.TimeOfDay, current models.TimeOfDay) []models.TimeOfDay {
	idx := -1
	for i, t := range times {
		if t == current {
			idx = i
			break
		}
	}
	if idx < 0 {
		return append([]models.TimeOfDay{current}, times...)
	}
	out := make([]models.TimeOfDay, 0, len(times))
	out = append(out, times[idx:]...)
	return append(out, times[:idx]...)
}
