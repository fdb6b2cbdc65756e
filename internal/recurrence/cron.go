package recurrence

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Predicate decides whether a date is a candidate for a custom pattern
type Predicate func(day time.Time) bool

// CronPredicate builds a day-level predicate from a standard 5-field cron expression.
// A date matches when the schedule fires at least once during that UTC day.
func CronPredicate(expr string) (Predicate, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: cron expression %q: %v", ErrInvalidPattern, expr, err)
	}
	return func(day time.Time) bool {
		d := Day(day)
		next := sched.Next(d.Add(-time.Second))
		return !next.IsZero() && next.Before(AddDays(d, 1))
	}, nil
}
