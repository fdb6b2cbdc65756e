package recurrence

import (
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/social-scheduler/internal/models"
)

// Options tunes a single expansion call
type Options struct {
	// AlreadyEmitted is the number of candidates produced by earlier expansions of the
	// same pattern; it counts against MaxOccurrences.
	AlreadyEmitted int
	// Predicate overrides the pattern's cron expression for custom frequencies.
	Predicate Predicate
}

// Validate checks the structural invariants of a pattern
func Validate(p *models.RecurrencePattern) error {
	if p.Interval < 1 {
		return fmt.Errorf("%w: interval must be >= 1, got %d", ErrInvalidPattern, p.Interval)
	}

	switch p.Frequency {
	case models.FrequencyDaily, models.FrequencyCustom:
	case models.FrequencyWeekly:
		if len(p.DaysOfWeek) == 0 {
			return fmt.Errorf("%w: weekly pattern needs at least one day of week", ErrInvalidPattern)
		}
		for _, d := range p.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("%w: day of week %d out of range 0..6", ErrInvalidPattern, d)
			}
		}
	case models.FrequencyMonthly:
		if p.DayOfMonth < 1 || p.DayOfMonth > 31 {
			return fmt.Errorf("%w: day of month %d out of range 1..31", ErrInvalidPattern, p.DayOfMonth)
		}
	case models.FrequencyYearly:
		if p.DayOfMonth < 1 || p.DayOfMonth > 31 {
			return fmt.Errorf("%w: day of month %d out of range 1..31", ErrInvalidPattern, p.DayOfMonth)
		}
		if p.MonthOfYear < 1 || p.MonthOfYear > 12 {
			return fmt.Errorf("%w: month of year %d out of range 1..12", ErrInvalidPattern, p.MonthOfYear)
		}
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidPattern, p.Frequency)
	}

	switch p.EndType {
	case "", models.EndNone:
	case models.EndOnDate:
		if p.EndDate == nil {
			return fmt.Errorf("%w: end_date condition without a date", ErrInvalidPattern)
		}
	case models.EndMaxOccurrences:
		if p.MaxOccurrences < 1 {
			return fmt.Errorf("%w: max occurrences must be >= 1", ErrInvalidPattern)
		}
	default:
		return fmt.Errorf("%w: unknown end condition %q", ErrInvalidPattern, p.EndType)
	}

	return nil
}

// Expand returns the candidate dates of p inside [windowStart, windowEnd], in order.
// The returned sequence is lazy and can be ranged over repeatedly with identical results.
func Expand(p *models.RecurrencePattern, windowStart, windowEnd time.Time, opts Options) (iter.Seq[time.Time], error) {
	if err := Validate(p); err != nil {
		return nil, err
	}

	start, end := Day(windowStart), Day(windowEnd)
	if start.After(end) {
		return nil, fmt.Errorf("%w: window start %s is after window end %s",
			ErrInvalidPattern, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	anchor := start
	if !p.StartDate.IsZero() {
		anchor = Day(p.StartDate)
	}
	from := start
	if anchor.After(from) {
		from = anchor
	}
	if p.EndType == models.EndOnDate {
		if endDate := Day(*p.EndDate); endDate.Before(end) {
			end = endDate
		}
	}

	limit := -1
	if p.EndType == models.EndMaxOccurrences {
		limit = max(p.MaxOccurrences-opts.AlreadyEmitted, 0)
	}

	match, err := matcher(p, anchor, opts.Predicate)
	if err != nil {
		return nil, err
	}

	return func(yield func(time.Time) bool) {
		emitted := 0
		for d := from; !d.After(end); d = AddDays(d, 1) {
			if limit >= 0 && emitted >= limit {
				return
			}
			if !match(d) {
				continue
			}
			emitted++
			if !yield(d) {
				return
			}
		}
	}, nil
}

// Collect expands p eagerly
func Collect(p *models.RecurrencePattern, windowStart, windowEnd time.Time, opts Options) ([]time.Time, error) {
	seq, err := Expand(p, windowStart, windowEnd, opts)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}

func matcher(p *models.RecurrencePattern, anchor time.Time, pred Predicate) (Predicate, error) {
	interval := p.Interval

	switch p.Frequency {
	case models.FrequencyDaily:
		return func(d time.Time) bool {
			return DaysBetween(anchor, d)%interval == 0
		}, nil

	case models.FrequencyWeekly:
		anchorWeek := WeekStart(anchor)
		days := p.DaysOfWeek
		return func(d time.Time) bool {
			weeks := DaysBetween(anchorWeek, WeekStart(d)) / 7
			return weeks%interval == 0 && days.Contains(int(d.Weekday()))
		}, nil

	case models.FrequencyMonthly:
		dom := p.DayOfMonth
		return func(d time.Time) bool {
			return monthsBetween(anchor, d)%interval == 0 && d.Day() == ClampDay(d, dom)
		}, nil

	case models.FrequencyYearly:
		dom, moy := p.DayOfMonth, time.Month(p.MonthOfYear)
		return func(d time.Time) bool {
			return (d.Year()-anchor.Year())%interval == 0 &&
				d.Month() == moy &&
				d.Day() == ClampDay(d, dom)
		}, nil

	case models.FrequencyCustom:
		if pred != nil {
			return pred, nil
		}
		if p.CronExpr == "" {
			return nil, fmt.Errorf("%w: custom pattern needs a predicate or cron expression", ErrInvalidPattern)
		}
		return CronPredicate(p.CronExpr)
	}

	return nil, fmt.Errorf("%w: unknown frequency %q", ErrInvalidPattern, p.Frequency)
}
