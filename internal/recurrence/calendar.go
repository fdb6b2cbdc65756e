package recurrence

import "time"

// Day truncates t to its calendar date at UTC midnight, keeping t's own year/month/day
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddDays shifts a date by n calendar days
func AddDays(d time.Time, n int) time.Time {
	return d.AddDate(0, 0, n)
}

// DaysBetween returns the whole days from a to b (negative if b is earlier)
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// DaysIn returns the number of days in d's month
func DaysIn(d time.Time) int {
	return time.Date(d.Year(), d.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampDay returns dayOfMonth, or the last day of d's month when the month is shorter
func ClampDay(d time.Time, dayOfMonth int) int {
	if n := DaysIn(d); dayOfMonth > n {
		return n
	}
	return dayOfMonth
}

// WeekStart returns the Sunday starting d's week
func WeekStart(d time.Time) time.Time {
	d = Day(d)
	return AddDays(d, -int(d.Weekday()))
}

// IsWeekend reports whether d is a Saturday or Sunday
func IsWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
