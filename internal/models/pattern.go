package models

import (
	"time"
)

// Frequency represents how often a recurrence pattern fires
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
	FrequencyCustom  Frequency = "custom"
)

// EndType selects which end condition applies to a pattern
type EndType string

const (
	EndNone           EndType = "none"
	EndOnDate         EndType = "end_date"
	EndMaxOccurrences EndType = "max_occurrences"
)

// Constraints holds the slot assignment options for a pattern or bulk request
type Constraints struct {
	SkipWeekends    bool          `json:"skip_weekends" mapstructure:"skip_weekends"`
	MaxPerDay       int           `json:"max_per_day" mapstructure:"max_per_day"` // 0 = unlimited
	OptimizeTimings bool          `json:"optimize_timings" mapstructure:"optimize_timings"`
	MinSpacing      time.Duration `json:"min_spacing" mapstructure:"min_spacing"`
	DefaultTime     TimeOfDay     `json:"default_time" mapstructure:"default_time"` // used when OptimizeTimings is off
	SplitPlatforms  bool          `json:"split_platforms" mapstructure:"split_platforms"`
	LookaheadDays   int           `json:"lookahead_days" mapstructure:"lookahead_days"` // 0 = twice the horizon
	Timezone        string        `json:"timezone" mapstructure:"timezone"`
}

// Location resolves the constraint timezone, falling back to UTC
func (c Constraints) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Spacing returns the minimum distance between two slots of the same platform
func (c Constraints) Spacing() time.Duration {
	if c.MinSpacing < time.Minute {
		return time.Minute
	}
	return c.MinSpacing
}

// RecurrencePattern is a rule that generates occurrences over time
type RecurrencePattern struct {
	ID              string      `gorm:"primaryKey;size:36" json:"id"`
	AccountID       string      `gorm:"index;not null" json:"account_id"`
	Name            string      `gorm:"not null" json:"name"`
	IsActive        bool        `json:"is_active"`
	Version         int         `gorm:"not null;default:1" json:"version"`
	Frequency       Frequency   `gorm:"size:20;not null" json:"frequency"`
	Interval        int         `gorm:"not null;default:1" json:"interval"`
	DaysOfWeek      IntSlice    `gorm:"type:json" json:"days_of_week"` // 0 = Sunday
	DayOfMonth      int         `json:"day_of_month"`
	MonthOfYear     int         `json:"month_of_year"`
	CronExpr        string      `json:"cron_expr"` // custom frequency only
	StartDate       time.Time   `json:"start_date"`
	EndType         EndType     `gorm:"size:20;default:'none'" json:"end_type"`
	EndDate         *time.Time  `json:"end_date"`
	MaxOccurrences  int         `json:"max_occurrences"`
	Platforms       StringSlice `gorm:"type:json" json:"platforms"`
	Constraints     Constraints `gorm:"serializer:json" json:"constraints"`
	ContentTemplate string      `gorm:"type:text" json:"content_template"`
	GeneratedCount  int         `gorm:"default:0" json:"generated_count"`
	LastDate        *time.Time  `json:"last_date"`
	CreatedAt       time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// PlatformList returns the pattern platforms as typed values
func (p *RecurrencePattern) PlatformList() []Platform {
	out := make([]Platform, 0, len(p.Platforms))
	for _, s := range p.Platforms {
		out = append(out, Platform(s))
	}
	return out
}

// Remaining returns how many occurrences the end condition still allows, or -1 when unbounded
func (p *RecurrencePattern) Remaining() int {
	if p.EndType != EndMaxOccurrences {
		return -1
	}
	if n := p.MaxOccurrences - p.GeneratedCount; n > 0 {
		return n
	}
	return 0
}

// Exhausted returns true once the end condition allows no further occurrences
func (p *RecurrencePattern) Exhausted(after time.Time) bool {
	switch p.EndType {
	case EndMaxOccurrences:
		return p.Remaining() == 0
	case EndOnDate:
		return p.EndDate != nil && after.After(*p.EndDate)
	}
	return false
}
