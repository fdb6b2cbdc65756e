package models

import (
	"time"
)

// OccurrenceStatus represents the publish lifecycle state of an occurrence
type OccurrenceStatus string

const (
	OccurrenceStatusDraft      OccurrenceStatus = "draft"
	OccurrenceStatusQueued     OccurrenceStatus = "queued"
	OccurrenceStatusPublishing OccurrenceStatus = "publishing"
	OccurrenceStatusPublished  OccurrenceStatus = "published"
	OccurrenceStatusFailed     OccurrenceStatus = "failed"
	OccurrenceStatusRetrying   OccurrenceStatus = "retrying"
	OccurrenceStatusCancelled  OccurrenceStatus = "cancelled"
)

// IsTerminal returns true for states with no further transitions
func (s OccurrenceStatus) IsTerminal() bool {
	return s == OccurrenceStatusPublished || s == OccurrenceStatusCancelled
}

// Occurrence is one concrete scheduled publish event
type Occurrence struct {
	ID             string           `gorm:"primaryKey;size:36" json:"id"`
	AccountID      string           `gorm:"index:idx_slot,priority:1;not null" json:"account_id"`
	Platform       Platform         `gorm:"index:idx_slot,priority:2;size:32;not null" json:"platform"`
	TargetDate     time.Time        `gorm:"index:idx_slot,priority:3;not null" json:"target_date"` // UTC midnight
	AssignedTime   TimeOfDay        `gorm:"index:idx_slot,priority:4" json:"assigned_time"`
	ScheduledFor   time.Time        `gorm:"index" json:"scheduled_for"`
	PatternID      *string          `gorm:"index;size:36" json:"pattern_id"` // nil for one-off bulk items
	ProjectID      string           `gorm:"index" json:"project_id"`
	Sequence       int              `json:"sequence"`
	Status         OccurrenceStatus `gorm:"size:20;default:'draft'" json:"status"`
	PayloadRef     string           `gorm:"type:text" json:"payload_ref"`
	Attempt        int              `gorm:"default:0" json:"attempt"`
	LastError      string           `json:"last_error"`
	ExternalPostID string           `json:"external_post_id"`
	PublishedAt    *time.Time       `json:"published_at"`
	JobID          string           `gorm:"index" json:"job_id"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// DateKey returns the target date as YYYY-MM-DD
func (o *Occurrence) DateKey() string {
	return o.TargetDate.Format(time.DateOnly)
}

// IsLive returns true if the occurrence still holds its slot
func (o *Occurrence) IsLive() bool {
	return o.Status != OccurrenceStatusCancelled
}

// Clone returns a shallow copy safe to hand to another goroutine
func (o *Occurrence) Clone() *Occurrence {
	c := *o
	if o.PatternID != nil {
		id := *o.PatternID
		c.PatternID = &id
	}
	if o.PublishedAt != nil {
		t := *o.PublishedAt
		c.PublishedAt = &t
	}
	return &c
}

// SlotKey identifies the (account, platform, date, time) slot an occurrence holds
type SlotKey struct {
	AccountID string
	Platform  Platform
	Date      string
	Time      TimeOfDay
}

// Key returns the slot key of the occurrence
func (o *Occurrence) Key() SlotKey {
	return SlotKey{
		AccountID: o.AccountID,
		Platform:  o.Platform,
		Date:      o.DateKey(),
		Time:      o.AssignedTime,
	}
}
