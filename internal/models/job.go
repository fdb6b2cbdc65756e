package models

import (
	"time"
)

// JobStatus represents the aggregate state of a bulk job
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusStopped   JobStatus = "stopped"
)

// BulkJob is a batch of occurrences submitted together for publishing
type BulkJob struct {
	ID         string        `gorm:"primaryKey;size:36" json:"id"`
	ItemIDs    StringSlice   `gorm:"type:json" json:"item_ids"`
	Status     JobStatus     `gorm:"size:20;default:'running'" json:"status"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Pending    int           `json:"pending"`
	CreatedAt  time.Time     `json:"created_at"`
	FinishedAt *time.Time    `json:"finished_at"`
	Items      []*Occurrence `gorm:"-" json:"items,omitempty"`
}

// Total returns the number of items in the job
func (j *BulkJob) Total() int {
	return len(j.ItemIDs)
}

// IsDone returns true once the job will not change any more
func (j *BulkJob) IsDone() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusStopped
}

// Clone returns a deep copy of the job and its item snapshots
func (j *BulkJob) Clone() *BulkJob {
	c := *j
	c.ItemIDs = append(StringSlice(nil), j.ItemIDs...)
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	c.Items = make([]*Occurrence, len(j.Items))
	for i, it := range j.Items {
		c.Items[i] = it.Clone()
	}
	return &c
}
