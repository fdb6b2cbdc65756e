package storage

import (
	"context"
	"errors"
	"time"

	"github.com/social-scheduler/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a pattern was modified since it was read
	ErrVersionConflict = errors.New("version conflict")
)

// Repository defines the interface for data persistence
type Repository interface {
	// Pattern operations
	CreatePattern(ctx context.Context, pattern *models.RecurrencePattern) error
	GetPattern(ctx context.Context, id string) (*models.RecurrencePattern, error)
	ListPatterns(ctx context.Context, filter PatternFilter) ([]*models.RecurrencePattern, error)
	// UpdatePattern stores pattern only if the stored version still equals expectedVersion,
	// and bumps pattern.Version on success.
	UpdatePattern(ctx context.Context, pattern *models.RecurrencePattern, expectedVersion int) error
	// SavePatternOccurrences upserts occurrences and stores pattern under the same version check
	// as UpdatePattern. Either everything is applied or nothing is.
	SavePatternOccurrences(ctx context.Context, pattern *models.RecurrencePattern, expectedVersion int, occurrences []*models.Occurrence) error
	// DeletePattern removes the pattern and upserts cancelled in one step
	DeletePattern(ctx context.Context, id string, cancelled []*models.Occurrence) error

	// Project operations
	GetProject(ctx context.Context, id string) (*models.Project, error)
	// SaveProjectOccurrences upserts the project together with its new occurrences
	SaveProjectOccurrences(ctx context.Context, project *models.Project, occurrences []*models.Occurrence) error

	// Occurrence operations
	SaveOccurrences(ctx context.Context, occurrences []*models.Occurrence) error
	GetOccurrence(ctx context.Context, id string) (*models.Occurrence, error)
	ListOccurrences(ctx context.Context, filter OccurrenceFilter) ([]*models.Occurrence, error)
	// LoadExistingOccurrences returns live occurrences of an account with target dates in [from, to]
	LoadExistingOccurrences(ctx context.Context, accountID string, from, to time.Time) ([]*models.Occurrence, error)
	// SlotTaken reports whether a live occurrence holds exactly this slot. The planner calls it
	// on every accepted draft right before committing.
	SlotTaken(ctx context.Context, key models.SlotKey) (bool, error)

	// Job operations
	SaveJobResult(ctx context.Context, job *models.BulkJob) error
	GetJob(ctx context.Context, id string) (*models.BulkJob, error)

	// Maintenance
	Close() error
	Migrate() error
}

// PatternFilter defines filtering options for patterns
type PatternFilter struct {
	AccountID  string
	ActiveOnly bool
	Limit      int
}

// OccurrenceFilter defines filtering options for occurrences
type OccurrenceFilter struct {
	AccountID string
	PatternID *string
	ProjectID string
	Statuses  []models.OccurrenceStatus
	From      *time.Time // target date lower bound, inclusive
	To        *time.Time // target date upper bound, inclusive
	DueBefore *time.Time // scheduled_for upper bound, inclusive
	Limit     int
}

// Matches applies the filter in memory
func (f OccurrenceFilter) Matches(o *models.Occurrence) bool {
	if f.AccountID != "" && o.AccountID != f.AccountID {
		return false
	}
	if f.PatternID != nil && (o.PatternID == nil || *o.PatternID != *f.PatternID) {
		return false
	}
	if f.ProjectID != "" && o.ProjectID != f.ProjectID {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if o.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.From != nil && o.TargetDate.Before(*f.From) {
		return false
	}
	if f.To != nil && o.TargetDate.After(*f.To) {
		return false
	}
	if f.DueBefore != nil && o.ScheduledFor.After(*f.DueBefore) {
		return false
	}
	return true
}

// LiveStatuses are the statuses of occurrences that still hold their slot
var LiveStatuses = []models.OccurrenceStatus{
	models.OccurrenceStatusDraft,
	models.OccurrenceStatusQueued,
	models.OccurrenceStatusPublishing,
	models.OccurrenceStatusPublished,
	models.OccurrenceStatusFailed,
	models.OccurrenceStatusRetrying,
}
