// Package storagetest holds behaviour checks shared by every storage.Repository implementation.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/internal/storage"
)

// Factory returns a fresh, migrated repository
type Factory func(t *testing.T) storage.Repository

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newPattern(id string) *models.RecurrencePattern {
	return &models.RecurrencePattern{
		ID:        id,
		AccountID: "acct",
		Name:      "weekly tips",
		IsActive:  true,
		Frequency: models.FrequencyWeekly,
		Interval:  1,
		StartDate: day(2026, 1, 1),
		Platforms: models.StringSlice{"linkedin"},
		Constraints: models.Constraints{
			MaxPerDay:  2,
			MinSpacing: time.Hour,
		},
	}
}

func newOccurrence(id string, date time.Time, tod models.TimeOfDay) *models.Occurrence {
	return &models.Occurrence{
		ID:           id,
		AccountID:    "acct",
		Platform:     models.PlatformLinkedIn,
		TargetDate:   date,
		AssignedTime: tod,
		ScheduledFor: date.Add(time.Duration(tod) * time.Minute),
		Status:       models.OccurrenceStatusDraft,
	}
}

// Run executes the shared checks against repositories built by newRepo
func Run(t *testing.T, newRepo Factory) {
	t.Run("pattern round trip", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		p := newPattern("p1")
		p.DaysOfWeek = models.IntSlice{1, 3}
		require.NoError(t, repo.CreatePattern(ctx, p))

		got, err := repo.GetPattern(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Version)
		assert.Equal(t, models.IntSlice{1, 3}, got.DaysOfWeek)
		assert.Equal(t, time.Hour, got.Constraints.MinSpacing)
		assert.True(t, got.IsActive)

		_, err = repo.GetPattern(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("optimistic pattern update", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		p := newPattern("p1")
		require.NoError(t, repo.CreatePattern(ctx, p))

		p.IsActive = false
		require.NoError(t, repo.UpdatePattern(ctx, p, 1))
		assert.Equal(t, 2, p.Version)

		stale := newPattern("p1")
		err := repo.UpdatePattern(ctx, stale, 1)
		assert.ErrorIs(t, err, storage.ErrVersionConflict)

		got, err := repo.GetPattern(ctx, "p1")
		require.NoError(t, err)
		assert.False(t, got.IsActive)
		assert.Equal(t, 2, got.Version)

		err = repo.UpdatePattern(ctx, newPattern("nope"), 1)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("list and delete patterns", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.CreatePattern(ctx, newPattern("a")))
		paused := newPattern("b")
		require.NoError(t, repo.CreatePattern(ctx, paused))
		paused.IsActive = false
		require.NoError(t, repo.UpdatePattern(ctx, paused, 1))

		all, err := repo.ListPatterns(ctx, storage.PatternFilter{AccountID: "acct"})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		active, err := repo.ListPatterns(ctx, storage.PatternFilter{ActiveOnly: true})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "a", active[0].ID)

		require.NoError(t, repo.DeletePattern(ctx, "a", nil))
		assert.ErrorIs(t, repo.DeletePattern(ctx, "a", nil), storage.ErrNotFound)
	})

	t.Run("pattern batch is all or nothing", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		p := newPattern("p1")
		require.NoError(t, repo.CreatePattern(ctx, p))

		mark := day(2026, 1, 11)
		p.GeneratedCount = 2
		p.LastDate = &mark
		a := newOccurrence("a", day(2026, 1, 5), models.NewTimeOfDay(9, 0))
		b := newOccurrence("b", day(2026, 1, 6), models.NewTimeOfDay(9, 0))
		require.NoError(t, repo.SavePatternOccurrences(ctx, p, 1, []*models.Occurrence{a, b}))
		assert.Equal(t, 2, p.Version)

		got, err := repo.GetPattern(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 2, got.GeneratedCount)
		require.NotNil(t, got.LastDate)
		assert.True(t, mark.Equal(*got.LastDate))

		stale := newPattern("p1")
		stale.GeneratedCount = 9
		c := newOccurrence("c", day(2026, 1, 7), models.NewTimeOfDay(9, 0))
		err = repo.SavePatternOccurrences(ctx, stale, 1, []*models.Occurrence{c})
		assert.ErrorIs(t, err, storage.ErrVersionConflict)
		assert.Equal(t, 1, stale.Version)

		_, err = repo.GetOccurrence(ctx, "c")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		got, err = repo.GetPattern(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 2, got.GeneratedCount)
	})

	t.Run("delete pattern cancels in the same step", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.CreatePattern(ctx, newPattern("p1")))
		o := newOccurrence("o1", day(2026, 1, 5), models.NewTimeOfDay(9, 0))
		require.NoError(t, repo.SaveOccurrences(ctx, []*models.Occurrence{o}))

		o.Status = models.OccurrenceStatusCancelled
		assert.ErrorIs(t, repo.DeletePattern(ctx, "missing", []*models.Occurrence{o}), storage.ErrNotFound)
		got, err := repo.GetOccurrence(ctx, "o1")
		require.NoError(t, err)
		assert.Equal(t, models.OccurrenceStatusDraft, got.Status)

		require.NoError(t, repo.DeletePattern(ctx, "p1", []*models.Occurrence{o}))
		got, err = repo.GetOccurrence(ctx, "o1")
		require.NoError(t, err)
		assert.Equal(t, models.OccurrenceStatusCancelled, got.Status)
	})

	t.Run("project round trip", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		project := &models.Project{
			ID:          "launch",
			AccountID:   "acct",
			Platforms:   models.StringSlice{"linkedin", "twitter"},
			Constraints: models.Constraints{SkipWeekends: true, MaxPerDay: 1},
		}
		o := newOccurrence("o1", day(2026, 1, 5), models.NewTimeOfDay(9, 0))
		o.ProjectID = "launch"
		require.NoError(t, repo.SaveProjectOccurrences(ctx, project, []*models.Occurrence{o}))

		got, err := repo.GetProject(ctx, "launch")
		require.NoError(t, err)
		assert.Equal(t, "acct", got.AccountID)
		assert.Equal(t, models.StringSlice{"linkedin", "twitter"}, got.Platforms)
		assert.True(t, got.Constraints.SkipWeekends)
		assert.Equal(t, 1, got.Constraints.MaxPerDay)

		project.Constraints.MaxPerDay = 3
		require.NoError(t, repo.SaveProjectOccurrences(ctx, project, nil))
		got, err = repo.GetProject(ctx, "launch")
		require.NoError(t, err)
		assert.Equal(t, 3, got.Constraints.MaxPerDay)

		byProject, err := repo.ListOccurrences(ctx, storage.OccurrenceFilter{ProjectID: "launch"})
		require.NoError(t, err)
		assert.Len(t, byProject, 1)

		_, err = repo.GetProject(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("occurrence upsert and filters", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		pid := "p1"
		o1 := newOccurrence("o1", day(2026, 1, 5), models.NewTimeOfDay(9, 0))
		o1.PatternID = &pid
		o2 := newOccurrence("o2", day(2026, 1, 6), models.NewTimeOfDay(10, 0))
		o2.ProjectID = "launch"
		o3 := newOccurrence("o3", day(2026, 1, 7), models.NewTimeOfDay(11, 0))
		o3.Status = models.OccurrenceStatusCancelled
		require.NoError(t, repo.SaveOccurrences(ctx, []*models.Occurrence{o3, o2, o1}))

		all, err := repo.ListOccurrences(ctx, storage.OccurrenceFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"o1", "o2", "o3"}, []string{all[0].ID, all[1].ID, all[2].ID})

		byPattern, err := repo.ListOccurrences(ctx, storage.OccurrenceFilter{PatternID: &pid})
		require.NoError(t, err)
		require.Len(t, byPattern, 1)
		assert.Equal(t, "o1", byPattern[0].ID)

		byProject, err := repo.ListOccurrences(ctx, storage.OccurrenceFilter{ProjectID: "launch"})
		require.NoError(t, err)
		require.Len(t, byProject, 1)
		assert.Equal(t, "o2", byProject[0].ID)

		due := day(2026, 1, 6).Add(12 * time.Hour)
		dueList, err := repo.ListOccurrences(ctx, storage.OccurrenceFilter{
			DueBefore: &due,
			Statuses:  []models.OccurrenceStatus{models.OccurrenceStatusDraft},
		})
		require.NoError(t, err)
		assert.Len(t, dueList, 2)

		o1.Status = models.OccurrenceStatusPublished
		o1.ExternalPostID = "urn:li:share:1"
		require.NoError(t, repo.SaveOccurrences(ctx, []*models.Occurrence{o1}))
		got, err := repo.GetOccurrence(ctx, "o1")
		require.NoError(t, err)
		assert.Equal(t, models.OccurrenceStatusPublished, got.Status)
		assert.Equal(t, "urn:li:share:1", got.ExternalPostID)
		assert.Equal(t, models.NewTimeOfDay(9, 0), got.AssignedTime)

		_, err = repo.GetOccurrence(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("existing occurrences exclude cancelled", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		live := newOccurrence("live", day(2026, 2, 2), models.NewTimeOfDay(9, 0))
		gone := newOccurrence("gone", day(2026, 2, 3), models.NewTimeOfDay(9, 0))
		gone.Status = models.OccurrenceStatusCancelled
		other := newOccurrence("other", day(2026, 2, 2), models.NewTimeOfDay(9, 0))
		other.AccountID = "someone-else"
		outside := newOccurrence("outside", day(2026, 3, 1), models.NewTimeOfDay(9, 0))
		require.NoError(t, repo.SaveOccurrences(ctx, []*models.Occurrence{live, gone, other, outside}))

		got, err := repo.LoadExistingOccurrences(ctx, "acct", day(2026, 2, 1), day(2026, 2, 28))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "live", got[0].ID)
	})

	t.Run("slot lookup", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		o := newOccurrence("o1", day(2026, 2, 2), models.NewTimeOfDay(9, 0))
		require.NoError(t, repo.SaveOccurrences(ctx, []*models.Occurrence{o}))

		taken, err := repo.SlotTaken(ctx, o.Key())
		require.NoError(t, err)
		assert.True(t, taken)

		other := o.Key()
		other.Time = models.NewTimeOfDay(10, 0)
		taken, err = repo.SlotTaken(ctx, other)
		require.NoError(t, err)
		assert.False(t, taken)

		o.Status = models.OccurrenceStatusCancelled
		require.NoError(t, repo.SaveOccurrences(ctx, []*models.Occurrence{o}))
		taken, err = repo.SlotTaken(ctx, o.Key())
		require.NoError(t, err)
		assert.False(t, taken)
	})

	t.Run("job result", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		a := newOccurrence("a", day(2026, 2, 2), models.NewTimeOfDay(9, 0))
		b := newOccurrence("b", day(2026, 2, 3), models.NewTimeOfDay(9, 0))
		a.Status = models.OccurrenceStatusPublished
		b.Status = models.OccurrenceStatusFailed
		b.LastError = "boom"
		finished := day(2026, 2, 3)
		job := &models.BulkJob{
			ID:         "job-1",
			ItemIDs:    models.StringSlice{"b", "a"},
			Status:     models.JobStatusCompleted,
			Succeeded:  1,
			Failed:     1,
			CreatedAt:  day(2026, 2, 1),
			FinishedAt: &finished,
			Items:      []*models.Occurrence{a, b},
		}
		require.NoError(t, repo.SaveJobResult(ctx, job))

		got, err := repo.GetJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, got.Status)
		assert.Equal(t, 1, got.Succeeded)
		assert.Equal(t, 1, got.Failed)
		require.Len(t, got.Items, 2)
		assert.Equal(t, "b", got.Items[0].ID)
		assert.Equal(t, "boom", got.Items[0].LastError)
		assert.Equal(t, models.OccurrenceStatusPublished, got.Items[1].Status)

		_, err = repo.GetJob(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}
