package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/social-scheduler/internal/agent/planner"
	"github.com/social-scheduler/internal/config"
	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/pkg/clock"
	"github.com/social-scheduler/pkg/logger"
)

const testConfig = `
database:
  driver: memory
scheduler:
  horizon_days: 3
publishing:
  dry_run: true
  retry_base: 1ms
slots:
  optimal_times:
    linkedin: ["08:00", "12:00"]
    twitter: ["10:00"]
`

func openTestApp(t *testing.T) (*App, *clock.Fixed) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	clk := clock.NewFixed(time.Date(2026, 1, 5, 7, 0, 0, 0, time.UTC))
	a, err := Open(context.Background(), cfg, logger.Nop(), WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a, clk
}

func TestExtendActiveThenPublishDue(t *testing.T) {
	a, clk := openTestApp(t)
	ctx := context.Background()

	_, err := a.Planner.CreatePattern(ctx, &models.RecurrencePattern{
		AccountID: "acct",
		Name:      "daily",
		Frequency: models.FrequencyDaily,
		Interval:  1,
		Platforms: models.StringSlice{"linkedin"},
		Constraints: models.Constraints{
			OptimizeTimings: true,
			MinSpacing:      time.Hour,
		},
	})
	require.NoError(t, err)

	ext, err := a.ExtendActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ext.Patterns)
	assert.Equal(t, 3, ext.Scheduled)
	assert.Empty(t, ext.Errors)

	// a second pass finds the horizon already covered
	ext, err = a.ExtendActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, ext.Scheduled)

	clk.Set(time.Date(2026, 1, 5, 23, 0, 0, 0, time.UTC))
	jobID, err := a.PublishDue(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	job, err := a.Runner.Wait(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	require.Len(t, job.Items, 1)
	assert.Equal(t, 1, job.Succeeded)

	stored, err := a.Repo.GetOccurrence(ctx, job.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.OccurrenceStatusPublished, stored.Status)
	assert.Equal(t, "dryrun:"+stored.ID, stored.ExternalPostID)

	jobID, err = a.PublishDue(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobID)
}

func TestImportFeedsWithoutSources(t *testing.T) {
	a, _ := openTestApp(t)

	res, errs, err := a.ImportFeeds(context.Background(), planner.BulkRequest{
		AccountID: "acct",
		Platforms: []models.Platform{models.PlatformTwitter},
	}, 0)
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Empty(t, res.Scheduled)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{Database: config.DatabaseConfig{Driver: "postgres"}}, logger.Nop())
	assert.Error(t, err)
}
