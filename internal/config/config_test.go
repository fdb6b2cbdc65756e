package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/internal/slots"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "logging:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 30, cfg.Scheduler.HorizonDays)
	assert.Equal(t, 4, cfg.Publishing.Workers)
	assert.Equal(t, 3, cfg.Publishing.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Publishing.AttemptTimeout)
	assert.Equal(t, time.Hour, cfg.Slots.MinSpacing)
	assert.True(t, cfg.Slots.OptimizeTimings)
	require.NoError(t, cfg.Validate())
}

func TestLoadReadsFileAndEnvironment(t *testing.T) {
	t.Setenv("SCHEDULER_DATABASE_DSN", "/tmp/override.db")
	path := writeConfig(t, `
publishing:
  workers: 8
  attempt_timeout: 10s
slots:
  max_per_day: 2
  skip_weekends: true
  default_time: "10:30"
  optimal_times:
    linkedin: ["09:00#2", "13:00#1"]
webhook:
  endpoints:
    twitter: https://hooks.example.com/twitter
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.db", cfg.Database.DSN)
	assert.Equal(t, 8, cfg.Publishing.Workers)
	assert.Equal(t, 10*time.Second, cfg.Publishing.AttemptTimeout)
	assert.Equal(t, "https://hooks.example.com/twitter", cfg.Webhook.Endpoints["twitter"])

	c, err := cfg.Slots.Constraints()
	require.NoError(t, err)
	assert.True(t, c.SkipWeekends)
	assert.Equal(t, 2, c.MaxPerDay)
	assert.Equal(t, models.NewTimeOfDay(10, 30), c.DefaultTime)

	table, err := cfg.Slots.Table()
	require.NoError(t, err)
	assert.Equal(t, []slots.Slot{
		{At: models.NewTimeOfDay(9, 0), Rank: 2},
		{At: models.NewTimeOfDay(13, 0), Rank: 1},
	}, table[models.PlatformLinkedIn])
	ranked, ok := table.Ranked(models.PlatformLinkedIn)
	require.True(t, ok)
	assert.Equal(t, models.NewTimeOfDay(13, 0), ranked[0])
}

func TestSlotTableRankDefaultsToPosition(t *testing.T) {
	s := SlotsConfig{OptimalTimes: map[string][]string{"Twitter": {"09:00", "15:00"}}}
	table, err := s.Table()
	require.NoError(t, err)
	assert.Equal(t, []slots.Slot{
		{At: models.NewTimeOfDay(9, 0), Rank: 1},
		{At: models.NewTimeOfDay(15, 0), Rank: 2},
	}, table[models.PlatformTwitter])
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:   DatabaseConfig{Driver: "sqlite", DSN: "x.db"},
			Scheduler:  SchedulerConfig{HorizonDays: 7},
			Publishing: PublishingConfig{Workers: 1, MaxAttempts: 3, RetryJitter: 0.2},
			Slots:      SlotsConfig{DefaultTime: "09:00"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(c *Config){
		"driver":        func(c *Config) { c.Database.Driver = "postgres" },
		"horizon":       func(c *Config) { c.Scheduler.HorizonDays = 0 },
		"workers":       func(c *Config) { c.Publishing.Workers = 0 },
		"jitter":        func(c *Config) { c.Publishing.RetryJitter = 2 },
		"linkedin":      func(c *Config) { c.LinkedIn.Enabled = true },
		"tracker":       func(c *Config) { c.Tracker.Enabled = true },
		"default time":  func(c *Config) { c.Slots.DefaultTime = "9am" },
		"optimal times": func(c *Config) { c.Slots.OptimalTimes = map[string][]string{"linkedin": {"25:00"}} },
		"rank":          func(c *Config) { c.Slots.OptimalTimes = map[string][]string{"linkedin": {"09:00#0"}} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestPublisherPlatforms(t *testing.T) {
	c := &Config{
		LinkedIn: LinkedInConfig{Enabled: true},
		Webhook:  WebhookConfig{Endpoints: map[string]string{"twitter": "a", "linkedin": "b", "facebook": "c"}},
	}
	assert.Equal(t, []string{"facebook", "linkedin", "twitter"}, c.PublisherPlatforms())
}
