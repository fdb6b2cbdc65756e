package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/internal/slots"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Publishing PublishingConfig `mapstructure:"publishing"`
	Slots      SlotsConfig      `mapstructure:"slots"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	LinkedIn   LinkedInConfig   `mapstructure:"linkedin"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Tracker    TrackerConfig    `mapstructure:"tracker"`
	Feeds      FeedsConfig      `mapstructure:"feeds"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or memory
	DSN    string `mapstructure:"dsn"`    // Connection string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// SchedulerConfig holds daemon settings
type SchedulerConfig struct {
	PublishCron string `mapstructure:"publish_cron"` // Publish due occurrences
	ExtendCron  string `mapstructure:"extend_cron"`  // Keep active patterns filled to the horizon
	HorizonDays int    `mapstructure:"horizon_days"`
	ExtendDays  int    `mapstructure:"extend_days"`
	DueBatch    int    `mapstructure:"due_batch"` // Max occurrences per publish run
	HealthAddr  string `mapstructure:"health_addr"`
}

// PublishingConfig holds bulk runner settings
type PublishingConfig struct {
	Workers        int           `mapstructure:"workers"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	RetryBase      time.Duration `mapstructure:"retry_base"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
	RetryJitter    float64       `mapstructure:"retry_jitter"`
	DryRun         bool          `mapstructure:"dry_run"` // Log instead of calling platforms
}

// SlotsConfig holds default constraints and the optimal posting times per platform.
// Optimal times are "HH:MM" or "HH:MM#rank"; without a rank the list position is used.
type SlotsConfig struct {
	SkipWeekends    bool                `mapstructure:"skip_weekends"`
	MaxPerDay       int                 `mapstructure:"max_per_day"`
	OptimizeTimings bool                `mapstructure:"optimize_timings"`
	MinSpacing      time.Duration       `mapstructure:"min_spacing"`
	DefaultTime     string              `mapstructure:"default_time"`
	SplitPlatforms  bool                `mapstructure:"split_platforms"`
	LookaheadDays   int                 `mapstructure:"lookahead_days"`
	Timezone        string              `mapstructure:"timezone"`
	OptimalTimes    map[string][]string `mapstructure:"optimal_times"`
}

// RateLimitConfig holds per-platform publish limits
type RateLimitConfig struct {
	PerHour map[string]int `mapstructure:"per_hour"`
}

// LinkedInConfig holds LinkedIn API settings
type LinkedInConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	AccessToken string        `mapstructure:"access_token"`
	AuthorURN   string        `mapstructure:"author_urn"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// WebhookConfig holds generic HTTP publisher endpoints keyed by platform
type WebhookConfig struct {
	Endpoints map[string]string `mapstructure:"endpoints"`
	Token     string            `mapstructure:"token"`
	Timeout   time.Duration     `mapstructure:"timeout"`
}

// TrackerConfig holds Google Sheets tracker settings
type TrackerConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	SpreadsheetID      string `mapstructure:"spreadsheet_id"`
	SheetName          string `mapstructure:"sheet_name"`
	CredentialsFile    string `mapstructure:"credentials_file"`
	ServiceAccountJSON string `mapstructure:"service_account_json"`
}

// FeedsConfig holds content import settings
type FeedsConfig struct {
	RSS    []RSSFeed     `mapstructure:"rss"`
	MaxAge time.Duration `mapstructure:"max_age"` // Skip feed items older than this
	Custom []string      `mapstructure:"custom"`  // Fixed texts imported as-is
}

// RSSFeed represents a single RSS feed
type RSSFeed struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in current directory and configs folder
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		// Also check user's home directory
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".social-scheduler"))
		}
	}

	// Environment variables
	v.SetEnvPrefix("SCHEDULER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	_ = v.BindEnv("database.driver", "SCHEDULER_DATABASE_DRIVER")
	_ = v.BindEnv("database.dsn", "SCHEDULER_DATABASE_DSN")
	_ = v.BindEnv("linkedin.enabled", "SCHEDULER_LINKEDIN_ENABLED")
	_ = v.BindEnv("linkedin.access_token", "SCHEDULER_LINKEDIN_ACCESS_TOKEN")
	_ = v.BindEnv("linkedin.author_urn", "SCHEDULER_LINKEDIN_AUTHOR_URN")
	_ = v.BindEnv("webhook.token", "SCHEDULER_WEBHOOK_TOKEN")
	_ = v.BindEnv("tracker.enabled", "SCHEDULER_TRACKER_ENABLED")
	_ = v.BindEnv("tracker.spreadsheet_id", "SCHEDULER_TRACKER_SPREADSHEET_ID")
	_ = v.BindEnv("tracker.credentials_file", "SCHEDULER_TRACKER_CREDENTIALS_FILE")
	_ = v.BindEnv("tracker.service_account_json", "SCHEDULER_TRACKER_SERVICE_ACCOUNT_JSON")
	_ = v.BindEnv("publishing.dry_run", "SCHEDULER_PUBLISHING_DRY_RUN")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/scheduler.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")

	// Scheduler defaults
	v.SetDefault("scheduler.publish_cron", "*/5 * * * *") // Every 5 minutes
	v.SetDefault("scheduler.extend_cron", "0 1 * * *")    // 1am daily
	v.SetDefault("scheduler.horizon_days", 30)
	v.SetDefault("scheduler.extend_days", 7)
	v.SetDefault("scheduler.due_batch", 100)
	v.SetDefault("scheduler.health_addr", ":8080")

	// Publishing defaults
	v.SetDefault("publishing.workers", 4)
	v.SetDefault("publishing.max_attempts", 3)
	v.SetDefault("publishing.attempt_timeout", "30s")
	v.SetDefault("publishing.retry_base", "2s")
	v.SetDefault("publishing.retry_max_delay", "1m")
	v.SetDefault("publishing.retry_jitter", 0.2)
	v.SetDefault("publishing.dry_run", false)

	// Slot defaults
	v.SetDefault("slots.optimize_timings", true)
	v.SetDefault("slots.min_spacing", "1h")
	v.SetDefault("slots.default_time", "09:00")
	v.SetDefault("slots.optimal_times", map[string][]string{
		"linkedin":  {"08:00", "12:00", "17:00"}, // Commute, lunch, end of workday
		"twitter":   {"09:00", "12:00", "15:00"},
		"facebook":  {"13:00", "09:00", "15:00"},
		"instagram": {"11:00", "14:00", "19:00"},
		"tiktok":    {"19:00", "12:00", "21:00"},
		"youtube":   {"15:00", "17:00", "12:00"},
	})

	// Rate limit defaults
	v.SetDefault("rate_limit.per_hour", map[string]int{
		"linkedin": 20,
		"twitter":  50,
	})

	// LinkedIn defaults
	v.SetDefault("linkedin.enabled", false)
	v.SetDefault("linkedin.base_url", "https://api.linkedin.com")
	v.SetDefault("linkedin.timeout", "30s")

	// Webhook defaults
	v.SetDefault("webhook.timeout", "15s")

	// Tracker defaults
	v.SetDefault("tracker.enabled", false)
	v.SetDefault("tracker.sheet_name", "Jobs")

	// Feed defaults
	v.SetDefault("feeds.max_age", "168h")
}

// Constraints converts the slot defaults into scheduling constraints
func (s SlotsConfig) Constraints() (models.Constraints, error) {
	c := models.Constraints{
		SkipWeekends:    s.SkipWeekends,
		MaxPerDay:       s.MaxPerDay,
		OptimizeTimings: s.OptimizeTimings,
		MinSpacing:      s.MinSpacing,
		SplitPlatforms:  s.SplitPlatforms,
		LookaheadDays:   s.LookaheadDays,
		Timezone:        s.Timezone,
	}
	if s.DefaultTime != "" {
		t, err := models.ParseTimeOfDay(s.DefaultTime)
		if err != nil {
			return models.Constraints{}, fmt.Errorf("slots.default_time: %w", err)
		}
		c.DefaultTime = t
	}
	return c, nil
}

// Table parses the optimal posting times
func (s SlotsConfig) Table() (slots.Table, error) {
	table := make(slots.Table, len(s.OptimalTimes))
	for name, entries := range s.OptimalTimes {
		list := make([]slots.Slot, 0, len(entries))
		for i, entry := range entries {
			slot, err := parseSlot(entry, i+1)
			if err != nil {
				return nil, fmt.Errorf("slots.optimal_times.%s[%d]: %w", name, i, err)
			}
			list = append(list, slot)
		}
		table[models.Platform(strings.ToLower(name))] = list
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func parseSlot(entry string, defaultRank int) (slots.Slot, error) {
	at, rankStr, hasRank := strings.Cut(strings.TrimSpace(entry), "#")
	t, err := models.ParseTimeOfDay(at)
	if err != nil {
		return slots.Slot{}, err
	}
	rank := defaultRank
	if hasRank {
		rank, err = strconv.Atoi(rankStr)
		if err != nil || rank < 1 {
			return slots.Slot{}, fmt.Errorf("invalid rank %q", rankStr)
		}
	}
	return slots.Slot{At: t, Rank: rank}, nil
}

// PublisherPlatforms lists platforms that have a publisher configured, sorted
func (c *Config) PublisherPlatforms() []string {
	var out []string
	if c.LinkedIn.Enabled {
		out = append(out, string(models.PlatformLinkedIn))
	}
	for p := range c.Webhook.Endpoints {
		if p != string(models.PlatformLinkedIn) || !c.LinkedIn.Enabled {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("database.driver must be sqlite or memory, got %q", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Scheduler.HorizonDays < 1 {
		return fmt.Errorf("scheduler.horizon_days must be >= 1")
	}
	if c.Publishing.Workers < 1 {
		return fmt.Errorf("publishing.workers must be >= 1")
	}
	if c.Publishing.MaxAttempts < 1 {
		return fmt.Errorf("publishing.max_attempts must be >= 1")
	}
	if c.Publishing.RetryJitter < 0 || c.Publishing.RetryJitter > 1 {
		return fmt.Errorf("publishing.retry_jitter must be within [0, 1]")
	}
	if c.LinkedIn.Enabled && c.LinkedIn.AccessToken == "" {
		return fmt.Errorf("linkedin.access_token is required when linkedin is enabled")
	}
	if c.Tracker.Enabled && c.Tracker.SpreadsheetID == "" {
		return fmt.Errorf("tracker.spreadsheet_id is required when tracker is enabled")
	}
	if _, err := c.Slots.Constraints(); err != nil {
		return err
	}
	if _, err := c.Slots.Table(); err != nil {
		return err
	}
	return nil
}
