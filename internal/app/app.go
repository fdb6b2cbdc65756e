// Package app wires configuration into the storage, planner, publisher and tracker
// components shared by the CLI and the daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/social-scheduler/internal/agent/planner"
	"github.com/social-scheduler/internal/agent/publisher"
	"github.com/social-scheduler/internal/config"
	"github.com/social-scheduler/internal/content"
	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/internal/platform"
	"github.com/social-scheduler/internal/platform/dryrun"
	"github.com/social-scheduler/internal/platform/linkedin"
	"github.com/social-scheduler/internal/platform/webhook"
	"github.com/social-scheduler/internal/source"
	"github.com/social-scheduler/internal/source/custom"
	"github.com/social-scheduler/internal/source/rss"
	"github.com/social-scheduler/internal/storage"
	"github.com/social-scheduler/internal/storage/memory"
	"github.com/social-scheduler/internal/storage/sqlite"
	"github.com/social-scheduler/internal/tracker"
	"github.com/social-scheduler/pkg/clock"
	"github.com/social-scheduler/pkg/logger"
	"github.com/social-scheduler/pkg/ratelimit"
)

// App holds the wired components
type App struct {
	Config  *config.Config
	Log     *logger.Logger
	Clock   clock.Clock
	Repo    storage.Repository
	Planner *planner.Planner
	Runner  *publisher.Runner
	Router  *platform.Router
	Sources *source.Manager
	Tracker *tracker.SheetsTracker

	cancel context.CancelFunc
}

// Option customizes Open
type Option func(*options)

type options struct {
	clock     clock.Clock
	publisher platform.Publisher
	jitter    func() float64
}

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithPublisher bypasses the configured platform publishers
func WithPublisher(p platform.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithJitter sets the retry jitter source
func WithJitter(f func() float64) Option {
	return func(o *options) { o.jitter = f }
}

// Open builds every component from cfg. Background jobs live until Shutdown.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...Option) (*App, error) {
	o := options{clock: clock.Real{}}
	for _, opt := range opts {
		opt(&o)
	}

	repo, err := openRepository(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	table, err := cfg.Slots.Table()
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("invalid slot table: %w", err)
	}
	constraints, err := cfg.Slots.Constraints()
	if err != nil {
		repo.Close()
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Log:     log,
		Clock:   o.clock,
		Repo:    repo,
		Router:  newRouter(cfg, log),
		Sources: newSources(cfg.Feeds, log),
	}

	a.Planner = planner.New(repo, table, o.clock, planner.Config{
		HorizonDays: cfg.Scheduler.HorizonDays,
		Constraints: constraints,
	}, log)

	var pub platform.Publisher = a.Router
	if o.publisher != nil {
		pub = o.publisher
	}

	runnerOpts := []publisher.Option{
		publisher.WithClock(o.clock),
		publisher.WithLimiter(ratelimit.NewPerHourLimiter(cfg.RateLimit.PerHour)),
	}
	if o.jitter != nil {
		runnerOpts = append(runnerOpts, publisher.WithJitter(o.jitter))
	}

	a.Tracker, err = tracker.NewSheetsTracker(ctx, cfg.Tracker, log)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create tracker")
	} else if a.Tracker != nil {
		runnerOpts = append(runnerOpts, publisher.WithSink(a.Tracker))
		log.Info().Msg("Google Sheets tracker enabled")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.Runner = publisher.NewRunner(runCtx, content.NewStoreProvider(repo), pub, repo, publisher.Options{
		Workers:        cfg.Publishing.Workers,
		MaxAttempts:    cfg.Publishing.MaxAttempts,
		AttemptTimeout: cfg.Publishing.AttemptTimeout,
		RetryBase:      cfg.Publishing.RetryBase,
		RetryMaxDelay:  cfg.Publishing.RetryMaxDelay,
		RetryJitter:    cfg.Publishing.RetryJitter,
	}, log, runnerOpts...)

	return a, nil
}

func openRepository(cfg config.DatabaseConfig, log *logger.Logger) (storage.Repository, error) {
	switch cfg.Driver {
	case "memory":
		log.Info().Msg("Using in-memory storage")
		return memory.New(), nil
	case "sqlite", "":
		if dir := filepath.Dir(cfg.DSN); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		log.Info().Str("dsn", cfg.DSN).Msg("Using SQLite storage")
		repo, err := sqlite.New(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return repo, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

func newRouter(cfg *config.Config, log *logger.Logger) *platform.Router {
	router := platform.NewRouter()
	if cfg.Publishing.DryRun {
		router.SetFallback(dryrun.New(log))
		log.Info().Msg("Dry run enabled, nothing will be posted")
		return router
	}

	for name, url := range cfg.Webhook.Endpoints {
		router.Register(models.Platform(name), webhook.NewClient(webhook.Config{
			URL:     url,
			Token:   cfg.Webhook.Token,
			Timeout: cfg.Webhook.Timeout,
		}, log))
	}
	if cfg.LinkedIn.Enabled {
		router.Register(models.PlatformLinkedIn, linkedin.NewClient(linkedin.Config{
			AccessToken: cfg.LinkedIn.AccessToken,
			AuthorURN:   cfg.LinkedIn.AuthorURN,
			BaseURL:     cfg.LinkedIn.BaseURL,
			Timeout:     cfg.LinkedIn.Timeout,
		}, log))
	}
	log.Info().Interface("platforms", router.Platforms()).Msg("Publishers registered")
	return router
}

func newSources(cfg config.FeedsConfig, log *logger.Logger) *source.Manager {
	m := source.NewManager()
	for _, src := range rss.NewMultiple(cfg, log) {
		m.Register(src)
	}
	if len(cfg.Custom) > 0 {
		m.Register(custom.New(cfg, log))
	}
	return m
}

// PublishDue submits every draft occurrence scheduled at or before now as one bulk job.
// It returns an empty job ID when nothing is due.
func (a *App) PublishDue(ctx context.Context) (string, error) {
	now := a.Clock.Now()
	due, err := a.Repo.ListOccurrences(ctx, storage.OccurrenceFilter{
		Statuses:  []models.OccurrenceStatus{models.OccurrenceStatusDraft},
		DueBefore: &now,
		Limit:     a.Config.Scheduler.DueBatch,
	})
	if err != nil {
		return "", fmt.Errorf("failed to list due occurrences: %w", err)
	}
	if len(due) == 0 {
		return "", nil
	}
	return a.Runner.Run(ctx, due)
}

// ExtendResult summarizes one ExtendActive pass
type ExtendResult struct {
	Patterns  int
	Scheduled int
	Rejected  int
	Errors    []error
}

// ExtendActive keeps every active pattern filled to the configured horizon. A failing
// pattern does not stop the others.
func (a *App) ExtendActive(ctx context.Context) (*ExtendResult, error) {
	patterns, err := a.Repo.ListPatterns(ctx, storage.PatternFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}

	out := &ExtendResult{Patterns: len(patterns)}
	for _, p := range patterns {
		res, err := a.Planner.ExpandAndSchedule(ctx, p.ID, a.Config.Scheduler.HorizonDays)
		if err != nil {
			out.Errors = append(out.Errors, fmt.Errorf("pattern %s: %w", p.ID, err))
			continue
		}
		out.Scheduled += len(res.Scheduled)
		out.Rejected += len(res.Rejected)
	}
	return out, nil
}

// ImportFeeds fetches every configured source and schedules the items as a bulk project.
// Source errors are returned alongside a successful result.
func (a *App) ImportFeeds(ctx context.Context, req planner.BulkRequest, limit int) (*planner.ScheduleResult, []error, error) {
	items, fetchErrs := a.Sources.FetchAll(ctx)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	if len(items) == 0 {
		return &planner.ScheduleResult{}, fetchErrs, nil
	}

	req.Items = make([]planner.BulkItem, 0, len(items))
	for _, it := range items {
		req.Items = append(req.Items, planner.BulkItem{PayloadRef: it.PayloadRef()})
	}
	res, err := a.Planner.ScheduleBulk(ctx, req)
	return res, fetchErrs, err
}

// Shutdown stops running jobs, waits for them to record their results and closes storage
func (a *App) Shutdown(ctx context.Context) error {
	active := a.Runner.Jobs().Active()
	sort.Strings(active)
	for _, id := range active {
		_ = a.Runner.Cancel(id)
	}
	var errs []error
	for _, id := range active {
		if _, err := a.Runner.Wait(ctx, id); err != nil && !errors.Is(err, publisher.ErrJobNotFound) {
			errs = append(errs, err)
		}
	}
	a.cancel()
	if err := a.Repo.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
