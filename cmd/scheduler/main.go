package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/social-scheduler/internal/app"
	"github.com/social-scheduler/internal/config"
	"github.com/social-scheduler/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "social-scheduler-daemon",
		Short: "Background scheduler for recurring and bulk posts",
		Long: `Keeps active patterns filled to the horizon and publishes due occurrences
in bulk. This daemon should be run as a service for autonomous operation.`,
		RunE:         runScheduler,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScheduler(cmd *cobra.Command, args []string) error {
	var err error

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	log.Info().Msg("Starting social scheduler daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}

	srv := startHealthServer(cfg.Scheduler.HealthAddr, a)

	c := cron.New(cron.WithLogger(cronLogger{log}), cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})))

	extend := func() {
		log.Info().Msg("Running scheduled extension")
		res, err := a.ExtendActive(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Scheduled extension failed")
			return
		}
		for _, e := range res.Errors {
			log.Error().Err(e).Msg("Pattern extension error")
		}
		log.Info().
			Int("patterns", res.Patterns).
			Int("scheduled", res.Scheduled).
			Int("rejected", res.Rejected).
			Int("errors", len(res.Errors)).
			Msg("Scheduled extension completed")
	}

	if _, err := c.AddFunc(cfg.Scheduler.ExtendCron, extend); err != nil {
		return fmt.Errorf("failed to schedule extend job: %w", err)
	}
	log.Info().Str("cron", cfg.Scheduler.ExtendCron).Msg("Extend job scheduled")

	_, err = c.AddFunc(cfg.Scheduler.PublishCron, func() {
		jobID, err := a.PublishDue(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Scheduled publish failed")
			return
		}
		if jobID == "" {
			log.Debug().Msg("No occurrences due")
			return
		}
		log.Info().Str("job_id", jobID).Msg("Scheduled publish started")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule publish job: %w", err)
	}
	log.Info().Str("cron", cfg.Scheduler.PublishCron).Msg("Publish job scheduled")

	// Fill the horizon right away instead of waiting for the first tick
	extend()

	c.Start()
	log.Info().Msg("Scheduler started")

	<-ctx.Done()

	log.Info().Msg("Shutting down scheduler")
	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Health server shutdown failed")
	}
	return a.Shutdown(shutdownCtx)
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// healthStatus is the /health response body
type healthStatus struct {
	Status     string   `json:"status"`
	ActiveJobs []string `json:"active_jobs"`
	Time       string   `json:"time"`
}

// startHealthServer starts a simple HTTP server for health checks
func startHealthServer(addr string, a *app.App) *http.Server {
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthStatus{
			Status:     "ok",
			ActiveJobs: a.Runner.Jobs().Active(),
			Time:       a.Clock.Now().UTC().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Social Scheduler"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", addr).Msg("Health check server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Health server failed")
		}
	}()
	return srv
}
