package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/social-scheduler/internal/app"
	"github.com/social-scheduler/internal/config"
	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/internal/recurrence"
	"github.com/social-scheduler/pkg/logger"
)

var (
	cfgFile     string
	cfg         *config.Config
	log         *logger.Logger
	application *app.App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "social-scheduler",
		Short: "Recurring and bulk social post scheduler",
		Long: `Plans recurring and one-off social posts onto optimal time slots and
publishes them in bulk with retries.`,
		PersistentPreRunE:  initializeApp,
		PersistentPostRunE: shutdownApp,
		SilenceUsage:       true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")

	rootCmd.AddCommand(patternCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(occurrencesCmd())
	rootCmd.AddCommand(bulkCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(trackerCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
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

	application, err = app.Open(cmd.Context(), cfg, log)
	return err
}

func shutdownApp(cmd *cobra.Command, args []string) error {
	if application == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return application.Shutdown(ctx)
}

// parseDate parses YYYY-MM-DD as a UTC date
func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return recurrence.Day(t), nil
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parsePlatforms(list []string) []models.Platform {
	out := make([]models.Platform, 0, len(list))
	for _, p := range list {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, models.Platform(p))
		}
	}
	return out
}

func printOccurrences(occs []*models.Occurrence) {
	if len(occs) == 0 {
		fmt.Println("No occurrences.")
		return
	}
	fmt.Printf("%-36s  %-10s  %-10s  %-5s  %-10s  %4s  %s\n", "ID", "DATE", "PLATFORM", "TIME", "STATUS", "SEQ", "CONTENT")
	for _, o := range occs {
		fmt.Printf("%-36s  %-10s  %-10s  %-5s  %-10s  %4d  %s\n",
			o.ID, o.DateKey(), o.Platform, o.AssignedTime, o.Status, o.Sequence, truncateStr(o.PayloadRef, 40))
	}
}

// Helper function to truncate strings
func truncateStr(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
