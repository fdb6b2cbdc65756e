package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/internal/storage"
)

// ============ PATTERN COMMANDS ============

func patternCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pattern",
		Short: "Recurrence pattern commands",
	}

	cmd.AddCommand(patternCreateCmd())
	cmd.AddCommand(patternListCmd())
	cmd.AddCommand(patternShowCmd())
	cmd.AddCommand(patternPauseCmd())
	cmd.AddCommand(patternResumeCmd())
	cmd.AddCommand(patternUpdateCmd())
	cmd.AddCommand(patternDeleteCmd())
	return cmd
}

// patternFlags are shared by create and update
type patternFlags struct {
	name        string
	frequency   string
	interval    int
	daysOfWeek  []int
	dayOfMonth  int
	monthOfYear int
	cronExpr    string
	start       string
	endDate     string
	maxCount    int
	platforms   []string
	template    string

	skipWeekends bool
	maxPerDay    int
	optimize     bool
	minSpacing   time.Duration
	defaultTime  string
	split        bool
	timezone     string
}

func (f *patternFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.name, "name", "", "Pattern name")
	fl.StringVar(&f.frequency, "frequency", "daily", "daily, weekly, monthly, yearly or custom")
	fl.IntVar(&f.interval, "interval", 1, "Repeat every N periods")
	fl.IntSliceVar(&f.daysOfWeek, "days", nil, "Weekdays for weekly patterns (0=Sunday)")
	fl.IntVar(&f.dayOfMonth, "day-of-month", 0, "Day of month for monthly and yearly patterns")
	fl.IntVar(&f.monthOfYear, "month", 0, "Month for yearly patterns")
	fl.StringVar(&f.cronExpr, "cron", "", "Cron expression for custom patterns")
	fl.StringVar(&f.start, "start", "", "Start date YYYY-MM-DD (default today)")
	fl.StringVar(&f.endDate, "end-date", "", "Stop after this date")
	fl.IntVar(&f.maxCount, "max", 0, "Stop after this many occurrences")
	fl.StringSliceVar(&f.platforms, "platforms", nil, "Target platforms")
	fl.StringVar(&f.template, "template", "", "Content template")

	fl.BoolVar(&f.skipWeekends, "skip-weekends", false, "Never schedule on Saturday or Sunday")
	fl.IntVar(&f.maxPerDay, "max-per-day", 0, "Max occurrences per day (0 = unlimited)")
	fl.BoolVar(&f.optimize, "optimize", true, "Use the optimal posting times table")
	fl.DurationVar(&f.minSpacing, "min-spacing", 0, "Minimum gap between posts on one platform")
	fl.StringVar(&f.defaultTime, "default-time", "", "Time used when optimize is off (HH:MM)")
	fl.BoolVar(&f.split, "split-platforms", false, "Spread platforms of one date across days")
	fl.StringVar(&f.timezone, "timezone", "", "IANA timezone for dates and times")
}

// apply copies flags onto p. With onlyChanged set, flags the user did not pass are left alone.
func (f *patternFlags) apply(cmd *cobra.Command, p *models.RecurrencePattern, onlyChanged bool) error {
	set := func(name string) bool { return !onlyChanged || cmd.Flags().Changed(name) }

	if set("name") {
		p.Name = f.name
	}
	if set("frequency") {
		p.Frequency = models.Frequency(strings.ToLower(f.frequency))
	}
	if set("interval") {
		p.Interval = f.interval
	}
	if set("days") {
		p.DaysOfWeek = models.IntSlice(f.daysOfWeek)
	}
	if set("day-of-month") {
		p.DayOfMonth = f.dayOfMonth
	}
	if set("month") {
		p.MonthOfYear = f.monthOfYear
	}
	if set("cron") {
		p.CronExpr = f.cronExpr
	}
	if set("start") && f.start != "" {
		start, err := parseDate(f.start)
		if err != nil {
			return err
		}
		p.StartDate = start
	}
	if set("platforms") {
		p.Platforms = nil
		for _, pl := range parsePlatforms(f.platforms) {
			p.Platforms = append(p.Platforms, string(pl))
		}
	}
	if set("template") {
		p.ContentTemplate = f.template
	}

	switch {
	case cmd.Flags().Changed("end-date") && cmd.Flags().Changed("max"):
		return fmt.Errorf("--end-date and --max are mutually exclusive")
	case cmd.Flags().Changed("end-date"):
		end, err := optionalDate(f.endDate)
		if err != nil {
			return err
		}
		p.EndDate = end
		p.MaxOccurrences = 0
		p.EndType = models.EndOnDate
		if end == nil {
			p.EndType = models.EndNone
		}
	case cmd.Flags().Changed("max"):
		p.MaxOccurrences = f.maxCount
		p.EndDate = nil
		p.EndType = models.EndMaxOccurrences
		if f.maxCount == 0 {
			p.EndType = models.EndNone
		}
	}

	c := &p.Constraints
	if set("skip-weekends") {
		c.SkipWeekends = f.skipWeekends
	}
	if set("max-per-day") {
		c.MaxPerDay = f.maxPerDay
	}
	if set("optimize") {
		c.OptimizeTimings = f.optimize
	}
	if cmd.Flags().Changed("min-spacing") {
		c.MinSpacing = f.minSpacing
	}
	if cmd.Flags().Changed("default-time") {
		t, err := models.ParseTimeOfDay(f.defaultTime)
		if err != nil {
			return err
		}
		c.DefaultTime = t
	}
	if set("split-platforms") {
		c.SplitPlatforms = f.split
	}
	if cmd.Flags().Changed("timezone") {
		c.Timezone = f.timezone
	}
	return nil
}

func patternCreateCmd() *cobra.Command {
	var flags patternFlags
	var accountID string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a recurrence pattern",
		RunE: func(cmd *cobra.Command, args []string) error {
			defaults, err := cfg.Slots.Constraints()
			if err != nil {
				return err
			}
			p := &models.RecurrencePattern{
				AccountID:   accountID,
				Constraints: defaults,
			}
			if err := flags.apply(cmd, p, false); err != nil {
				return err
			}

			created, err := application.Planner.CreatePattern(cmd.Context(), p)
			if err != nil {
				return err
			}

			fmt.Printf("Pattern created: %s\n", created.ID)
			fmt.Printf("Run 'schedule expand %s' to generate occurrences.\n", created.ID)
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().StringVar(&accountID, "account", "", "Account ID (required)")
	cmd.MarkFlagRequired("account")
	cmd.MarkFlagRequired("platforms")
	return cmd
}

func patternListCmd() *cobra.Command {
	var accountID string
	var activeOnly bool
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recurrence patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			patterns, err := application.Planner.ListPatterns(cmd.Context(), storage.PatternFilter{
				AccountID:  accountID,
				ActiveOnly: activeOnly,
				Limit:      limit,
			})
			if err != nil {
				return err
			}

			if len(patterns) == 0 {
				fmt.Println("No patterns found.")
				return nil
			}

			fmt.Printf("%-36s  %-20s  %-8s  %-6s  %-20s  %5s  %s\n", "ID", "NAME", "FREQ", "ACTIVE", "PLATFORMS", "COUNT", "THROUGH")
			for _, p := range patterns {
				through := "-"
				if p.LastDate != nil {
					through = p.LastDate.Format(time.DateOnly)
				}
				fmt.Printf("%-36s  %-20s  %-8s  %-6t  %-20s  %5d  %s\n",
					p.ID, truncateStr(p.Name, 20), p.Frequency, p.IsActive,
					strings.Join(p.Platforms, ","), p.GeneratedCount, through)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Filter by account")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only active patterns")
	cmd.Flags().IntVar(&limit, "limit", 50, "Number of patterns to show")
	return cmd
}

func patternShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <pattern-id>",
		Short: "Show a pattern as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := application.Planner.GetPattern(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		},
	}
}

func patternPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <pattern-id>",
		Short: "Pause a pattern so it can be edited",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := application.Planner.PausePattern(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Pattern %s paused (version %d)\n", p.ID, p.Version)
			return nil
		},
	}
}

func patternResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <pattern-id>",
		Short: "Resume a paused pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := application.Planner.ResumePattern(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Pattern %s resumed (version %d)\n", p.ID, p.Version)
			return nil
		},
	}
}

func patternUpdateCmd() *cobra.Command {
	var flags patternFlags
	var version int

	cmd := &cobra.Command{
		Use:   "update <pattern-id>",
		Short: "Update a paused pattern",
		Long: `Updates the rule of a paused pattern. Only the flags given are changed.
Pass --version to fail if someone else changed the pattern since you read it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := application.Planner.GetPattern(ctx, args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("version") {
				p.Version = version
			}
			if err := flags.apply(cmd, p, true); err != nil {
				return err
			}

			updated, err := application.Planner.UpdatePattern(ctx, p)
			if err != nil {
				return err
			}
			fmt.Printf("Pattern %s updated (version %d)\n", updated.ID, updated.Version)
			fmt.Printf("Run 'schedule regenerate %s' to rebuild future drafts.\n", updated.ID)
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().IntVar(&version, "version", 0, "Expected current version")
	return cmd
}

func patternDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <pattern-id>",
		Short: "Delete a pattern and cancel its drafts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cancelled, err := application.Planner.DeletePattern(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Pattern %s deleted, %d draft(s) cancelled\n", args[0], cancelled)
			return nil
		},
	}
}
