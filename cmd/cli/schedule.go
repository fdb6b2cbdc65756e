package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/social-scheduler/internal/agent/planner"
	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/internal/storage"
)

// ============ SCHEDULE COMMANDS ============

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Occurrence scheduling commands",
	}

	cmd.AddCommand(scheduleExpandCmd())
	cmd.AddCommand(scheduleExtendCmd())
	cmd.AddCommand(scheduleBulkCmd())
	cmd.AddCommand(scheduleRegenerateCmd())
	return cmd
}

func printResult(res *planner.ScheduleResult) {
	printOccurrences(res.Scheduled)
	fmt.Printf("\nScheduled: %d\n", len(res.Scheduled))
	if len(res.Rejected) > 0 {
		fmt.Printf("Rejected:  %d\n", len(res.Rejected))
		for _, r := range res.Rejected {
			fmt.Printf("  - %s %s: %v\n", r.Draft.DateKey(), r.Draft.Platform, r.Err)
		}
	}
}

func scheduleExpandCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "expand <pattern-id>",
		Short: "Generate a pattern's occurrences up to the horizon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := application.Planner.ExpandAndSchedule(cmd.Context(), args[0], days)
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Horizon in days (default scheduler.horizon_days)")
	return cmd
}

func scheduleExtendCmd() *cobra.Command {
	var patternID, projectID, start string
	var days int
	var refs []string

	cmd := &cobra.Command{
		Use:   "extend",
		Short: "Extend a pattern or project past its latest occurrence",
		RunE: func(cmd *cobra.Command, args []string) error {
			startDate, err := optionalDate(start)
			if err != nil {
				return err
			}
			res, err := application.Planner.Extend(cmd.Context(), planner.ExtendRequest{
				PatternID:      patternID,
				ProjectID:      projectID,
				AdditionalDays: days,
				StartDate:      startDate,
				PayloadRefs:    refs,
			})
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}

	cmd.Flags().StringVar(&patternID, "pattern", "", "Pattern to extend")
	cmd.Flags().StringVar(&projectID, "project", "", "Project to extend")
	cmd.Flags().IntVar(&days, "days", 0, "Additional days (default scheduler.extend_days)")
	cmd.Flags().StringVar(&start, "start", "", "Start date when nothing is scheduled yet")
	cmd.Flags().StringArrayVar(&refs, "ref", nil, "Content for each new project day")
	cmd.MarkFlagsMutuallyExclusive("pattern", "project")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if days <= 0 {
			days = cfg.Scheduler.ExtendDays
		}
		return nil
	}
	return cmd
}

func scheduleBulkCmd() *cobra.Command {
	var accountID, projectID, start, file string
	var platforms, refs []string

	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Spread one-off items one per day across platforms",
		Long: `Schedules one-off drafts. Content comes from repeated --ref flags or a file
with one item per line.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				lines, err := readLines(file)
				if err != nil {
					return err
				}
				refs = append(refs, lines...)
			}

			req := planner.BulkRequest{
				AccountID: accountID,
				ProjectID: projectID,
				Platforms: parsePlatforms(platforms),
			}
			if start != "" {
				d, err := parseDate(start)
				if err != nil {
					return err
				}
				req.StartDate = d
			}
			for _, r := range refs {
				req.Items = append(req.Items, planner.BulkItem{PayloadRef: r})
			}

			res, err := application.Planner.ScheduleBulk(cmd.Context(), req)
			if err != nil {
				return err
			}
			printResult(res)
			if len(res.Scheduled) > 0 {
				fmt.Printf("Project:   %s\n", res.Scheduled[0].ProjectID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID (required)")
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID (generated when empty)")
	cmd.Flags().StringSliceVar(&platforms, "platforms", nil, "Target platforms (required)")
	cmd.Flags().StringVar(&start, "start", "", "First day YYYY-MM-DD (default today)")
	cmd.Flags().StringArrayVar(&refs, "ref", nil, "Content item")
	cmd.Flags().StringVar(&file, "file", "", "File with one content item per line")
	cmd.MarkFlagRequired("account")
	cmd.MarkFlagRequired("platforms")
	return cmd
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func scheduleRegenerateCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "regenerate <pattern-id>",
		Short: "Cancel future drafts of a pattern and expand it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := application.Planner.Regenerate(cmd.Context(), args[0], days)
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Horizon in days (default scheduler.horizon_days)")
	return cmd
}

// ============ OCCURRENCE COMMANDS ============

func occurrencesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "occurrences",
		Aliases: []string{"occ"},
		Short:   "Occurrence commands",
	}

	cmd.AddCommand(occurrencesListCmd())
	return cmd
}

func occurrencesListCmd() *cobra.Command {
	var accountID, patternID, projectID, from, to string
	var statuses []string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List occurrences",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.OccurrenceFilter{
				AccountID: accountID,
				ProjectID: projectID,
				Limit:     limit,
			}
			if patternID != "" {
				filter.PatternID = &patternID
			}
			for _, s := range statuses {
				filter.Statuses = append(filter.Statuses, models.OccurrenceStatus(strings.ToLower(s)))
			}
			var err error
			if filter.From, err = optionalDate(from); err != nil {
				return err
			}
			if filter.To, err = optionalDate(to); err != nil {
				return err
			}

			occs, err := application.Repo.ListOccurrences(cmd.Context(), filter)
			if err != nil {
				return err
			}
			printOccurrences(occs)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Filter by account")
	cmd.Flags().StringVar(&patternID, "pattern", "", "Filter by pattern")
	cmd.Flags().StringVar(&projectID, "project", "", "Filter by project")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status")
	cmd.Flags().StringVar(&from, "from", "", "First target date")
	cmd.Flags().StringVar(&to, "to", "", "Last target date")
	cmd.Flags().IntVar(&limit, "limit", 100, "Number of occurrences to show")
	return cmd
}

// ============ BULK COMMANDS ============

func bulkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Bulk publishing commands",
	}

	cmd.AddCommand(bulkRunCmd())
	cmd.AddCommand(bulkStatusCmd())
	return cmd
}

func bulkRunCmd() *cobra.Command {
	var ids []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Publish occurrences as a bulk job and wait for it",
		Long: `Publishes the given draft occurrences, or every due draft when no --id is
given. The command waits for the job; Ctrl-C stops it and leaves unstarted items as drafts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var jobID string
			var err error
			if len(ids) == 0 {
				jobID, err = application.PublishDue(ctx)
				if err == nil && jobID == "" {
					fmt.Println("Nothing is due.")
					return nil
				}
			} else {
				var occs []*models.Occurrence
				for _, id := range ids {
					o, err := application.Repo.GetOccurrence(ctx, id)
					if err != nil {
						return fmt.Errorf("occurrence %s: %w", id, err)
					}
					occs = append(occs, o)
				}
				jobID, err = application.Runner.Run(ctx, occs)
			}
			if err != nil {
				return err
			}

			fmt.Printf("Job %s started\n", jobID)
			job, err := application.Runner.Wait(ctx, jobID)
			if errors.Is(err, context.Canceled) {
				fmt.Println("Stopping job...")
				_ = application.Runner.Cancel(jobID)
				job, err = application.Runner.Wait(context.Background(), jobID)
			}
			if err != nil {
				return err
			}
			printJob(job)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&ids, "id", nil, "Occurrence IDs to publish")
	return cmd
}

func bulkStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a bulk job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := application.Runner.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJob(job)
			return nil
		},
	}
}

func printJob(job *models.BulkJob) {
	fmt.Printf("\n=== Job %s ===\n", job.ID)
	fmt.Printf("Status:    %s\n", job.Status)
	fmt.Printf("Total:     %d\n", job.Total())
	fmt.Printf("Succeeded: %d\n", job.Succeeded)
	fmt.Printf("Failed:    %d\n", job.Failed)
	fmt.Printf("Pending:   %d\n", job.Pending)
	if job.FinishedAt != nil {
		fmt.Printf("Duration:  %s\n", job.FinishedAt.Sub(job.CreatedAt).Round(time.Millisecond))
	}

	fmt.Println()
	for _, it := range job.Items {
		line := fmt.Sprintf("  [%s] %s %s attempt %d", it.Status, it.ID, it.Platform, it.Attempt)
		if it.ExternalPostID != "" {
			line += " -> " + it.ExternalPostID
		}
		if it.LastError != "" {
			line += " error: " + truncateStr(it.LastError, 80)
		}
		fmt.Println(line)
	}
}
