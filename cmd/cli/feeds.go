package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/social-scheduler/internal/agent/planner"
)

// ============ IMPORT COMMANDS ============

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Content import commands",
	}

	cmd.AddCommand(importFeedsCmd())
	cmd.AddCommand(importCheckCmd())
	return cmd
}

func importFeedsCmd() *cobra.Command {
	var accountID, projectID, start string
	var platforms []string
	var limit int

	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Import feed items as one-off drafts, one per day",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			res, fetchErrs, err := application.ImportFeeds(cmd.Context(), req, limit)
			for _, e := range fetchErrs {
				fmt.Printf("  [ERROR] %v\n", e)
			}
			if err != nil {
				return err
			}
			if len(res.Scheduled) == 0 {
				fmt.Println("No feed items to import.")
				return nil
			}
			printResult(res)
			fmt.Printf("Project:   %s\n", res.Scheduled[0].ProjectID)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID (required)")
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID (generated when empty)")
	cmd.Flags().StringSliceVar(&platforms, "platforms", nil, "Target platforms (required)")
	cmd.Flags().StringVar(&start, "start", "", "First day YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Import at most this many items")
	cmd.MarkFlagRequired("account")
	cmd.MarkFlagRequired("platforms")
	return cmd
}

func importCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that every configured source is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			sources := application.Sources.GetSources()
			if len(sources) == 0 {
				fmt.Println("No sources configured. Add feeds.rss or feeds.custom to your config.")
				return nil
			}
			for _, s := range sources {
				if err := s.HealthCheck(cmd.Context()); err != nil {
					fmt.Printf("  [FAIL] %s (%s): %v\n", s.Name(), s.Type(), err)
					continue
				}
				fmt.Printf("  [OK]   %s (%s)\n", s.Name(), s.Type())
			}
			return nil
		},
	}
}

// ============ TRACKER COMMANDS ============

func trackerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracker",
		Short: "Google Sheets tracker commands",
	}

	cmd.AddCommand(trackerInitCmd())
	cmd.AddCommand(trackerListCmd())
	cmd.AddCommand(trackerSyncCmd())
	return cmd
}

func requireTracker() error {
	if application.Tracker == nil {
		return fmt.Errorf("tracker is not enabled; set tracker.enabled and credentials in your config")
	}
	return nil
}

func trackerInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the tracking sheet and headers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTracker(); err != nil {
				return err
			}
			if err := application.Tracker.InitializeSheet(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Tracker sheet initialized.")
			return nil
		},
	}
}

func trackerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tracked occurrences",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTracker(); err != nil {
				return err
			}
			items, err := application.Tracker.GetAll(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("No tracked occurrences.")
				return nil
			}
			for _, it := range items {
				fmt.Printf("  [%s] %s %s %s %s\n", it.Status, it.OccurrenceID, it.Platform,
					it.ScheduledFor.Format("2006-01-02 15:04"), it.ExternalPostID)
			}
			return nil
		},
	}
}

func trackerSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <job-id>",
		Short: "Write a finished job to the tracking sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTracker(); err != nil {
				return err
			}
			job, err := application.Runner.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !job.IsDone() {
				return fmt.Errorf("job %s is still %s", job.ID, job.Status)
			}
			if err := application.Tracker.RecordJob(context.WithoutCancel(cmd.Context()), job); err != nil {
				return err
			}
			fmt.Printf("Job %s synced (%d items)\n", job.ID, len(job.Items))
			return nil
		},
	}
}
