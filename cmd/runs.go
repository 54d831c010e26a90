package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/court-inventory/internal/model"
	"github.com/sells-group/court-inventory/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect inventory run history",
	Long:  "Commands for listing runs, showing run progress, and reading run logs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List inventory runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		runs, err := env.Store.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs, time.Now())
		return nil
	},
}

// -- runs status --

var runsStatusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show progress of a run (latest by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		var run *model.InventoryRun
		if len(args) == 1 {
			run, err = env.Store.GetRun(ctx, args[0])
		} else {
			run, err = env.Store.LatestRun(ctx)
		}
		if err != nil {
			return eris.Wrap(err, "runs status")
		}

		formatRunDetail(os.Stdout, *run, time.Now())
		return nil
	},
}

// -- runs logs --

var runsLogsCmd = &cobra.Command{
	Use:   "logs <run-id>",
	Short: "Print the log of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		limit, _ := cmd.Flags().GetInt("limit")

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := env.Store.GetRun(ctx, args[0]); err != nil {
			return eris.Wrap(err, "runs logs")
		}
		logs, err := env.Store.ListLogs(ctx, args[0], limit)
		if err != nil {
			return eris.Wrap(err, "runs logs")
		}

		formatRunLogs(os.Stdout, logs)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, completed, error)")
	runsListCmd.Flags().Int("limit", 20, "max number of runs to display")

	runsLogsCmd.Flags().Int("limit", 500, "max number of log lines")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatusCmd)
	runsCmd.AddCommand(runsLogsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runDuration is the elapsed time of a run; still-running runs are measured
// against now.
func runDuration(r model.InventoryRun, now time.Time) time.Duration {
	end := now
	if r.CompletedAt != nil {
		end = *r.CompletedAt
	}
	return end.Sub(r.StartedAt).Round(time.Second)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.InventoryRun, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tTYPE\tPROGRESS\tNEW\tUPDATED\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t----\t--------\t---\t-------\t-------\t--------")

	for _, r := range runs {
		courtType := r.CourtType
		if courtType == "" {
			courtType = "all"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.Status,
			courtType,
			r.SourcesProcessed, r.TotalSources,
			r.NewCourtsFound,
			r.CourtsUpdated,
			r.StartedAt.Format("2006-01-02 15:04"),
			runDuration(r, now),
		)
	}
	_ = w.Flush()
}

// formatRunDetail writes the full state of one run to w.
func formatRunDetail(out io.Writer, r model.InventoryRun, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", r.ID)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", r.Status)
	_, _ = fmt.Fprintf(w, "Progress:\t%d/%d (%.1f%%)\n", r.SourcesProcessed, r.TotalSources, r.Percent())
	if r.CourtType != "" {
		_, _ = fmt.Fprintf(w, "Court type:\t%s\n", r.CourtType)
	}
	if r.Stage != "" {
		_, _ = fmt.Fprintf(w, "Stage:\t%s\n", r.Stage)
	}
	if r.CurrentSource != "" {
		_, _ = fmt.Fprintf(w, "Current:\t%s\n", r.CurrentSource)
	}
	if r.NextSource != "" {
		_, _ = fmt.Fprintf(w, "Next:\t%s\n", r.NextSource)
	}
	_, _ = fmt.Fprintf(w, "New courts:\t%d\n", r.NewCourtsFound)
	_, _ = fmt.Fprintf(w, "Updated courts:\t%d\n", r.CourtsUpdated)
	_, _ = fmt.Fprintf(w, "Started:\t%s\n", r.StartedAt.Format(time.RFC3339))
	if r.CompletedAt != nil {
		_, _ = fmt.Fprintf(w, "Completed:\t%s\n", r.CompletedAt.Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(w, "Duration:\t%s\n", runDuration(r, now))
	if r.Message != "" {
		_, _ = fmt.Fprintf(w, "Message:\t%s\n", r.Message)
	}
	_ = w.Flush()
}

// formatRunLogs writes one line per log entry.
func formatRunLogs(out io.Writer, logs []model.RunLogEntry) {
	for _, l := range logs {
		_, _ = fmt.Fprintf(out, "%s [%s] %s\n", l.Timestamp.Format("2006-01-02 15:04:05"), l.Level, l.Message)
	}
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
