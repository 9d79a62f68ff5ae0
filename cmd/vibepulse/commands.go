package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wesm/vibepulse/internal/datekey"
	"github.com/wesm/vibepulse/internal/models"
	"github.com/wesm/vibepulse/internal/services"
	"github.com/wesm/vibepulse/internal/services/usage"
	"github.com/wesm/vibepulse/internal/ui/components"
	"github.com/wesm/vibepulse/internal/version"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	goodColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	badColor    = color.New(color.FgRed)
	labelColor  = color.New(color.Bold)
)

var reportDays int

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch today's usage once and store it",
	Example: `  # Fetch and record usage, e.g. from cron
  vibepulse refresh`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()
		warnIfEphemeral(mgr)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result := mgr.Refresh(ctx)
		printRefresh(cmd.OutOrStdout(), result)
		return result.Err()
	},
}

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Backfill snapshot deltas and normalize stored dates",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()
		warnIfEphemeral(mgr)

		result := mgr.RunMaintenance(true)
		if result.Err != nil {
			badColor.Fprintln(cmd.OutOrStdout(), result.Message())
			return result.Err
		}
		goodColor.Fprintln(cmd.OutOrStdout(), result.Message())
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print daily spend per tool with a sparkline",
	Example: `  # Last two weeks
  vibepulse report --days 14`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if reportDays < 1 {
			return fmt.Errorf("--days must be at least 1, got %d", reportDays)
		}

		mgr, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()

		tools := mgr.Settings().Get().EnabledTools()
		if len(tools) == 0 {
			warnColor.Fprintln(cmd.OutOrStdout(), usage.StatusNoTools)
			return nil
		}

		points := mgr.DailySeries(reportDays)
		firstDay := datekey.StartOfDay(time.Now()).AddDate(0, 0, -(reportDays - 1))
		series := components.DailySeries(points, tools, firstDay, reportDays)

		out := cmd.OutOrStdout()
		headerColor.Fprintf(out, "Spend over the last %d days\n\n", reportDays)
		printReport(out, tools, series)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout())
	},
}

func init() {
	reportCmd.Flags().IntVarP(&reportDays, "days", "d", 30, "Number of days to include, today included")
}

func warnIfEphemeral(mgr *services.Manager) {
	if !mgr.Persistent() {
		warnColor.Fprintln(os.Stderr, "Database unavailable, results will not be saved.")
	}
}

func printVersion(out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", labelColor.Sprint("Version:"), version.GetVersion())
	fmt.Fprintf(w, "%s\t%s\n", labelColor.Sprint("Commit:"), version.GetCommit())
	fmt.Fprintf(w, "%s\t%s\n", labelColor.Sprint("Built:"), version.GetDate())
	_ = w.Flush()
}

func printRefresh(out io.Writer, result usage.RefreshResult) {
	if result.NoTools {
		warnColor.Fprintln(out, usage.StatusNoTools)
		return
	}
	if result.Skipped {
		warnColor.Fprintln(out, "A refresh is already running.")
		return
	}

	failed := make(map[models.Tool]error, len(result.Errors))
	for _, e := range result.Errors {
		failed[e.Tool] = e.Err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, tool := range result.Tools {
		name := labelColor.Sprint(tool.DisplayName())
		if err, ok := failed[tool]; ok {
			fmt.Fprintf(w, "%s\t%s\n", name, badColor.Sprintf("failed: %v", err))
			continue
		}
		cost, ok := result.TodayCost[tool]
		if !ok {
			fmt.Fprintf(w, "%s\t%s\n", name, warnColor.Sprint("no usage today"))
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", name, goodColor.Sprint(usage.FormatUSD(cost)))
	}
	_ = w.Flush()
}

func printReport(out io.Writer, tools []models.Tool, series [][]float64) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	var combined float64
	for i, tool := range tools {
		var total float64
		for _, v := range series[i] {
			total += v
		}
		combined += total
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			labelColor.Sprint(tool.DisplayName()),
			usage.FormatUSD(total),
			components.RenderSparkline(series[i], len(series[i])),
		)
	}
	fmt.Fprintf(w, "%s\t%s\t\n", labelColor.Sprint("Total"), goodColor.Sprint(usage.FormatUSD(combined)))
	_ = w.Flush()
}
