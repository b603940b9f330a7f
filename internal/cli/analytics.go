package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgeline/forgeline/internal/analytics"
	"github.com/forgeline/forgeline/internal/runtime"
)

var analyticsSince string

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Query pipeline performance from the audit database",
}

var analyticsStageDurationCmd = &cobra.Command{
	Use:   "stage-duration",
	Short: "Duration percentiles and success rates per stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, cleanup, err := newRuntime()
		if err != nil {
			return err
		}
		defer cleanup()

		results, err := analytics.QueryStageDurations(rt.DB(), analyticsSince)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-14s %6s %8s %8s %8s %8s\n", "STAGE", "RUNS", "OK%", "AVG(s)", "P50(s)", "P95(s)")
		for _, r := range results {
			fmt.Fprintf(w, "%-14s %6d %8.1f %8.1f %8.1f %8.1f\n",
				r.Stage, r.Count, r.SuccessRate, r.Avg, r.P50, r.P95)
		}
		return nil
	},
}

var analyticsRecoveryCmd = &cobra.Command{
	Use:   "recovery",
	Short: "Recovery success rates and confidence per strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, cleanup, err := newRuntime()
		if err != nil {
			return err
		}
		defer cleanup()

		results, err := analytics.QueryRecoveryOutcomes(rt.DB(), analyticsSince)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-14s %6s %8s %10s %10s\n", "STRATEGY", "TOTAL", "OK%", "AVG CONF", "AVG TRIES")
		for _, r := range results {
			fmt.Fprintf(w, "%-14s %6d %8.1f %10.1f %10.1f\n",
				r.Strategy, r.Total, r.SuccessRate, r.AvgConfidence, r.AvgAttempts)
		}
		return nil
	},
}

var analyticsGatesCmd = &cobra.Command{
	Use:   "gates",
	Short: "Gate decision breakdown by source",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, cleanup, err := newRuntime()
		if err != nil {
			return err
		}
		defer cleanup()

		results, err := analytics.QueryGateSummaries(rt.DB(), analyticsSince)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-12s %6s %10s %10s\n", "SOURCE", "TOTAL", "APPROVED%", "AVG SCORE")
		for _, r := range results {
			fmt.Fprintf(w, "%-12s %6d %10.1f %10.1f\n", r.Source, r.Total, r.Approved, r.AvgScore)
		}
		return nil
	},
}

var analyticsThroughputCmd = &cobra.Command{
	Use:   "throughput",
	Short: "Run outcomes per week",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, cleanup, err := newRuntime()
		if err != nil {
			return err
		}
		defer cleanup()

		results, err := analytics.QueryThroughput(rt.DB(), analyticsSince)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-10s %8s %10s %7s %8s %10s\n", "WEEK", "STARTED", "COMPLETED", "FAILED", "BLOCKED", "AVG(h)")
		for _, r := range results {
			fmt.Fprintf(w, "%-10s %8d %10d %7d %8d %10.1f\n",
				r.Period, r.Started, r.Completed, r.Failed, r.Blocked, r.AvgDuration)
		}
		return nil
	},
}

func printTimeline(cmd *cobra.Command, rt *runtime.Runtime, runID string) error {
	events, err := analytics.QueryRunTimeline(rt.DB(), runID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No audit events for run %s.\n", runID)
		return nil
	}
	w := cmd.OutOrStdout()
	for _, e := range events {
		fmt.Fprintf(w, "%s  %-9s %-12s %-12s %s\n", e.Timestamp, e.Type, e.Event, e.Stage, e.Detail)
	}
	return nil
}

func init() {
	analyticsCmd.PersistentFlags().StringVar(&analyticsSince, "since", "", "Only include events at or after this timestamp (e.g. 2026-01-01)")
	analyticsCmd.AddCommand(analyticsStageDurationCmd)
	analyticsCmd.AddCommand(analyticsRecoveryCmd)
	analyticsCmd.AddCommand(analyticsGatesCmd)
	analyticsCmd.AddCommand(analyticsThroughputCmd)
}
