package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgeline/forgeline/internal/analytics"
)

var breakersCmd = &cobra.Command{
	Use:   "breakers",
	Short: "Show circuit breaker history per dependency",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, cleanup, err := newRuntime()
		if err != nil {
			return err
		}
		defer cleanup()

		since, _ := cmd.Flags().GetString("since")
		results, err := analytics.QueryBreakerSummaries(rt.DB(), since)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No breaker events recorded.")
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-14s %6s %10s %7s %-10s %s\n", "BREAKER", "OPENS", "HALF-OPEN", "CLOSES", "LAST", "SEEN")
		for _, r := range results {
			fmt.Fprintf(w, "%-14s %6d %10d %7d %-10s %s\n",
				r.Breaker, r.Opens, r.HalfOpens, r.Closes, r.LastState, r.LastSeen)
		}
		return nil
	},
}

func init() {
	breakersCmd.Flags().String("since", "", "Only include events at or after this timestamp")
}
