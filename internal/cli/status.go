package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show run status, or the audit timeline of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, cleanup, err := newRuntime()
		if err != nil {
			return err
		}
		defer cleanup()

		if len(args) == 1 {
			return printTimeline(cmd, rt, args[0])
		}

		filter, _ := cmd.Flags().GetString("filter")
		infos, err := rt.Store().List(filter)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(infos, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(infos) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-36s %-12s %-12s %-20s %s\n", "RUN", "STATUS", "STAGE", "UPDATED", "TICKET")
		fmt.Fprintf(w, "%-36s %-12s %-12s %-20s %s\n",
			strings.Repeat("-", 36),
			strings.Repeat("-", 12),
			strings.Repeat("-", 12),
			strings.Repeat("-", 20),
			strings.Repeat("-", 6))
		for _, info := range infos {
			fmt.Fprintf(w, "%-36s %-12s %-12s %-20s %s\n",
				info.RunID, info.Status, info.CurrentStage, info.UpdatedAt, info.TicketURL)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("format", "text", "Output format: text or json")
	statusCmd.Flags().String("filter", "", "Filter by status (pending, in_progress, completed, failed, blocked)")
}
