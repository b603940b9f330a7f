package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgeline/forgeline/internal/gate"
	"github.com/forgeline/forgeline/internal/pipeline"
	"github.com/forgeline/forgeline/internal/runtime"
)

var runCmd = &cobra.Command{
	Use:   "run <ticket-url>",
	Short: "Run the pipeline for a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, cleanup, err := newRuntime()
		if err != nil {
			return err
		}
		defer cleanup()

		run, err := rt.NewRun(args[0], runtime.RunOptions{
			Prompter: gate.NewReaderPrompter(os.Stdin, cmd.OutOrStdout()),
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "run %s started for %s\n", run.Info.RunID, args[0])
		st, err := run.Execute(cmd.Context())
		printOutcome(cmd, run, st)
		return err
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume a run from its latest checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, cleanup, err := newRuntime()
		if err != nil {
			return err
		}
		defer cleanup()

		run, err := rt.Resume(args[0], runtime.RunOptions{
			Prompter: gate.NewReaderPrompter(os.Stdin, cmd.OutOrStdout()),
		})
		if err != nil {
			return err
		}

		st, err := run.ExecuteFrom(cmd.Context())
		printOutcome(cmd, run, st)
		return err
	},
}

func printOutcome(cmd *cobra.Command, run *runtime.Run, st pipeline.State) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "run %s finished: %s\n", run.Info.RunID, run.Info.Status)
	if st.Validation != nil {
		fmt.Fprintf(w, "  score: %.0f\n", st.Score())
	}
	if st.RecoveryAttempt > 0 {
		fmt.Fprintf(w, "  recovery attempts: %d\n", st.RecoveryAttempt)
	}
	for _, rec := range st.AuditTrail() {
		fmt.Fprintf(w, "  %s %-12s score=%.0f errors=%d\n",
			rec.RecordedAt, rec.Stage, rec.Result.Score, len(rec.Result.Errors))
	}
}
