package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Audit database management",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply audit database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cleanup, err := newRuntime()
		if err != nil {
			return err
		}
		defer cleanup()
		// Opening the runtime migrates; reaching here means it worked.
		cmd.Println("Audit database is up to date.")
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop and recreate the audit database (destructive!)",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return fmt.Errorf("refusing to reset without --force")
		}

		rt, cleanup, err := newRuntime()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := rt.DB().Reset(); err != nil {
			return err
		}
		cmd.Println("Audit database reset.")
		return nil
	},
}

func init() {
	dbResetCmd.Flags().Bool("force", false, "Confirm the destructive reset")
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbResetCmd)
}
