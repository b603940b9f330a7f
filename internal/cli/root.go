// Package cli wires the forgeline commands: starting and resuming
// pipeline runs, inspecting their status, and querying the audit trail.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/forgeline/forgeline/internal/config"
	"github.com/forgeline/forgeline/internal/runtime"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var configFile string

var rootCmd = &cobra.Command{
	Use:   "forgeline",
	Short: "forgeline — a resilient LLM code-generation pipeline",
	Long: `forgeline turns tickets into reviewed code through a staged pipeline:
fetch, refine, generate, integrate, build/test, automated recovery, and
a human gate. Every stage runs behind a circuit breaker and every
decision lands in a local SQLite audit trail.

State lives in the runs directory (JSON checkpoints) and the audit
database; both default to ~/.forgeline/.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	cfg, err := config.LoadDefault()
	if err != nil {
		// No config file anywhere: run on defaults.
		return config.Default(), nil
	}
	return cfg, nil
}

// newRuntime builds the shared runtime from the resolved config. The
// cleanup closes the audit database.
func newRuntime() (*runtime.Runtime, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	rt, err := runtime.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return rt, func() { rt.Close() }, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to forgeline config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(breakersCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
