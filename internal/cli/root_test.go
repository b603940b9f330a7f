package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func executeCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// writeTestConfig points the CLI at throwaway dirs so commands that
// open the runtime never touch the real home directory.
func writeTestConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "forgeline.yaml")
	content := "pipeline:\n" +
		"  runs_dir: " + filepath.Join(dir, "runs") + "\n" +
		"telemetry:\n" +
		"  db_path: " + filepath.Join(dir, "audit.db") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	configFile = path
	t.Cleanup(func() { configFile = "" })
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedSubcommands := []string{
		"run", "resume", "status", "breakers", "analytics",
		"config", "db", "version",
	}
	for _, sub := range expectedSubcommands {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestAnalyticsSubcommands(t *testing.T) {
	subcmds := []string{"stage-duration", "recovery", "gates", "throughput"}
	for _, sub := range subcmds {
		out, err := executeCommand("analytics", sub, "--help")
		if err != nil {
			t.Errorf("analytics %s --help failed: %v", sub, err)
		}
		if out == "" {
			t.Errorf("analytics %s --help produced no output", sub)
		}
	}
}

func TestConfigValidateDefaults(t *testing.T) {
	writeTestConfig(t)
	out, err := executeCommand("config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "valid") {
		t.Errorf("expected validation success, got: %s", out)
	}
}

func TestConfigShowMergesDefaults(t *testing.T) {
	writeTestConfig(t)
	out, err := executeCommand("config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	// Defaults the file never set must appear in the resolved output.
	if !strings.Contains(out, "gpt-4o") {
		t.Errorf("resolved config missing model default:\n%s", out)
	}
}

func TestStatusEmpty(t *testing.T) {
	writeTestConfig(t)
	out, err := executeCommand("status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "No runs found") {
		t.Errorf("expected empty-run message, got: %s", out)
	}
}

func TestBreakersEmpty(t *testing.T) {
	writeTestConfig(t)
	out, err := executeCommand("breakers")
	if err != nil {
		t.Fatalf("breakers: %v", err)
	}
	if !strings.Contains(out, "No breaker events") {
		t.Errorf("expected empty-breaker message, got: %s", out)
	}
}

func TestDbResetRequiresForce(t *testing.T) {
	writeTestConfig(t)
	_, err := executeCommand("db", "reset")
	if err == nil {
		t.Fatal("expected error resetting without --force")
	}
	if !strings.Contains(err.Error(), "--force") {
		t.Errorf("expected --force hint, got: %v", err)
	}
}

func TestUnknownCommand(t *testing.T) {
	_, err := executeCommand("nonexistent")
	if err == nil {
		t.Error("expected error for unknown command, got nil")
	}
}
