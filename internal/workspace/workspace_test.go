package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

type stubGit struct{ changed string }

func (s *stubGit) FilesChanged(string) (string, error) { return s.changed, nil }

func TestCollectRanksByKeyword(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "limiter.go", "package w\n// token bucket rate limiter\n")
	writeFile(t, dir, "parser.go", "package w\n// parse things\n")
	writeFile(t, dir, "limiter_test.go", "package w\n// limiter tests\n")

	c := NewCollector(dir, nil)
	code, tests, err := c.Collect([]string{"limiter", "token bucket"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if len(code) != 1 || code[0].Path != "limiter.go" {
		t.Fatalf("code files = %+v, want just limiter.go", code)
	}
	if len(tests) != 1 || tests[0].Path != "limiter_test.go" {
		t.Fatalf("test files = %+v, want just limiter_test.go", tests)
	}
}

func TestCollectBoostsRecentChanges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package w\n// limiter\n")
	writeFile(t, dir, "b.go", "package w\n// limiter\n")

	c := NewCollector(dir, &stubGit{changed: "b.go\n"})
	c.SetLimits(1, 1)

	code, _, err := c.Collect([]string{"limiter"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(code) != 1 || code[0].Path != "b.go" {
		t.Fatalf("code files = %+v, want the recently changed b.go", code)
	}
}

func TestCollectCapsFileCount(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.go", "b.go", "c.go"} {
		writeFile(t, dir, name, "package w\n// limiter\n")
	}

	c := NewCollector(dir, nil)
	c.SetLimits(2, 1)

	code, _, err := c.Collect([]string{"limiter"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(code) != 2 {
		t.Fatalf("got %d code files, want 2", len(code))
	}
}

func TestCollectSkipsVendorAndGit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "vendor/dep/limiter.go", "package dep\n// limiter\n")
	writeFile(t, dir, ".git/limiter.go", "junk limiter")
	writeFile(t, dir, "keep.go", "package w\n// limiter\n")

	c := NewCollector(dir, nil)
	code, _, err := c.Collect([]string{"limiter"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(code) != 1 || code[0].Path != "keep.go" {
		t.Fatalf("code files = %+v, want just keep.go", code)
	}
}

func TestCollectTruncatesLargeFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "big.go", "package w\n// limiter\n"+strings.Repeat("x", 2*maxFileBytes))

	c := NewCollector(dir, nil)
	code, _, err := c.Collect([]string{"limiter"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(code) != 1 {
		t.Fatalf("got %d code files, want 1", len(code))
	}
	if len(code[0].Content) != maxFileBytes {
		t.Errorf("content length = %d, want %d", len(code[0].Content), maxFileBytes)
	}
}

func TestCollectMissingDir(t *testing.T) {
	c := NewCollector(filepath.Join(t.TempDir(), "absent"), nil)
	code, tests, err := c.Collect([]string{"limiter"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if code != nil || tests != nil {
		t.Errorf("expected no files for a missing dir, got %v / %v", code, tests)
	}
}

func TestCollectIgnoresShortKeywords(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package w\n")

	c := NewCollector(dir, nil)
	code, _, err := c.Collect([]string{"a", "of"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(code) != 0 {
		t.Errorf("short keywords should not match, got %+v", code)
	}
}
