// Package ticket fetches the work item a run is built from. Fetching
// shells out to the gh CLI so the engine carries no GitHub API client
// or auth handling of its own.
package ticket

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/forgeline/forgeline/internal/pipeline"
)

// CmdRunner provides command execution. Interface for testing.
type CmdRunner interface {
	Run(args ...string) (string, error)
}

// ExecRunner runs gh commands via exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(args ...string) (string, error) {
	cmd := exec.Command("gh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("gh %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Fetcher retrieves tickets and caches them per run.
type Fetcher struct {
	cmd CmdRunner
}

// NewFetcher creates a ticket fetcher. A nil cmd uses gh via exec.
func NewFetcher(cmd CmdRunner) *Fetcher {
	if cmd == nil {
		cmd = &ExecRunner{}
	}
	return &Fetcher{cmd: cmd}
}

// Fetch retrieves the ticket behind a GitHub issue URL.
func (f *Fetcher) Fetch(url string) (*pipeline.Ticket, error) {
	if url == "" {
		return nil, fmt.Errorf("ticket URL is empty")
	}

	out, err := f.cmd.Run("issue", "view", url, "--json", "title,body")
	if err != nil {
		return nil, fmt.Errorf("fetch ticket %s: %w", url, err)
	}

	var raw struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("parse ticket JSON: %w", err)
	}

	t := &pipeline.Ticket{
		URL:         url,
		Title:       raw.Title,
		Description: raw.Body,
	}
	t.AcceptanceCriteria = extractSection(raw.Body, acHeaderRe)
	t.Requirements = extractSection(raw.Body, reqHeaderRe)
	return t, nil
}

// FetchCached fetches a ticket and writes it to the run directory, so
// resume never re-fetches a ticket that may have changed since.
func (f *Fetcher) FetchCached(url, runDir string) (*pipeline.Ticket, error) {
	t, err := f.Fetch(url)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal ticket: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "ticket.json"), data, 0o644); err != nil {
		return nil, fmt.Errorf("write ticket.json: %w", err)
	}
	return t, nil
}

// LoadCached reads a previously cached ticket from a run directory.
func LoadCached(runDir string) (*pipeline.Ticket, error) {
	data, err := os.ReadFile(filepath.Join(runDir, "ticket.json"))
	if err != nil {
		return nil, err
	}
	var t pipeline.Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse cached ticket: %w", err)
	}
	return &t, nil
}

var (
	acHeaderRe  = regexp.MustCompile(`(?im)^#{1,4}\s*acceptance\s+criteria\s*$`)
	reqHeaderRe = regexp.MustCompile(`(?im)^#{1,4}\s*requirements\s*$`)
	nextHdrRe   = regexp.MustCompile(`(?m)^#{1,4}\s`)
	bulletRe    = regexp.MustCompile(`(?m)^\s*(?:[-*]|\d+\.)\s*(?:\[.\]\s*)?(.+)$`)
)

// extractSection pulls the bullet items under a markdown header.
func extractSection(body string, header *regexp.Regexp) []string {
	loc := header.FindStringIndex(body)
	if loc == nil {
		return nil
	}
	section := body[loc[1]:]
	if next := nextHdrRe.FindStringIndex(section); next != nil {
		section = section[:next[0]]
	}

	var items []string
	for _, m := range bulletRe.FindAllStringSubmatch(section, -1) {
		if item := strings.TrimSpace(m[1]); item != "" {
			items = append(items, item)
		}
	}
	return items
}
