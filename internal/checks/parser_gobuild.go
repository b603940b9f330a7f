package checks

import (
	"fmt"
	"regexp"
	"strings"
)

// compilerErrRe matches the file:line:col prefix of compiler diagnostics.
var compilerErrRe = regexp.MustCompile(`^\S+\.go:\d+(:\d+)?:`)

// GoBuildParser extracts compiler diagnostics from go build output.
// The compiler writes diagnostics to stderr; stdout is usually empty.
type GoBuildParser struct{}

func (p *GoBuildParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	if exitCode == 0 {
		return ParseResult{Passed: true, Summary: "build passed"}
	}

	var errs []string
	for _, line := range strings.Split(stdout+"\n"+stderr, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if compilerErrRe.MatchString(trimmed) || strings.HasPrefix(trimmed, "cannot ") || strings.HasPrefix(trimmed, "undefined:") {
			errs = append(errs, trimmed)
		}
	}
	if len(errs) == 0 {
		// Non-zero exit with no recognizable diagnostics: keep the raw tail.
		errs = tailLines(stderr, 10)
	}

	return ParseResult{
		Passed:  false,
		Summary: fmt.Sprintf("build failed with %d error(s)", len(errs)),
		Errors:  errs,
	}
}

// tailLines returns up to n trailing non-empty lines of s.
func tailLines(s string, n int) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
