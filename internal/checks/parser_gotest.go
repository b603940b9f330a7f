package checks

import (
	"fmt"
	"strings"
)

// GoTestParser extracts failing test names from go test output.
type GoTestParser struct{}

func (p *GoTestParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	if exitCode == 0 {
		return ParseResult{Passed: true, Summary: "tests passed"}
	}

	var errs []string
	for _, line := range strings.Split(stdout+"\n"+stderr, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "--- FAIL:"):
			errs = append(errs, trimmed)
		case strings.HasPrefix(trimmed, "panic:"):
			errs = append(errs, trimmed)
		case strings.HasPrefix(trimmed, "FAIL") && strings.Contains(trimmed, "[build failed]"):
			errs = append(errs, trimmed)
		}
	}
	if len(errs) == 0 {
		errs = tailLines(stdout+"\n"+stderr, 10)
	}

	return ParseResult{
		Passed:  false,
		Summary: fmt.Sprintf("tests failed: %d failure(s)", len(errs)),
		Errors:  errs,
	}
}
