package checks

import "fmt"

// GenericParser is the fallback parser that captures exit code and raw output.
type GenericParser struct{}

// maxGenericErrLines caps how much output the generic parser keeps as errors.
const maxGenericErrLines = 20

func (p *GenericParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	if exitCode == 0 {
		return ParseResult{Passed: true, Summary: "passed (exit code 0)"}
	}

	// Keep the tail — error summaries are usually at the end.
	errs := tailLines(stdout+"\n"+stderr, maxGenericErrLines)
	return ParseResult{
		Passed:  false,
		Summary: fmt.Sprintf("exit code %d, stdout=%d bytes, stderr=%d bytes", exitCode, len(stdout), len(stderr)),
		Errors:  errs,
	}
}
