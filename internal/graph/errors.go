package graph

import "fmt"

// StageExecutionError wraps an uncaught failure from a stage executor.
// It is fatal to the run: the runner surfaces it to the caller rather
// than routing past it.
type StageExecutionError struct {
	Stage string
	Err   error
}

func (e *StageExecutionError) Error() string {
	return fmt.Sprintf("stage %q failed: %v", e.Stage, e.Err)
}

func (e *StageExecutionError) Unwrap() error {
	return e.Err
}

// RouteError reports a transition to a stage that does not exist,
// typically from a conditional router returning a bad name.
type RouteError struct {
	From string
	To   string
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("stage %q routed to unknown stage %q", e.From, e.To)
}
