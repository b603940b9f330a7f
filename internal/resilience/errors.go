package resilience

import "fmt"

// CircuitOpenError is returned when a breaker rejects a call without
// attempting the underlying operation. If a fallback was configured and
// also failed, FallbackErr carries its error.
type CircuitOpenError struct {
	Name        string
	FallbackErr error
}

func (e *CircuitOpenError) Error() string {
	if e.FallbackErr != nil {
		return fmt.Sprintf("circuit %q is open and fallback failed: %v", e.Name, e.FallbackErr)
	}
	return fmt.Sprintf("circuit %q is open", e.Name)
}

func (e *CircuitOpenError) Unwrap() error {
	return e.FallbackErr
}

// RetryExhaustedError is returned after all retry attempts have failed.
// It wraps the last underlying error so callers can still match the
// original error kind with errors.Is / errors.As.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}
