package resilience

import (
	"context"
	"time"
)

// Operation is a fallible call guarded by retries or a breaker.
type Operation func() (interface{}, error)

// ContextOperation is the context-aware variant of Operation.
type ContextOperation func(ctx context.Context) (interface{}, error)

// RetryConfig configures a Retrier. RetryIf filters which errors are
// retried; a nil filter retries everything. Errors that fail the filter
// propagate immediately and unchanged.
type RetryConfig struct {
	MaxAttempts int
	Backoff     BackoffPolicy
	RetryIf     func(error) bool
}

// Retrier runs an operation up to MaxAttempts times, sleeping per the
// backoff policy between attempts. It holds configuration only; a single
// Retrier is safe for concurrent use.
type Retrier struct {
	cfg     RetryConfig
	sleep   func(d time.Duration)
	onRetry func(attempt int, delay time.Duration, err error)
}

// NewRetrier creates a Retrier, applying defaults for zero fields.
func NewRetrier(cfg RetryConfig) *Retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff.Base == 0 && cfg.Backoff.Max == 0 {
		cfg.Backoff = DefaultBackoff()
	}
	return &Retrier{cfg: cfg, sleep: time.Sleep}
}

// SetSleep overrides the inter-attempt sleep (for testing).
func (r *Retrier) SetSleep(fn func(d time.Duration)) {
	r.sleep = fn
}

// OnRetry registers a callback invoked before each backoff sleep.
func (r *Retrier) OnRetry(fn func(attempt int, delay time.Duration, err error)) {
	r.onRetry = fn
}

// Run executes op, retrying retryable failures with backoff. On success
// it returns op's result. On a non-retryable error it returns that error
// unchanged. After exhausting all attempts it returns a
// RetryExhaustedError wrapping the last failure.
func (r *Retrier) Run(op Operation) (interface{}, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		result, err := op()
		if err == nil {
			return result, nil
		}
		if r.cfg.RetryIf != nil && !r.cfg.RetryIf(err) {
			return nil, err
		}
		lastErr = err
		if attempt == r.cfg.MaxAttempts-1 {
			break
		}
		delay := r.cfg.Backoff.Delay(attempt)
		if r.onRetry != nil {
			r.onRetry(attempt+1, delay, err)
		}
		r.sleep(delay)
	}
	return nil, &RetryExhaustedError{Attempts: r.cfg.MaxAttempts, Err: lastErr}
}

// RunContext is Run with context cancellation between attempts. The
// retry and backoff math is identical to Run; cancellation during a
// backoff wait returns the context's error.
func (r *Retrier) RunContext(ctx context.Context, op ContextOperation) (interface{}, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if r.cfg.RetryIf != nil && !r.cfg.RetryIf(err) {
			return nil, err
		}
		lastErr = err
		if attempt == r.cfg.MaxAttempts-1 {
			break
		}
		delay := r.cfg.Backoff.Delay(attempt)
		if r.onRetry != nil {
			r.onRetry(attempt+1, delay, err)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, &RetryExhaustedError{Attempts: r.cfg.MaxAttempts, Err: lastErr}
}
