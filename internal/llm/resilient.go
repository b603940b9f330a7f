package llm

import (
	"context"
	"errors"
	"time"

	"github.com/forgeline/forgeline/internal/resilience"
	"github.com/forgeline/forgeline/internal/telemetry"
)

// BreakerName is the shared breaker guarding every model call.
const BreakerName = "llm"

// ResilientInvoker wraps an Invoker in the llm circuit breaker and a
// retry executor. Transient failures are retried with backoff; a
// rejection from the open breaker is not, since retrying an isolated
// dependency defeats the isolation.
type ResilientInvoker struct {
	inner   Invoker
	breaker *resilience.Breaker
	retrier *resilience.Retrier
}

// NewResilientInvoker builds the wrapper. The breaker comes from the
// shared registry so stage code and status commands see the same one.
func NewResilientInvoker(inner Invoker, breakers *resilience.Registry, retryCfg resilience.RetryConfig, emitter telemetry.Emitter) *ResilientInvoker {
	if emitter == nil {
		emitter = telemetry.NopEmitter{}
	}
	retryCfg.RetryIf = func(err error) bool {
		var open *resilience.CircuitOpenError
		return !errors.As(err, &open)
	}
	retrier := resilience.NewRetrier(retryCfg)
	retrier.OnRetry(func(attempt int, delay time.Duration, err error) {
		telemetry.Emit(emitter, telemetry.EventRetryAttempt, telemetry.Fields{
			"operation": BreakerName,
			"attempt":   attempt,
			"delay":     delay.String(),
			"error":     err.Error(),
		})
	})
	return &ResilientInvoker{
		inner:   inner,
		breaker: breakers.GetOrCreate(BreakerName),
		retrier: retrier,
	}
}

// SetSleep replaces the retrier's sleep, for tests.
func (r *ResilientInvoker) SetSleep(fn func(d time.Duration)) {
	r.retrier.SetSleep(fn)
}

func (r *ResilientInvoker) Invoke(ctx context.Context, prompt string) (string, error) {
	res, err := r.retrier.RunContext(ctx, func(ctx context.Context) (interface{}, error) {
		return r.breaker.Do(func() (interface{}, error) {
			return r.inner.Invoke(ctx, prompt)
		})
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}
