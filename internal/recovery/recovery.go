// Package recovery implements the automated fix loop for failed
// build/test stages. Recovery is best-effort: a failed recovery never
// leaves the pipeline state partially updated.
package recovery

import (
	"context"
	"fmt"

	"github.com/forgeline/forgeline/internal/pipeline"
	"github.com/forgeline/forgeline/internal/telemetry"
)

// FixProposal is what a proposer returns: replacement artifacts plus a
// self-assessed confidence score and an explanation for the audit trail.
type FixProposal struct {
	Code        string  `json:"fixed_code"`
	Tests       string  `json:"fixed_tests"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// FixProposer asks an external collaborator (an LLM behind a breaker)
// for fixed code and tests given the accumulated errors in the state.
type FixProposer interface {
	ProposeFix(ctx context.Context, st pipeline.State) (FixProposal, error)
}

// RecoveryExhaustedError means the automated fix loop cannot continue:
// either the attempt ceiling was reached or there is nothing to fix.
// Callers must route the run to human review.
type RecoveryExhaustedError struct {
	Attempt int
	Max     int
	Reason  string
}

func (e *RecoveryExhaustedError) Error() string {
	return fmt.Sprintf("recovery exhausted after attempt %d/%d: %s", e.Attempt, e.Max, e.Reason)
}

// UnknownStrategyError names a recovery strategy with no registered
// handler. It is non-fatal: the dispatcher logs it and passes the
// state through unchanged.
type UnknownStrategyError struct {
	Strategy pipeline.RecoveryStrategy
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("unknown recovery strategy %q", string(e.Strategy))
}

// Strategy attempts to repair a failed state, returning the repaired one.
type Strategy func(ctx context.Context, st pipeline.State) (pipeline.State, error)

// Dispatcher routes a failed state to the handler registered for its
// recovery strategy.
type Dispatcher struct {
	strategies  map[pipeline.RecoveryStrategy]Strategy
	maxAttempts int
	emitter     telemetry.Emitter
}

// NewDispatcher builds a dispatcher with the built-in build/test
// recovery strategy registered. maxAttempts caps WithRecoveryUpdate
// increments per run.
func NewDispatcher(proposer FixProposer, maxAttempts int, emitter telemetry.Emitter) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if emitter == nil {
		emitter = telemetry.NopEmitter{}
	}
	d := &Dispatcher{
		strategies:  make(map[pipeline.RecoveryStrategy]Strategy),
		maxAttempts: maxAttempts,
		emitter:     emitter,
	}
	d.strategies[pipeline.StrategyBuildTest] = d.buildTestRecovery(proposer)
	return d
}

// Register adds or replaces the handler for a strategy.
func (d *Dispatcher) Register(strategy pipeline.RecoveryStrategy, fn Strategy) {
	d.strategies[strategy] = fn
}

// Dispatch repairs the state using the strategy it names. An unset
// strategy falls back to the built-in build/test handler. An unknown
// strategy is logged and the state passes through unchanged; recovery
// must not crash a run over a configuration mistake.
func (d *Dispatcher) Dispatch(ctx context.Context, st pipeline.State) (pipeline.State, error) {
	strategy := st.RecoveryStrategy
	if strategy == pipeline.StrategyNone {
		strategy = pipeline.StrategyBuildTest
	}

	handler, ok := d.strategies[strategy]
	if !ok {
		unknown := &UnknownStrategyError{Strategy: strategy}
		telemetry.Emit(d.emitter, telemetry.EventRecoveryAttempt, telemetry.Fields{
			"outcome": "unknown_strategy",
			"error":   unknown.Error(),
		})
		return st, nil
	}
	return handler(ctx, st)
}

// buildTestRecovery is the one built-in strategy: feed the recorded
// build/test errors and current artifacts to the proposer and fold the
// proposal back into the state.
func (d *Dispatcher) buildTestRecovery(proposer FixProposer) Strategy {
	return func(ctx context.Context, st pipeline.State) (pipeline.State, error) {
		if st.CheckErrorCount() == 0 {
			return st, &RecoveryExhaustedError{
				Attempt: st.RecoveryAttempt,
				Max:     d.maxAttempts,
				Reason:  "no recorded build or test errors to recover from",
			}
		}
		if st.RecoveryAttempt >= d.maxAttempts {
			return st, &RecoveryExhaustedError{
				Attempt: st.RecoveryAttempt,
				Max:     d.maxAttempts,
				Reason:  "attempt ceiling reached",
			}
		}
		if proposer == nil {
			return st, &RecoveryExhaustedError{
				Attempt: st.RecoveryAttempt,
				Max:     d.maxAttempts,
				Reason:  "no fix proposer configured",
			}
		}

		proposal, err := proposer.ProposeFix(ctx, st)
		if err != nil {
			// Best effort: the original state survives untouched.
			telemetry.Emit(d.emitter, telemetry.EventRecoveryAttempt, telemetry.Fields{
				"outcome":  "proposal_failed",
				"strategy": string(pipeline.StrategyBuildTest),
				"attempt":  st.RecoveryAttempt,
				"error":    err.Error(),
			})
			return st, nil
		}

		next := st
		if proposal.Code != "" {
			next = next.WithCode(proposal.Code, "", "")
		}
		if proposal.Tests != "" {
			next = next.WithTests(proposal.Tests)
		}
		next = next.WithRecoveryUpdate(proposal.Confidence, proposal.Explanation)

		telemetry.Emit(d.emitter, telemetry.EventRecoveryAttempt, telemetry.Fields{
			"outcome":    "applied",
			"strategy":   string(pipeline.StrategyBuildTest),
			"attempt":    next.RecoveryAttempt,
			"confidence": proposal.Confidence,
		})
		return next, nil
	}
}
