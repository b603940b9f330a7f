package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forgeline/forgeline/internal/pipeline"
	"github.com/forgeline/forgeline/internal/resilience"
	"github.com/forgeline/forgeline/internal/telemetry"
)

// defaultMaxSteps bounds a run against routing cycles that the stage
// ceilings fail to break.
const defaultMaxSteps = 1000

// CheckpointFunc persists the state produced by a committed stage.
type CheckpointFunc func(stage string, st pipeline.State) error

// Runner executes a graph, wrapping every stage call in that stage's
// circuit breaker and emitting stage lifecycle events.
type Runner struct {
	graph      *Graph
	breakers   *resilience.Registry
	emitter    telemetry.Emitter
	checkpoint CheckpointFunc
	maxSteps   int
	now        func() time.Time
}

// NewRunner builds a runner over a graph. The registry supplies one
// breaker per stage name, shared across runs of the same process.
func NewRunner(g *Graph, breakers *resilience.Registry, emitter telemetry.Emitter) *Runner {
	if emitter == nil {
		emitter = telemetry.NopEmitter{}
	}
	return &Runner{
		graph:    g,
		breakers: breakers,
		emitter:  emitter,
		maxSteps: defaultMaxSteps,
		now:      time.Now,
	}
}

// SetCheckpoint installs a checkpoint hook called after every
// successfully completed stage.
func (r *Runner) SetCheckpoint(fn CheckpointFunc) {
	r.checkpoint = fn
}

// SetMaxSteps overrides the cycle guard.
func (r *Runner) SetMaxSteps(n int) {
	if n > 0 {
		r.maxSteps = n
	}
}

// SetClock replaces the wall clock, for tests.
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// Run executes the graph from its entry point.
func (r *Runner) Run(ctx context.Context, st pipeline.State) (pipeline.State, error) {
	if err := r.graph.Validate(); err != nil {
		return st, fmt.Errorf("invalid graph: %w", err)
	}
	return r.RunFrom(ctx, r.graph.entry, st)
}

// RunFrom executes the graph starting at the named stage. Used by
// resume to re-enter a run at its last checkpointed stage.
func (r *Runner) RunFrom(ctx context.Context, start string, st pipeline.State) (pipeline.State, error) {
	stage := start
	steps := 0
	for stage != End {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		ex, ok := r.graph.nodes[stage]
		if !ok {
			return st, &RouteError{From: start, To: stage}
		}
		steps++
		if steps > r.maxSteps {
			return st, fmt.Errorf("run exceeded %d stage transitions at stage %q", r.maxSteps, stage)
		}

		next, err := r.runStage(ctx, stage, ex, st)
		if err != nil {
			return st, err
		}
		st = next

		if r.checkpoint != nil {
			if err := r.checkpoint(stage, st); err != nil {
				return st, fmt.Errorf("checkpoint after stage %q: %w", stage, err)
			}
		}

		target, err := r.route(stage, st)
		if err != nil {
			return st, err
		}
		stage = target
	}
	telemetry.Emit(r.emitter, telemetry.EventRunCompleted, telemetry.Fields{
		"final_stage": End,
	})
	return st, nil
}

// runStage executes one stage through its breaker and reports the outcome.
func (r *Runner) runStage(ctx context.Context, stage string, ex Executor, st pipeline.State) (pipeline.State, error) {
	br := r.breakers.GetOrCreate(stage)

	telemetry.Emit(r.emitter, telemetry.EventStageStarted, telemetry.Fields{
		"stage": stage,
	})
	started := r.now()

	res, err := br.Do(func() (interface{}, error) {
		return ex.Execute(ctx, st)
	})
	if err != nil {
		telemetry.Emit(r.emitter, telemetry.EventStageFailed, telemetry.Fields{
			"stage": stage,
			"error": err.Error(),
		})
		// A breaker rejection is already a named, typed condition.
		var open *resilience.CircuitOpenError
		if errors.As(err, &open) {
			return st, err
		}
		return st, &StageExecutionError{Stage: stage, Err: err}
	}

	out, ok := res.(pipeline.State)
	if !ok {
		return st, &StageExecutionError{Stage: stage, Err: fmt.Errorf("executor returned %T, not a pipeline state", res)}
	}
	telemetry.Emit(r.emitter, telemetry.EventStageCompleted, telemetry.Fields{
		"stage":            stage,
		"duration_seconds": r.now().Sub(started).Seconds(),
		"score":            out.Score(),
	})
	return out, nil
}

// Next resolves the stage following a completed one for the given
// state. Resume uses it to re-enter a run after its last checkpoint
// instead of re-executing the checkpointed stage.
func (r *Runner) Next(stage string, st pipeline.State) (string, error) {
	if !r.graph.HasNode(stage) {
		return "", &RouteError{From: stage, To: stage}
	}
	return r.route(stage, st)
}

// route picks the next stage after a completed one.
func (r *Runner) route(stage string, st pipeline.State) (string, error) {
	if router, ok := r.graph.conditional[stage]; ok {
		target := router(st)
		if target == End {
			return End, nil
		}
		if !r.graph.HasNode(target) {
			return "", &RouteError{From: stage, To: target}
		}
		return target, nil
	}
	target, ok := r.graph.edges[stage]
	if !ok {
		return "", fmt.Errorf("stage %q has no outgoing edge", stage)
	}
	return target, nil
}
