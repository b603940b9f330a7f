package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forgeline/forgeline/internal/checks"
	"github.com/forgeline/forgeline/internal/config"
	"github.com/forgeline/forgeline/internal/gate"
	"github.com/forgeline/forgeline/internal/graph"
	"github.com/forgeline/forgeline/internal/llm"
	"github.com/forgeline/forgeline/internal/pipeline"
	"github.com/forgeline/forgeline/internal/recovery"
	"github.com/forgeline/forgeline/internal/resilience"
	"github.com/forgeline/forgeline/internal/stages"
	"github.com/forgeline/forgeline/internal/telemetry"
	"github.com/forgeline/forgeline/internal/ticket"
	"github.com/forgeline/forgeline/internal/workspace"
)

// Run is one fully wired pipeline run: its graph runner, its emitter
// chain with the audit trail, and its breaker registry. Breaker state
// is scoped to the run, one run's open circuits never gate another.
type Run struct {
	Info *pipeline.RunInfo

	rt      *Runtime
	runner  *graph.Runner
	auditor *Auditor
}

// RunOptions overrides per-run collaborators, mainly for tests and for
// the CLI to inject its stdin-backed prompter.
type RunOptions struct {
	Invoker  llm.Invoker          // nil: resilient OpenAI invoker from config
	Prompter gate.Prompter        // nil: gate falls back to its default decision
	Commands checks.CommandRunner // nil: sh -c via exec
	Tickets  stages.TicketSource  // nil: gh via exec
}

// NewRun creates a run for a ticket and wires its pipeline.
func (r *Runtime) NewRun(ticketURL string, opts RunOptions) (*Run, error) {
	info, err := r.store.Create(ticketURL, stages.StageFetch)
	if err != nil {
		return nil, err
	}
	return r.buildRun(info, opts)
}

// Resume reattaches to an existing run.
func (r *Runtime) Resume(runID string, opts RunOptions) (*Run, error) {
	info, err := r.store.Get(runID)
	if err != nil {
		return nil, err
	}
	return r.buildRun(info, opts)
}

func (r *Runtime) buildRun(info *pipeline.RunInfo, opts RunOptions) (*Run, error) {
	auditor := NewAuditor(r.database, info.RunID)
	emitter := telemetry.NewMultiEmitter(r.emitter, auditor)

	registry := r.newBreakerRegistry(emitter)

	invoker := opts.Invoker
	if invoker == nil {
		inner, err := llm.NewOpenAIInvoker(r.cfg.LLM)
		if err != nil {
			return nil, err
		}
		invoker = llm.NewResilientInvoker(inner, registry, resilience.RetryConfig{
			MaxAttempts: r.cfg.Retry.MaxAttempts,
			Backoff: resilience.BackoffPolicy{
				Base:   config.ParseDuration(r.cfg.Retry.BaseDelay, time.Second),
				Max:    config.ParseDuration(r.cfg.Retry.MaxDelay, time.Minute),
				Jitter: r.cfg.Retry.Jitter,
			},
		}, emitter)
	}

	cmd := opts.Commands
	if cmd == nil {
		cmd = &checks.ExecRunner{}
	}

	tickets := opts.Tickets
	if tickets == nil {
		tickets = ticket.NewFetcher(nil)
	}

	g, err := r.buildGraph(info, invoker, cmd, tickets, opts.Prompter, emitter)
	if err != nil {
		return nil, err
	}

	runner := graph.NewRunner(g, registry, emitter)
	runner.SetCheckpoint(func(stage string, st pipeline.State) error {
		_, err := r.store.SaveCheckpoint(info.RunID, stage, st)
		return err
	})

	return &Run{Info: info, rt: r, runner: runner, auditor: auditor}, nil
}

// newBreakerRegistry builds the per-run registry with configured
// defaults, per-stage overrides, and a reporter feeding the emitter
// chain.
func (r *Runtime) newBreakerRegistry(emitter telemetry.Emitter) *resilience.Registry {
	report := func(name string, state resilience.BreakerState, failures int) {
		telemetry.Emit(emitter, telemetry.EventBreakerState, telemetry.Fields{
			"breaker":  name,
			"state":    state.String(),
			"failures": failures,
		})
	}

	registry := resilience.NewRegistry(resilience.BreakerConfig{
		FailureThreshold: r.cfg.Breakers.FailureThreshold,
		RecoveryTimeout:  config.ParseDuration(r.cfg.Breakers.RecoveryTimeout, time.Minute),
	}, report)

	for stage := range r.cfg.Breakers.PerStage {
		bc := r.cfg.BreakerFor(stage)
		registry.GetOrCreateWith(stage, resilience.BreakerConfig{
			FailureThreshold: bc.FailureThreshold,
			RecoveryTimeout:  config.ParseDuration(bc.RecoveryTimeout, time.Minute),
		})
	}
	return registry
}

func (r *Runtime) buildGraph(
	info *pipeline.RunInfo,
	invoker llm.Invoker,
	cmd checks.CommandRunner,
	tickets stages.TicketSource,
	prompter gate.Prompter,
	emitter telemetry.Emitter,
) (*graph.Graph, error) {
	cfg := r.cfg
	runDir := r.store.RunDir(info.RunID)
	templateDir := "" // builtin templates; overridable later via config

	workDir := cfg.Checks.WorkDir
	if workDir == "" {
		workDir = cfg.Pipeline.Repo
	}

	runner := checks.NewRunner(cmd)
	buildTest := stages.NewBuildTestStage(runner, workDir,
		checks.CheckConfig{
			Command: cfg.Checks.Build.Command,
			Timeout: config.ParseDuration(cfg.Checks.Build.Timeout, 5*time.Minute),
		},
		checks.CheckConfig{
			Command: cfg.Checks.Test.Command,
			Timeout: config.ParseDuration(cfg.Checks.Test.Timeout, 10*time.Minute),
		},
	)

	dispatcher := recovery.NewDispatcher(
		stages.NewLLMProposer(invoker, templateDir),
		cfg.Recovery.MaxAttempts,
		emitter,
	)
	humanGate := gate.New(cfg.Pipeline.Automation, prompter, emitter)
	humanGate.SetThreshold(float64(cfg.Pipeline.ScoreThreshold))

	generate := stages.NewGenerateStage(invoker, templateDir, float64(cfg.Pipeline.ScoreThreshold))
	generate.SetContextSource(workspace.NewCollector(workDir, &workspace.ExecGit{}))

	return stages.Build(
		stages.NewFetchStage(tickets, runDir),
		stages.NewRefineStage(invoker, templateDir),
		generate,
		stages.NewIntegrateStage(workDir, "", ""),
		buildTest,
		stages.NewRecoverExecutor(dispatcher),
		stages.NewGateExecutor(humanGate),
		stages.NewReviewStage(invoker, templateDir),
		stages.Thresholds{
			Score:               float64(cfg.Pipeline.ScoreThreshold),
			Confidence:          float64(cfg.Recovery.ConfidenceThreshold),
			MaxRecoveryAttempts: cfg.Recovery.MaxAttempts,
		},
	)
}

// Execute runs the pipeline from its entry point and records the
// outcome in the run store and audit trail.
func (run *Run) Execute(ctx context.Context) (pipeline.State, error) {
	run.auditor.RunStarted(run.Info.TicketURL)
	if err := run.setStatus(pipeline.StatusInProgress); err != nil {
		return pipeline.State{}, err
	}

	st := pipeline.NewState(pipeline.Ticket{URL: run.Info.TicketURL})
	out, err := run.runner.Run(ctx, st)
	return run.finish(out, err)
}

// ExecuteFrom resumes the pipeline after the run's latest checkpoint.
// With no checkpoint it behaves like Execute.
func (run *Run) ExecuteFrom(ctx context.Context) (pipeline.State, error) {
	cp, err := run.rt.store.LatestCheckpoint(run.Info.RunID)
	if err != nil {
		return pipeline.State{}, err
	}
	if cp == nil {
		return run.Execute(ctx)
	}

	next, err := run.runner.Next(cp.Stage, cp.State)
	if err != nil {
		return cp.State, err
	}
	if next == graph.End {
		_ = run.setStatus(pipeline.StatusCompleted)
		return cp.State, nil
	}

	if err := run.setStatus(pipeline.StatusInProgress); err != nil {
		return cp.State, err
	}
	out, err := run.runner.RunFrom(ctx, next, cp.State)
	return run.finish(out, err)
}

func (run *Run) finish(st pipeline.State, err error) (pipeline.State, error) {
	if err == nil {
		_ = run.setStatus(pipeline.StatusCompleted)
		return st, nil
	}
	// Checkpoints advance the stored stage; pick up where the run died.
	stage := run.Info.CurrentStage
	if info, gerr := run.rt.store.Get(run.Info.RunID); gerr == nil {
		stage = info.CurrentStage
	}
	if isBlocked(err) {
		run.auditor.RunBlocked(stage, err)
		_ = run.setStatus(pipeline.StatusBlocked)
	} else {
		run.auditor.RunFailed(stage, err)
		_ = run.setStatus(pipeline.StatusFailed)
	}
	return st, err
}

func (run *Run) setStatus(status string) error {
	if err := run.rt.store.Update(run.Info.RunID, func(info *pipeline.RunInfo) {
		info.Status = status
	}); err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	run.Info.Status = status
	return nil
}

// isBlocked classifies errors that need a human rather than a retry:
// an open circuit or an exhausted recovery loop.
func isBlocked(err error) bool {
	var open *resilience.CircuitOpenError
	var exhausted *recovery.RecoveryExhaustedError
	return errors.As(err, &open) || errors.As(err, &exhausted)
}
