package stages

import (
	"context"
	"fmt"

	"github.com/forgeline/forgeline/internal/gate"
	"github.com/forgeline/forgeline/internal/graph"
	"github.com/forgeline/forgeline/internal/pipeline"
	"github.com/forgeline/forgeline/internal/recovery"
)

// Thresholds carries the routing knobs the default pipeline needs.
type Thresholds struct {
	Score               float64
	Confidence          float64
	MaxRecoveryAttempts int
}

// RecoverExecutor adapts the recovery dispatcher to the graph.
type RecoverExecutor struct {
	dispatcher *recovery.Dispatcher
}

// NewRecoverExecutor wraps a dispatcher as a stage.
func NewRecoverExecutor(d *recovery.Dispatcher) *RecoverExecutor {
	return &RecoverExecutor{dispatcher: d}
}

func (s *RecoverExecutor) Execute(ctx context.Context, st pipeline.State) (pipeline.State, error) {
	return s.dispatcher.Dispatch(ctx, st)
}

// GateExecutor adapts the human gate to the graph.
type GateExecutor struct {
	gate *gate.Gate
}

// NewGateExecutor wraps a gate as a stage.
func NewGateExecutor(g *gate.Gate) *GateExecutor {
	return &GateExecutor{gate: g}
}

func (s *GateExecutor) Execute(_ context.Context, st pipeline.State) (pipeline.State, error) {
	return s.gate.Review(st)
}

// AfterBuildTest routes the build/test outcome: clean states with a
// passing score go to review, recoverable failures into the fix loop,
// and everything else to the human gate. The attempt ceiling is
// enforced here, before the recover stage runs, so the dispatcher's
// own exhaustion error is only a backstop.
func AfterBuildTest(t Thresholds) graph.Router {
	return func(st pipeline.State) string {
		if st.CheckErrorCount() == 0 {
			if st.Score() < t.Score {
				return StageHumanGate
			}
			return StageReview
		}
		if st.RecoveryAttempt < t.MaxRecoveryAttempts && st.RecoveryConfidence > t.Confidence {
			return StageRecover
		}
		return StageHumanGate
	}
}

// Build assembles the default pipeline graph from its stage executors.
// The recover loop re-integrates proposed fixes and re-runs the checks
// until the errors clear or the ceilings route it to the gate.
func Build(
	fetch, refine, generate, integrate, buildTest, recoverStage, humanGate, review graph.Executor,
	t Thresholds,
) (*graph.Graph, error) {
	g := graph.New()

	nodes := []struct {
		name string
		ex   graph.Executor
	}{
		{StageFetch, fetch},
		{StageRefine, refine},
		{StageGenerate, generate},
		{StageIntegrate, integrate},
		{StageBuildTest, buildTest},
		{StageRecover, recoverStage},
		{StageHumanGate, humanGate},
		{StageReview, review},
	}
	for _, n := range nodes {
		if err := g.AddNode(n.name, n.ex); err != nil {
			return nil, fmt.Errorf("build pipeline: %w", err)
		}
	}

	edges := []struct{ from, to string }{
		{StageFetch, StageRefine},
		{StageRefine, StageGenerate},
		{StageGenerate, StageIntegrate},
		{StageIntegrate, StageBuildTest},
		{StageRecover, StageIntegrate},
		{StageHumanGate, StageReview},
		{StageReview, graph.End},
	}
	for _, e := range edges {
		if err := g.AddEdge(e.from, e.to); err != nil {
			return nil, fmt.Errorf("build pipeline: %w", err)
		}
	}

	if err := g.AddConditionalEdge(StageBuildTest, AfterBuildTest(t)); err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	if err := g.SetEntryPoint(StageFetch); err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return g, nil
}
