package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeline/forgeline/internal/pipeline"
	"github.com/forgeline/forgeline/internal/resilience"
	"github.com/forgeline/forgeline/internal/telemetry"
)

var errStage = errors.New("stage blew up")

func passThrough(name string) Executor {
	return ExecutorFunc(func(_ context.Context, st pipeline.State) (pipeline.State, error) {
		return st.WithFeedback(map[string]string{name: "done"}), nil
	})
}

func failing() Executor {
	return ExecutorFunc(func(_ context.Context, st pipeline.State) (pipeline.State, error) {
		return st, errStage
	})
}

func newRegistry() *resilience.Registry {
	return resilience.NewRegistry(resilience.BreakerConfig{FailureThreshold: 5}, nil)
}

func linearGraph(t *testing.T, names ...string) *Graph {
	t.Helper()
	g := New()
	for _, n := range names {
		require.NoError(t, g.AddNode(n, passThrough(n)))
	}
	for i := 0; i < len(names)-1; i++ {
		require.NoError(t, g.AddEdge(names[i], names[i+1]))
	}
	require.NoError(t, g.AddEdge(names[len(names)-1], End))
	require.NoError(t, g.SetEntryPoint(names[0]))
	return g
}

func TestBuilderRejectsDuplicates(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode("a", passThrough("a")))
	assert.Error(t, g.AddNode("a", passThrough("a")))
	assert.Error(t, g.AddNode(End, passThrough("x")))
	assert.Error(t, g.AddNode("", passThrough("x")))

	require.NoError(t, g.AddNode("b", passThrough("b")))
	require.NoError(t, g.AddEdge("a", "b"))
	assert.Error(t, g.AddEdge("a", "b"), "second unconditional edge")
	assert.Error(t, g.AddConditionalEdge("a", func(pipeline.State) string { return End }))
	assert.Error(t, g.AddEdge("ghost", "b"))
	assert.Error(t, g.SetEntryPoint("ghost"))
}

func TestValidate(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode("a", passThrough("a")))
	assert.Error(t, g.Validate(), "no entry point")

	require.NoError(t, g.SetEntryPoint("a"))
	assert.Error(t, g.Validate(), "stage without outgoing edge")

	require.NoError(t, g.AddEdge("a", "nowhere"))
	assert.Error(t, g.Validate(), "edge to unknown stage")

	ok := linearGraph(t, "a", "b")
	assert.NoError(t, ok.Validate())
}

func TestRunLinear(t *testing.T) {
	g := linearGraph(t, "fetch", "generate", "review")
	r := NewRunner(g, newRegistry(), nil)

	out, err := r.Run(context.Background(), pipeline.NewState(pipeline.Ticket{URL: "t"}))
	require.NoError(t, err)
	assert.Equal(t, "done", out.Feedback["fetch"])
	assert.Equal(t, "done", out.Feedback["generate"])
	assert.Equal(t, "done", out.Feedback["review"])
}

func TestFailingStageHaltsRun(t *testing.T) {
	// A three stage run where the middle stage always raises: the run
	// surfaces a stage execution error, the middle breaker records one
	// failure, and the final stage never executes.
	g := New()
	require.NoError(t, g.AddNode("a", passThrough("a")))
	require.NoError(t, g.AddNode("b", failing()))
	reachedC := false
	require.NoError(t, g.AddNode("c", ExecutorFunc(func(_ context.Context, st pipeline.State) (pipeline.State, error) {
		reachedC = true
		return st, nil
	})))
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))
	require.NoError(t, g.AddEdge("c", End))
	require.NoError(t, g.SetEntryPoint("a"))

	reg := newRegistry()
	r := NewRunner(g, reg, nil)
	_, err := r.Run(context.Background(), pipeline.NewState(pipeline.Ticket{}))

	var se *StageExecutionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "b", se.Stage)
	assert.ErrorIs(t, err, errStage)
	assert.Equal(t, 1, reg.GetOrCreate("b").FailureCount())
	assert.False(t, reachedC)
}

func TestOpenBreakerRejectsStage(t *testing.T) {
	g := linearGraph(t, "a")
	reg := resilience.NewRegistry(resilience.BreakerConfig{FailureThreshold: 1}, nil)

	// Trip the breaker for "a" ahead of the run.
	br := reg.GetOrCreate("a")
	_, err := br.Do(func() (interface{}, error) { return nil, errStage })
	require.Error(t, err)

	r := NewRunner(g, reg, nil)
	_, err = r.Run(context.Background(), pipeline.NewState(pipeline.Ticket{}))

	var open *resilience.CircuitOpenError
	assert.ErrorAs(t, err, &open, "breaker rejection surfaces as CircuitOpenError, not StageExecutionError")
}

func TestConditionalRouting(t *testing.T) {
	// After generation, low scores go to human review and passing
	// scores go on to integration.
	build := func(score float64) (*Graph, *[]string) {
		var visited []string
		record := func(name string) Executor {
			return ExecutorFunc(func(_ context.Context, st pipeline.State) (pipeline.State, error) {
				visited = append(visited, name)
				if name == "generate" {
					return st.WithValidation(pipeline.NewValidationResult(score, nil, nil)), nil
				}
				return st, nil
			})
		}
		g := New()
		require.NoError(t, g.AddNode("generate", record("generate")))
		require.NoError(t, g.AddNode("human_review", record("human_review")))
		require.NoError(t, g.AddNode("integration", record("integration")))
		require.NoError(t, g.AddConditionalEdge("generate", func(st pipeline.State) string {
			if st.Score() < 80 {
				return "human_review"
			}
			return "integration"
		}))
		require.NoError(t, g.AddEdge("human_review", End))
		require.NoError(t, g.AddEdge("integration", End))
		require.NoError(t, g.SetEntryPoint("generate"))
		return g, &visited
	}

	g, visited := build(60)
	_, err := NewRunner(g, newRegistry(), nil).Run(context.Background(), pipeline.NewState(pipeline.Ticket{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"generate", "human_review"}, *visited)

	g, visited = build(95)
	_, err = NewRunner(g, newRegistry(), nil).Run(context.Background(), pipeline.NewState(pipeline.Ticket{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"generate", "integration"}, *visited)
}

func TestRouterToUnknownStage(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode("a", passThrough("a")))
	require.NoError(t, g.AddConditionalEdge("a", func(pipeline.State) string { return "nowhere" }))
	require.NoError(t, g.SetEntryPoint("a"))

	_, err := NewRunner(g, newRegistry(), nil).Run(context.Background(), pipeline.NewState(pipeline.Ticket{}))
	var re *RouteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "nowhere", re.To)
}

func TestCycleGuard(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode("loop", passThrough("loop")))
	require.NoError(t, g.AddEdge("loop", "loop"))
	require.NoError(t, g.SetEntryPoint("loop"))

	r := NewRunner(g, newRegistry(), nil)
	r.SetMaxSteps(10)
	_, err := r.Run(context.Background(), pipeline.NewState(pipeline.Ticket{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage transitions")
}

func TestCheckpointAfterEveryStage(t *testing.T) {
	g := linearGraph(t, "a", "b")
	r := NewRunner(g, newRegistry(), nil)

	var stages []string
	r.SetCheckpoint(func(stage string, st pipeline.State) error {
		stages = append(stages, stage)
		return nil
	})
	_, err := r.Run(context.Background(), pipeline.NewState(pipeline.Ticket{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, stages)
}

func TestCheckpointFailureStopsRun(t *testing.T) {
	g := linearGraph(t, "a", "b")
	r := NewRunner(g, newRegistry(), nil)
	r.SetCheckpoint(func(string, pipeline.State) error {
		return errors.New("disk full")
	})
	out, err := r.Run(context.Background(), pipeline.NewState(pipeline.Ticket{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint")
	// State produced by the completed stage is still returned.
	assert.Equal(t, "done", out.Feedback["a"])
}

func TestRunFromResumesMidGraph(t *testing.T) {
	g := linearGraph(t, "a", "b", "c")
	r := NewRunner(g, newRegistry(), nil)

	out, err := r.RunFrom(context.Background(), "b", pipeline.NewState(pipeline.Ticket{}))
	require.NoError(t, err)
	assert.Empty(t, out.Feedback["a"])
	assert.Equal(t, "done", out.Feedback["b"])
	assert.Equal(t, "done", out.Feedback["c"])
}

func TestRunHonorsContextCancellation(t *testing.T) {
	g := linearGraph(t, "a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(g, newRegistry(), nil).Run(ctx, pipeline.NewState(pipeline.Ticket{}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStageEventsEmitted(t *testing.T) {
	g := linearGraph(t, "a")
	rec := &recordingEmitter{}
	r := NewRunner(g, newRegistry(), rec)

	_, err := r.Run(context.Background(), pipeline.NewState(pipeline.Ticket{}))
	require.NoError(t, err)
	assert.Equal(t, []string{
		telemetry.EventStageStarted,
		telemetry.EventStageCompleted,
		telemetry.EventRunCompleted,
	}, rec.events)
}

func TestPanickingEmitterDoesNotAffectRun(t *testing.T) {
	g := linearGraph(t, "a")
	r := NewRunner(g, newRegistry(), panicEmitter{})
	out, err := r.Run(context.Background(), pipeline.NewState(pipeline.Ticket{}))
	require.NoError(t, err)
	assert.Equal(t, "done", out.Feedback["a"])
}

type recordingEmitter struct {
	events []string
}

func (r *recordingEmitter) Emit(event string, _ telemetry.Fields) {
	r.events = append(r.events, event)
}

type panicEmitter struct{}

func (panicEmitter) Emit(string, telemetry.Fields) {
	panic("emitter down")
}
