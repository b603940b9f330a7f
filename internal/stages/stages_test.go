package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeline/forgeline/internal/checks"
	"github.com/forgeline/forgeline/internal/gate"
	"github.com/forgeline/forgeline/internal/graph"
	"github.com/forgeline/forgeline/internal/pipeline"
	"github.com/forgeline/forgeline/internal/recovery"
	"github.com/forgeline/forgeline/internal/telemetry"
)

// scriptedInvoker returns canned model responses in order.
type scriptedInvoker struct {
	responses []string
	prompts   []string
	err       error
}

func (s *scriptedInvoker) Invoke(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", fmt.Errorf("no scripted response left")
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r, nil
}

func ticketState() pipeline.State {
	return pipeline.NewState(pipeline.Ticket{
		URL:          "https://github.com/acme/widgets/issues/7",
		Title:        "Add rate limiter",
		Description:  "Limit request bursts.",
		Requirements: []string{"token bucket", "configurable rate"},
	})
}

func TestDecodeModelJSON(t *testing.T) {
	var out struct {
		Code string `json:"code"`
	}

	require.NoError(t, decodeModelJSON(`{"code": "x"}`, &out))
	assert.Equal(t, "x", out.Code)

	require.NoError(t, decodeModelJSON("```json\n{\"code\": \"y\"}\n```", &out))
	assert.Equal(t, "y", out.Code)

	require.NoError(t, decodeModelJSON("Here you go:\n{\"code\": \"z\"}\nDone.", &out))
	assert.Equal(t, "z", out.Code)

	assert.Error(t, decodeModelJSON("no json here", &out))
}

type stubSource struct {
	ticket *pipeline.Ticket
	err    error
	url    string
	runDir string
}

func (s *stubSource) FetchCached(url, runDir string) (*pipeline.Ticket, error) {
	s.url, s.runDir = url, runDir
	return s.ticket, s.err
}

func TestFetchStage(t *testing.T) {
	src := &stubSource{ticket: &pipeline.Ticket{URL: "u", Title: "fetched"}}
	stage := NewFetchStage(src, "/runs/1")

	out, err := stage.Execute(context.Background(), ticketState())
	require.NoError(t, err)
	assert.Equal(t, "fetched", out.Ticket.Title)
	assert.Equal(t, "https://github.com/acme/widgets/issues/7", src.url)
	assert.Equal(t, "/runs/1", src.runDir)
}

func TestFetchStageError(t *testing.T) {
	src := &stubSource{err: fmt.Errorf("gh exploded")}
	stage := NewFetchStage(src, "/runs/1")

	st := ticketState()
	out, err := stage.Execute(context.Background(), st)
	require.Error(t, err)
	assert.Equal(t, st, out)
}

func TestRefineStage(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{
		`{"title": "Refined", "description": "d", "requirements": ["r1"], "acceptance_criteria": ["a1"]}`,
	}}
	stage := NewRefineStage(inv, "")

	out, err := stage.Execute(context.Background(), ticketState())
	require.NoError(t, err)
	assert.Equal(t, "Refined", out.Ticket.Title)
	assert.Equal(t, []string{"r1"}, out.Ticket.Requirements)
	assert.Equal(t, []string{"a1"}, out.Ticket.AcceptanceCriteria)
	// The original URL survives refinement.
	assert.Equal(t, "https://github.com/acme/widgets/issues/7", out.Ticket.URL)
}

func TestRefineStageRejectsEmptyRequirements(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{`{"title": "Refined"}`}}
	stage := NewRefineStage(inv, "")

	_, err := stage.Execute(context.Background(), ticketState())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing title or requirements")
}

func TestGenerateStagePassesFirstRound(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{
		`{"code": "func Limit() {}", "method_name": "Limit"}`,
		`{"tests": "func TestLimit(t *testing.T) {}"}`,
		`{"score": 92, "errors": [], "warnings": []}`,
	}}
	stage := NewGenerateStage(inv, "", 80)

	out, err := stage.Execute(context.Background(), ticketState())
	require.NoError(t, err)
	assert.Equal(t, "func Limit() {}", out.GeneratedCode)
	assert.Equal(t, "Limit", out.MethodName)
	assert.Equal(t, "func TestLimit(t *testing.T) {}", out.GeneratedTests)
	assert.Equal(t, 92.0, out.Score())
	require.Len(t, out.ValidationHistory, 1)
	assert.Equal(t, StageGenerate, out.ValidationHistory[0].Stage)
}

func TestGenerateStageFeedsReviewBack(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{
		`{"code": "v1", "method_name": "Limit"}`,
		`{"tests": "t1"}`,
		`{"score": 40, "errors": ["missing edge case"], "warnings": []}`,
		`{"code": "v2", "method_name": "Limit"}`,
		`{"tests": "t2"}`,
		`{"score": 90, "errors": [], "warnings": []}`,
	}}
	stage := NewGenerateStage(inv, "", 80)

	out, err := stage.Execute(context.Background(), ticketState())
	require.NoError(t, err)
	assert.Equal(t, "v2", out.GeneratedCode)
	assert.Equal(t, 90.0, out.Score())
	// Both review rounds are in the audit trail.
	assert.Len(t, out.ValidationHistory, 2)
	// The second code prompt carries the first round's findings.
	require.Len(t, inv.prompts, 6)
	assert.Contains(t, inv.prompts[3], "missing edge case")
}

func TestGenerateStageRunsOutOfRounds(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{
		`{"code": "v1"}`,
		`{"tests": "t1"}`,
		`{"score": 10, "errors": ["bad"], "warnings": []}`,
		`{"code": "v2"}`,
		`{"tests": "t2"}`,
		`{"score": 20, "errors": ["still bad"], "warnings": []}`,
	}}
	stage := NewGenerateStage(inv, "", 80)
	stage.SetMaxRounds(2)

	out, err := stage.Execute(context.Background(), ticketState())
	require.NoError(t, err)
	// Best-effort artifacts survive for the checks and gate to judge.
	assert.Equal(t, "v2", out.GeneratedCode)
	assert.Equal(t, 20.0, out.Score())
}

func TestIntegrateStageWritesWorkspace(t *testing.T) {
	dir := t.TempDir()
	stage := NewIntegrateStage(dir, "", "")

	st := ticketState().
		WithCode("package w\n", "Limit", "").
		WithTests("package w_test\n")

	out, err := stage.Execute(context.Background(), st)
	require.NoError(t, err)

	code, err := os.ReadFile(filepath.Join(dir, "generated.go"))
	require.NoError(t, err)
	assert.Equal(t, "package w\n", string(code))

	tests, err := os.ReadFile(filepath.Join(dir, "generated_test.go"))
	require.NoError(t, err)
	assert.Equal(t, "package w_test\n", string(tests))

	require.Len(t, out.CodeFiles, 1)
	require.Len(t, out.TestFiles, 1)
	assert.Equal(t, "generated.go", out.CodeFiles[0].Path)
}

func TestIntegrateStageRequiresCode(t *testing.T) {
	stage := NewIntegrateStage(t.TempDir(), "", "")
	_, err := stage.Execute(context.Background(), ticketState())
	require.Error(t, err)
}

// scriptedCmd serves canned check command results.
type scriptedCmd struct {
	results map[string]cmdResult
}

type cmdResult struct {
	stdout, stderr string
	exit           int
}

func (c *scriptedCmd) Run(_ context.Context, _ string, command string) (string, string, int, error) {
	r, ok := c.results[command]
	if !ok {
		return "", "", 0, fmt.Errorf("unexpected command %q", command)
	}
	return r.stdout, r.stderr, r.exit, nil
}

func buildTestStage(cmd *scriptedCmd) *BuildTestStage {
	runner := checks.NewRunner(cmd)
	return NewBuildTestStage(runner, "/work",
		checks.CheckConfig{Command: "go build ./..."},
		checks.CheckConfig{Command: "go test ./..."},
	)
}

func TestBuildTestStageCleanPass(t *testing.T) {
	stage := buildTestStage(&scriptedCmd{results: map[string]cmdResult{
		"go build ./...": {},
		"go test ./...":  {stdout: "ok\n"},
	}})

	out, err := stage.Execute(context.Background(), ticketState())
	require.NoError(t, err)
	assert.Zero(t, out.CheckErrorCount())
	assert.Equal(t, 100.0, out.Score())
	assert.Equal(t, pipeline.StrategyNone, out.RecoveryStrategy)
}

func TestBuildTestStageBuildFailure(t *testing.T) {
	stage := buildTestStage(&scriptedCmd{results: map[string]cmdResult{
		"go build ./...": {stderr: "main.go:3:5: undefined: frob\n", exit: 1},
	}})

	out, err := stage.Execute(context.Background(), ticketState())
	require.NoError(t, err)
	require.Len(t, out.BuildErrors, 1)
	assert.Empty(t, out.TestErrors)
	assert.Equal(t, pipeline.StrategyBuildTest, out.RecoveryStrategy)
	assert.Equal(t, 90.0, out.Score())
	require.Len(t, out.ValidationHistory, 1)
	assert.False(t, out.ValidationHistory[0].Result.Success)
}

func TestBuildTestStageTestFailure(t *testing.T) {
	stage := buildTestStage(&scriptedCmd{results: map[string]cmdResult{
		"go build ./...": {},
		"go test ./...":  {stdout: "--- FAIL: TestLimit (0.01s)\nFAIL\n", exit: 1},
	}})

	out, err := stage.Execute(context.Background(), ticketState())
	require.NoError(t, err)
	assert.Empty(t, out.BuildErrors)
	require.Len(t, out.TestErrors, 1)
	assert.Equal(t, pipeline.StrategyBuildTest, out.RecoveryStrategy)
}

func TestLLMProposer(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{
		`{"fixed_code": "fixed", "fixed_tests": "fixed tests", "confidence": 75, "explanation": "renamed frob"}`,
	}}
	proposer := NewLLMProposer(inv, "")

	st := ticketState().
		WithCode("broken", "", "").
		WithCheckErrors([]string{"main.go:3:5: undefined: frob"}, nil)

	proposal, err := proposer.ProposeFix(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "fixed", proposal.Code)
	assert.Equal(t, 75.0, proposal.Confidence)
	// The prompt names the errors being fixed.
	require.Len(t, inv.prompts, 1)
	assert.Contains(t, inv.prompts[0], "undefined: frob")
}

func TestAfterBuildTestRouter(t *testing.T) {
	router := AfterBuildTest(Thresholds{Score: 80, Confidence: 30, MaxRecoveryAttempts: 5})

	clean := ticketState().WithValidation(pipeline.ValidationResult{Success: true, Score: 95})
	assert.Equal(t, StageReview, router(clean))

	// A clean build is not enough on its own: a low score still needs
	// a human look.
	lowScore := ticketState().WithValidation(pipeline.ValidationResult{Success: true, Score: 60})
	assert.Equal(t, StageHumanGate, router(lowScore))

	failing := clean.WithCheckErrors([]string{"boom"}, nil)
	assert.Equal(t, StageRecover, router(failing))

	exhausted := failing
	for i := 0; i < 5; i++ {
		exhausted = exhausted.WithRecoveryUpdate(80, "try")
	}
	assert.Equal(t, StageHumanGate, router(exhausted))

	hopeless := failing.WithRecoveryUpdate(10, "low confidence")
	assert.Equal(t, StageHumanGate, router(hopeless))
}

func TestBuildDefaultPipeline(t *testing.T) {
	noop := graph.ExecutorFunc(func(_ context.Context, st pipeline.State) (pipeline.State, error) {
		return st, nil
	})
	dispatcher := recovery.NewDispatcher(nil, 5, telemetry.NopEmitter{})
	recoverStage := NewRecoverExecutor(dispatcher)
	gateStage := NewGateExecutor(gate.New(true, nil, telemetry.NopEmitter{}))

	g, err := Build(noop, noop, noop, noop, noop, recoverStage, gateStage, noop,
		Thresholds{Score: 80, Confidence: 30, MaxRecoveryAttempts: 5})
	require.NoError(t, err)
	require.NoError(t, g.Validate())
	for _, name := range []string{
		StageFetch, StageRefine, StageGenerate, StageIntegrate,
		StageBuildTest, StageRecover, StageHumanGate, StageReview,
	} {
		assert.True(t, g.HasNode(name), name)
	}
	assert.Equal(t, StageFetch, g.EntryPoint())
}
