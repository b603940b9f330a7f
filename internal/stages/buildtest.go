package stages

import (
	"context"
	"fmt"

	"github.com/forgeline/forgeline/internal/checks"
	"github.com/forgeline/forgeline/internal/pipeline"
)

// BuildTestStage runs the configured build and test commands and folds
// their outcome into the state: error lists for the recovery loop and
// a validation record for the audit trail.
type BuildTestStage struct {
	runner  *checks.Runner
	workDir string
	build   checks.CheckConfig
	test    checks.CheckConfig
}

// NewBuildTestStage builds the executor.
func NewBuildTestStage(runner *checks.Runner, workDir string, build, test checks.CheckConfig) *BuildTestStage {
	if build.Parser == "" {
		build.Parser = "gobuild"
	}
	if test.Parser == "" {
		test.Parser = "gotest"
	}
	build.Name = "build"
	test.Name = "test"
	return &BuildTestStage{runner: runner, workDir: workDir, build: build, test: test}
}

func (s *BuildTestStage) Execute(_ context.Context, st pipeline.State) (pipeline.State, error) {
	buildRes, err := s.runner.Run(s.workDir, s.build)
	if err != nil {
		return st, fmt.Errorf("build check: %w", err)
	}

	var testRes *checks.Result
	if buildRes.Passed {
		testRes, err = s.runner.Run(s.workDir, s.test)
		if err != nil {
			return st, fmt.Errorf("test check: %w", err)
		}
	} else {
		// A broken build makes test output meaningless.
		testRes = &checks.Result{CheckName: "test", Passed: false, Summary: "skipped: build failed"}
	}

	next := st.WithCheckErrors(buildRes.Errors, testRes.Errors)
	result := pipeline.NewValidationResult(
		checkScore(buildRes, testRes),
		append(append([]string{}, buildRes.Errors...), testRes.Errors...),
		nil,
	)
	next = next.RecordValidation(StageBuildTest, result)

	if !result.Success && next.RecoveryStrategy == pipeline.StrategyNone {
		next = next.WithRecoveryStrategy(pipeline.StrategyBuildTest)
	}
	return next, nil
}

// checkScore maps check outcomes to a 0-100 score: a clean pass is
// 100, and every error line costs 10 points.
func checkScore(build, test *checks.Result) float64 {
	if build.Passed && test.Passed {
		return 100
	}
	score := 100.0 - 10.0*float64(len(build.Errors)+len(test.Errors))
	if score < 0 {
		score = 0
	}
	return score
}
