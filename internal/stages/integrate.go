package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgeline/forgeline/internal/pipeline"
)

// IntegrateStage writes the generated artifacts into the workspace so
// the build and test commands can run against real files. It records
// the written paths in the state.
type IntegrateStage struct {
	workDir  string
	codeFile string
	testFile string
}

// NewIntegrateStage builds the integrate executor. The file names are
// workspace-relative.
func NewIntegrateStage(workDir, codeFile, testFile string) *IntegrateStage {
	if codeFile == "" {
		codeFile = "generated.go"
	}
	if testFile == "" {
		testFile = "generated_test.go"
	}
	return &IntegrateStage{workDir: workDir, codeFile: codeFile, testFile: testFile}
}

func (s *IntegrateStage) Execute(_ context.Context, st pipeline.State) (pipeline.State, error) {
	if st.GeneratedCode == "" {
		return st, fmt.Errorf("integrate: no generated code in state")
	}

	files := []pipeline.FileRef{{Path: s.codeFile, Content: st.GeneratedCode}}
	var testFiles []pipeline.FileRef
	if st.GeneratedTests != "" {
		testFiles = append(testFiles, pipeline.FileRef{Path: s.testFile, Content: st.GeneratedTests})
	}

	for _, f := range append(append([]pipeline.FileRef{}, files...), testFiles...) {
		path := filepath.Join(s.workDir, f.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return st, fmt.Errorf("integrate: %w", err)
		}
		if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
			return st, fmt.Errorf("integrate: write %s: %w", f.Path, err)
		}
	}

	return st.WithContextFiles(files, testFiles), nil
}
