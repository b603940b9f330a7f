package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/forgeline/forgeline/internal/llm"
	"github.com/forgeline/forgeline/internal/pipeline"
	"github.com/forgeline/forgeline/internal/prompt"
)

// defaultMaxRounds bounds the generation refinement loop.
const defaultMaxRounds = 3

// ContextSource supplies repository files relevant to a ticket, used
// as generation context.
type ContextSource interface {
	Collect(keywords []string) (code, tests []pipeline.FileRef, err error)
}

// GenerateStage produces code and tests collaboratively: generate,
// self-review, and regenerate with the review findings as feedback
// until the score clears the threshold or the round budget runs out.
// Every review lands in the validation history, so the audit trail
// shows how the artifacts converged.
type GenerateStage struct {
	invoker     llm.Invoker
	templateDir string
	threshold   float64
	maxRounds   int
	context     ContextSource
}

// NewGenerateStage builds the generation executor.
func NewGenerateStage(invoker llm.Invoker, templateDir string, threshold float64) *GenerateStage {
	return &GenerateStage{
		invoker:     invoker,
		templateDir: templateDir,
		threshold:   threshold,
		maxRounds:   defaultMaxRounds,
	}
}

// SetMaxRounds overrides the refinement round budget.
func (s *GenerateStage) SetMaxRounds(n int) {
	if n > 0 {
		s.maxRounds = n
	}
}

// SetContextSource enables repository context collection before the
// first generation round.
func (s *GenerateStage) SetContextSource(cs ContextSource) {
	s.context = cs
}

func (s *GenerateStage) Execute(ctx context.Context, st pipeline.State) (pipeline.State, error) {
	// Context collection is best effort; generation proceeds without
	// repository files when it fails.
	if s.context != nil && len(st.CodeFiles) == 0 {
		keywords := append([]string{}, st.Ticket.Requirements...)
		keywords = append(keywords, strings.Fields(st.Ticket.Title)...)
		if code, tests, err := s.context.Collect(keywords); err == nil {
			st = st.WithContextFiles(code, tests)
		}
	}

	feedback := ""
	for round := 0; round < s.maxRounds; round++ {
		next, err := s.generateCode(ctx, st, feedback)
		if err != nil {
			return st, err
		}
		next, err = s.generateTests(ctx, next)
		if err != nil {
			return st, err
		}

		result, err := s.selfReview(ctx, next)
		if err != nil {
			return st, err
		}
		next = next.RecordValidation(StageGenerate, result)

		if result.Score >= s.threshold {
			return next, nil
		}
		st = next
		feedback = joinList(append(result.Errors, result.Warnings...))
	}
	// Out of rounds: carry the best-effort artifacts forward and let
	// the build/test stage and human gate judge them.
	return st, nil
}

func (s *GenerateStage) generateCode(ctx context.Context, st pipeline.State, feedback string) (pipeline.State, error) {
	tmpl, err := prompt.Load("generate-code.md", s.templateDir)
	if err != nil {
		return st, err
	}
	text, err := prompt.Render(tmpl, prompt.Vars{
		"title":               st.Ticket.Title,
		"description":         st.Ticket.Description,
		"requirements":        joinList(st.Ticket.Requirements),
		"acceptance_criteria": joinList(st.Ticket.AcceptanceCriteria),
		"context_files":       renderFiles(st.CodeFiles),
		"feedback":            feedback,
	})
	if err != nil {
		return st, err
	}

	response, err := s.invoker.Invoke(ctx, text)
	if err != nil {
		return st, fmt.Errorf("generate code: %w", err)
	}

	var out struct {
		Code       string `json:"code"`
		MethodName string `json:"method_name"`
	}
	if err := decodeModelJSON(response, &out); err != nil {
		return st, fmt.Errorf("generate code: %w", err)
	}
	if out.Code == "" {
		return st, fmt.Errorf("generate code: response contained no code")
	}
	return st.WithCode(out.Code, out.MethodName, ""), nil
}

func (s *GenerateStage) generateTests(ctx context.Context, st pipeline.State) (pipeline.State, error) {
	tmpl, err := prompt.Load("generate-tests.md", s.templateDir)
	if err != nil {
		return st, err
	}
	text, err := prompt.Render(tmpl, prompt.Vars{
		"title":               st.Ticket.Title,
		"code":                st.GeneratedCode,
		"requirements":        joinList(st.Ticket.Requirements),
		"acceptance_criteria": joinList(st.Ticket.AcceptanceCriteria),
	})
	if err != nil {
		return st, err
	}

	response, err := s.invoker.Invoke(ctx, text)
	if err != nil {
		return st, fmt.Errorf("generate tests: %w", err)
	}

	var out struct {
		Tests string `json:"tests"`
	}
	if err := decodeModelJSON(response, &out); err != nil {
		return st, fmt.Errorf("generate tests: %w", err)
	}
	if out.Tests == "" {
		return st, fmt.Errorf("generate tests: response contained no tests")
	}
	return st.WithTests(out.Tests), nil
}

func (s *GenerateStage) selfReview(ctx context.Context, st pipeline.State) (pipeline.ValidationResult, error) {
	tmpl, err := prompt.Load("review.md", s.templateDir)
	if err != nil {
		return pipeline.ValidationResult{}, err
	}
	text, err := prompt.Render(tmpl, prompt.Vars{
		"title":        st.Ticket.Title,
		"code":         st.GeneratedCode,
		"tests":        st.GeneratedTests,
		"requirements": joinList(st.Ticket.Requirements),
	})
	if err != nil {
		return pipeline.ValidationResult{}, err
	}

	response, err := s.invoker.Invoke(ctx, text)
	if err != nil {
		return pipeline.ValidationResult{}, fmt.Errorf("self review: %w", err)
	}

	var out struct {
		Score    float64  `json:"score"`
		Errors   []string `json:"errors"`
		Warnings []string `json:"warnings"`
	}
	if err := decodeModelJSON(response, &out); err != nil {
		return pipeline.ValidationResult{}, fmt.Errorf("self review: %w", err)
	}
	return pipeline.NewValidationResult(out.Score, out.Errors, out.Warnings), nil
}

// renderFiles formats context files for a prompt.
func renderFiles(files []pipeline.FileRef) string {
	if len(files) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "### %s\n```\n%s\n```\n", f.Path, f.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
