package stages

import (
	"context"
	"fmt"

	"github.com/forgeline/forgeline/internal/llm"
	"github.com/forgeline/forgeline/internal/pipeline"
	"github.com/forgeline/forgeline/internal/prompt"
)

// ReviewStage runs the final adversarial review over the artifacts
// that survived build, test, and gating, and records its verdict as
// the last validation entry.
type ReviewStage struct {
	invoker     llm.Invoker
	templateDir string
}

// NewReviewStage builds the review executor.
func NewReviewStage(invoker llm.Invoker, templateDir string) *ReviewStage {
	return &ReviewStage{invoker: invoker, templateDir: templateDir}
}

func (s *ReviewStage) Execute(ctx context.Context, st pipeline.State) (pipeline.State, error) {
	tmpl, err := prompt.Load("review.md", s.templateDir)
	if err != nil {
		return st, err
	}
	text, err := prompt.Render(tmpl, prompt.Vars{
		"title":        st.Ticket.Title,
		"code":         st.GeneratedCode,
		"tests":        st.GeneratedTests,
		"requirements": joinList(st.Ticket.Requirements),
	})
	if err != nil {
		return st, err
	}

	response, err := s.invoker.Invoke(ctx, text)
	if err != nil {
		return st, fmt.Errorf("review: %w", err)
	}

	var out struct {
		Score    float64  `json:"score"`
		Errors   []string `json:"errors"`
		Warnings []string `json:"warnings"`
	}
	if err := decodeModelJSON(response, &out); err != nil {
		return st, fmt.Errorf("review: %w", err)
	}

	result := pipeline.NewValidationResult(out.Score, out.Errors, out.Warnings)
	return st.RecordValidation(StageReview, result), nil
}
