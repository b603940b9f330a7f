package stages

import (
	"context"
	"fmt"

	"github.com/forgeline/forgeline/internal/llm"
	"github.com/forgeline/forgeline/internal/pipeline"
	"github.com/forgeline/forgeline/internal/prompt"
)

// RefineStage turns the raw ticket into a precise work specification
// through one model call.
type RefineStage struct {
	invoker     llm.Invoker
	templateDir string
}

// NewRefineStage builds the refine executor.
func NewRefineStage(invoker llm.Invoker, templateDir string) *RefineStage {
	return &RefineStage{invoker: invoker, templateDir: templateDir}
}

func (s *RefineStage) Execute(ctx context.Context, st pipeline.State) (pipeline.State, error) {
	tmpl, err := prompt.Load("refine.md", s.templateDir)
	if err != nil {
		return st, err
	}
	text, err := prompt.Render(tmpl, prompt.Vars{
		"ticket_url":  st.Ticket.URL,
		"ticket_body": st.Ticket.Description,
	})
	if err != nil {
		return st, err
	}

	response, err := s.invoker.Invoke(ctx, text)
	if err != nil {
		return st, fmt.Errorf("refine ticket: %w", err)
	}

	var refined struct {
		Title              string   `json:"title"`
		Description        string   `json:"description"`
		Requirements       []string `json:"requirements"`
		AcceptanceCriteria []string `json:"acceptance_criteria"`
	}
	if err := decodeModelJSON(response, &refined); err != nil {
		return st, fmt.Errorf("refine ticket: %w", err)
	}
	if refined.Title == "" || len(refined.Requirements) == 0 {
		return st, fmt.Errorf("refine ticket: response missing title or requirements")
	}

	return st.WithTicket(pipeline.Ticket{
		URL:                st.Ticket.URL,
		Title:              refined.Title,
		Description:        refined.Description,
		Requirements:       refined.Requirements,
		AcceptanceCriteria: refined.AcceptanceCriteria,
	}), nil
}
