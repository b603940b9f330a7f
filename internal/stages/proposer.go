package stages

import (
	"context"
	"fmt"
	"strconv"

	"github.com/forgeline/forgeline/internal/llm"
	"github.com/forgeline/forgeline/internal/pipeline"
	"github.com/forgeline/forgeline/internal/prompt"
	"github.com/forgeline/forgeline/internal/recovery"
)

// LLMProposer asks the model for fixed artifacts given the build and
// test errors accumulated in the state.
type LLMProposer struct {
	invoker     llm.Invoker
	templateDir string
}

// NewLLMProposer builds the proposer backing the recovery dispatcher.
func NewLLMProposer(invoker llm.Invoker, templateDir string) *LLMProposer {
	return &LLMProposer{invoker: invoker, templateDir: templateDir}
}

func (p *LLMProposer) ProposeFix(ctx context.Context, st pipeline.State) (recovery.FixProposal, error) {
	tmpl, err := prompt.Load("fix.md", p.templateDir)
	if err != nil {
		return recovery.FixProposal{}, err
	}
	text, err := prompt.Render(tmpl, prompt.Vars{
		"title":        st.Ticket.Title,
		"code":         st.GeneratedCode,
		"tests":        st.GeneratedTests,
		"build_errors": joinList(st.BuildErrors),
		"test_errors":  joinList(st.TestErrors),
		"attempt":      strconv.Itoa(st.RecoveryAttempt + 1),
	})
	if err != nil {
		return recovery.FixProposal{}, err
	}

	response, err := p.invoker.Invoke(ctx, text)
	if err != nil {
		return recovery.FixProposal{}, fmt.Errorf("propose fix: %w", err)
	}

	var proposal recovery.FixProposal
	if err := decodeModelJSON(response, &proposal); err != nil {
		return recovery.FixProposal{}, fmt.Errorf("propose fix: %w", err)
	}
	return proposal, nil
}

var _ recovery.FixProposer = (*LLMProposer)(nil)
