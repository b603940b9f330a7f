package stages

import (
	"context"
	"fmt"

	"github.com/forgeline/forgeline/internal/pipeline"
	"github.com/forgeline/forgeline/internal/ticket"
)

// TicketSource fetches and caches the ticket a run starts from.
type TicketSource interface {
	FetchCached(url, runDir string) (*pipeline.Ticket, error)
}

// FetchStage loads the ticket named by the state's ticket URL and
// caches it in the run directory.
type FetchStage struct {
	source TicketSource
	runDir string
}

// NewFetchStage builds the fetch executor.
func NewFetchStage(source TicketSource, runDir string) *FetchStage {
	return &FetchStage{source: source, runDir: runDir}
}

func (s *FetchStage) Execute(_ context.Context, st pipeline.State) (pipeline.State, error) {
	t, err := s.source.FetchCached(st.Ticket.URL, s.runDir)
	if err != nil {
		return st, fmt.Errorf("fetch ticket: %w", err)
	}
	return st.WithTicket(*t), nil
}

// compile-time check that the concrete fetcher satisfies the boundary.
var _ TicketSource = (*ticket.Fetcher)(nil)
