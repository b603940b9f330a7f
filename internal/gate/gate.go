// Package gate implements the human-in-the-loop review point. It is
// the only place in the engine allowed to block on external input.
package gate

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/forgeline/forgeline/internal/pipeline"
	"github.com/forgeline/forgeline/internal/telemetry"
)

// FeedbackKey is where the gate records its decision in state feedback.
const FeedbackKey = "human_gate"

// AutoApproved is the synthetic feedback stamped in automated runs.
const AutoApproved = "auto-approved"

// defaultThreshold is the score below which a human is consulted.
const defaultThreshold = 80.0

// Prompter collects one line of human input. Implementations must
// return an error rather than block forever when no human is present.
type Prompter interface {
	Prompt(text string) (string, error)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(text string) (string, error)

func (f PrompterFunc) Prompt(text string) (string, error) {
	return f(text)
}

// Gate pauses low-scoring runs for human confirmation. The feedback
// text is opaque audit data: any input, including none, lets the run
// proceed.
type Gate struct {
	automation bool
	threshold  float64
	prompter   Prompter
	emitter    telemetry.Emitter
}

// New builds a gate. With automation set, the gate never blocks and
// stamps a synthetic approval instead.
func New(automation bool, prompter Prompter, emitter telemetry.Emitter) *Gate {
	if emitter == nil {
		emitter = telemetry.NopEmitter{}
	}
	return &Gate{
		automation: automation,
		threshold:  defaultThreshold,
		prompter:   prompter,
		emitter:    emitter,
	}
}

// SetThreshold overrides the review score threshold.
func (g *Gate) SetThreshold(score float64) {
	g.threshold = score
}

// Review gates the state. Automated runs pass straight through with a
// synthetic approval. Otherwise a score below the threshold blocks for
// human feedback, defaulting to "proceed" on empty or failed input;
// a passing score flows through untouched.
func (g *Gate) Review(st pipeline.State) (pipeline.State, error) {
	if g.automation {
		g.emitDecision(st, "automation", AutoApproved)
		return st.WithFeedback(map[string]string{FeedbackKey: AutoApproved}), nil
	}

	if st.Score() >= g.threshold {
		return st, nil
	}

	feedback, source := g.collect(st)
	g.emitDecision(st, source, feedback)
	return st.WithFeedback(map[string]string{FeedbackKey: feedback}), nil
}

// collect asks the prompter for feedback, degrading to the default
// "proceed" when input is empty or the channel fails.
func (g *Gate) collect(st pipeline.State) (feedback, source string) {
	if g.prompter == nil {
		return "proceed", "default"
	}
	text := fmt.Sprintf(
		"validation score %.0f is below %.0f; press enter to proceed or type feedback: ",
		st.Score(), g.threshold,
	)
	input, err := g.prompter.Prompt(text)
	input = strings.TrimSpace(input)
	if err != nil || input == "" {
		return "proceed", "default"
	}
	return input, "human"
}

func (g *Gate) emitDecision(st pipeline.State, source, feedback string) {
	telemetry.Emit(g.emitter, telemetry.EventGateDecision, telemetry.Fields{
		"score":    st.Score(),
		"approved": true,
		"source":   source,
		"feedback": feedback,
	})
}

// ReaderPrompter reads one line per prompt, writing the prompt text to
// out first. It backs the interactive CLI gate on stdin/stdout.
type ReaderPrompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewReaderPrompter wraps an input and output stream.
func NewReaderPrompter(in io.Reader, out io.Writer) *ReaderPrompter {
	return &ReaderPrompter{scanner: bufio.NewScanner(in), out: out}
}

func (p *ReaderPrompter) Prompt(text string) (string, error) {
	if p.out != nil {
		fmt.Fprint(p.out, text)
	}
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scanner.Text(), nil
}
