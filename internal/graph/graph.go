// Package graph runs a pipeline as a state machine of named stages.
// Stages are connected by unconditional edges or by routing functions
// that inspect the state a stage produced.
package graph

import (
	"context"
	"fmt"

	"github.com/forgeline/forgeline/internal/pipeline"
)

// End is the terminal marker. Routing to End stops the run.
const End = "__end__"

// Executor runs one stage, producing the next pipeline state.
// Executors must tolerate re-invocation: retries and recovery may call
// the same executor again with an equivalent state.
type Executor interface {
	Execute(ctx context.Context, st pipeline.State) (pipeline.State, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, st pipeline.State) (pipeline.State, error)

func (f ExecutorFunc) Execute(ctx context.Context, st pipeline.State) (pipeline.State, error) {
	return f(ctx, st)
}

// Router picks the next stage name from the state a stage produced.
type Router func(st pipeline.State) string

// Graph holds the stages and edges of a pipeline. Build it with the
// Add methods, then hand it to a Runner. A Graph is not safe for
// concurrent mutation; build it fully before running.
type Graph struct {
	nodes       map[string]Executor
	edges       map[string]string
	conditional map[string]Router
	entry       string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes:       make(map[string]Executor),
		edges:       make(map[string]string),
		conditional: make(map[string]Router),
	}
}

// AddNode registers a stage executor under a name.
func (g *Graph) AddNode(name string, ex Executor) error {
	if name == "" {
		return fmt.Errorf("stage name must not be empty")
	}
	if name == End {
		return fmt.Errorf("stage name %q is reserved", End)
	}
	if _, exists := g.nodes[name]; exists {
		return fmt.Errorf("stage %q already registered", name)
	}
	if ex == nil {
		return fmt.Errorf("stage %q has nil executor", name)
	}
	g.nodes[name] = ex
	return nil
}

// AddEdge wires an unconditional transition from one stage to the next.
// The target may be End.
func (g *Graph) AddEdge(from, to string) error {
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("edge from unknown stage %q", from)
	}
	if _, ok := g.conditional[from]; ok {
		return fmt.Errorf("stage %q already has a conditional edge", from)
	}
	if prev, ok := g.edges[from]; ok {
		return fmt.Errorf("stage %q already routes to %q", from, prev)
	}
	g.edges[from] = to
	return nil
}

// AddConditionalEdge wires a routing function evaluated against the
// state the stage produced.
func (g *Graph) AddConditionalEdge(from string, r Router) error {
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("conditional edge from unknown stage %q", from)
	}
	if r == nil {
		return fmt.Errorf("stage %q has nil router", from)
	}
	if _, ok := g.edges[from]; ok {
		return fmt.Errorf("stage %q already has an unconditional edge", from)
	}
	if _, ok := g.conditional[from]; ok {
		return fmt.Errorf("stage %q already has a conditional edge", from)
	}
	g.conditional[from] = r
	return nil
}

// SetEntryPoint names the stage execution starts from.
func (g *Graph) SetEntryPoint(name string) error {
	if _, ok := g.nodes[name]; !ok {
		return fmt.Errorf("entry point %q is not a registered stage", name)
	}
	g.entry = name
	return nil
}

// EntryPoint returns the configured starting stage.
func (g *Graph) EntryPoint() string {
	return g.entry
}

// HasNode reports whether a stage is registered.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Validate checks the graph is runnable: an entry point is set, every
// stage has exactly one outgoing edge, and unconditional edges target
// registered stages or End. Conditional routers are opaque functions,
// so their targets are checked at run time instead.
func (g *Graph) Validate() error {
	if g.entry == "" {
		return fmt.Errorf("no entry point set")
	}
	for name := range g.nodes {
		_, hasEdge := g.edges[name]
		_, hasCond := g.conditional[name]
		if !hasEdge && !hasCond {
			return fmt.Errorf("stage %q has no outgoing edge", name)
		}
	}
	for from, to := range g.edges {
		if to == End {
			continue
		}
		if _, ok := g.nodes[to]; !ok {
			return fmt.Errorf("stage %q routes to unknown stage %q", from, to)
		}
	}
	return nil
}
