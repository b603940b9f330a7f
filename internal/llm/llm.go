// Package llm is the boundary to the model backend. The engine only
// ever sees Invoke(ctx, prompt) -> text; which vendor sits behind it
// is a construction-time decision.
package llm

import "context"

// Invoker performs one model call. Implementations are fallible and
// possibly slow; callers wrap them in breakers and retries.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, prompt string) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
