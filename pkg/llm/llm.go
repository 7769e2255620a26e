// Package llm wraps the structured-generation capability the agents depend
// on. It is the pipeline's only non-deterministic dependency: every call may
// fail, time out, or return malformed output, and callers must treat all
// three the same way.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrMalformedOutput is returned when the model reply is not valid JSON.
// Schema-level validation happens in the agents; this error only covers
// transport-level garbage.
var ErrMalformedOutput = errors.New("llm: model returned malformed output")

// Prompt is a single structured-generation request. SchemaHint describes the
// expected JSON shape inside the prompt itself; models that support a JSON
// response format are additionally pinned to it.
type Prompt struct {
	System     string
	User       string
	SchemaHint string
}

// Generator produces a JSON value for a prompt. Implementations must honour
// context cancellation; the orchestrator relies on it for per-requirement
// timeouts.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (json.RawMessage, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt Prompt) (json.RawMessage, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, prompt Prompt) (json.RawMessage, error) {
	return f(ctx, prompt)
}
