package router

import (
	"context"
	"sync"

	"github.com/arkadyv/diagent"
)

// ScriptedStep is one scripted backend response. Err takes precedence over
// Response when set.
type ScriptedStep struct {
	Response *diagent.LLMResponse
	Err      error
}

// ScriptedBackend replays a fixed sequence of responses. It backs tests and
// the CLI's offline mode. When the script runs out, the last step repeats.
// Safe for concurrent use.
type ScriptedBackend struct {
	mu       sync.Mutex
	name     string
	provider diagent.Provider
	model    string
	steps    []ScriptedStep
	calls    []diagent.ChatRequest
	forced   bool
}

// NewScriptedBackend creates a scripted backend with the given steps.
func NewScriptedBackend(provider diagent.Provider, steps ...ScriptedStep) *ScriptedBackend {
	return &ScriptedBackend{
		name:     "scripted",
		provider: provider,
		model:    "scripted-model",
		steps:    steps,
	}
}

// WithName overrides the backend name. Returns the backend for chaining.
func (b *ScriptedBackend) WithName(name string) *ScriptedBackend {
	b.name = name
	return b
}

// WithForcedToolUse marks the backend as natively supporting forced tool
// use. Returns the backend for chaining.
func (b *ScriptedBackend) WithForcedToolUse(supported bool) *ScriptedBackend {
	b.forced = supported
	return b
}

// Name implements diagent.Backend.
func (b *ScriptedBackend) Name() string { return b.name }

// Provider implements diagent.Backend.
func (b *ScriptedBackend) Provider() diagent.Provider { return b.provider }

// Model implements diagent.Backend.
func (b *ScriptedBackend) Model() string { return b.model }

// SupportsForcedToolUse implements ForcedToolUser.
func (b *ScriptedBackend) SupportsForcedToolUse() bool { return b.forced }

// Chat implements diagent.Backend by replaying the next scripted step.
func (b *ScriptedBackend) Chat(
	ctx context.Context,
	req diagent.ChatRequest,
) (*diagent.LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, req)
	if len(b.steps) == 0 {
		return &diagent.LLMResponse{Content: "scripted backend has no steps"}, nil
	}

	idx := len(b.calls) - 1
	if idx >= len(b.steps) {
		idx = len(b.steps) - 1
	}
	step := b.steps[idx]
	if step.Err != nil {
		return nil, step.Err
	}

	// Copy so callers cannot mutate the script.
	resp := *step.Response
	return &resp, nil
}

// Calls returns a copy of every request the backend has received.
func (b *ScriptedBackend) Calls() []diagent.ChatRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]diagent.ChatRequest, len(b.calls))
	copy(out, b.calls)
	return out
}

// Compile-time checks.
var (
	_ diagent.Backend = (*ScriptedBackend)(nil)
	_ ForcedToolUser  = (*ScriptedBackend)(nil)
)
