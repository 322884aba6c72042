package diagent

import (
	"context"
	"time"
)

// Provider tags a backend family. The tag drives system prompt selection and
// how reasoning context is rendered: structured tags for providers that parse
// them well, Markdown for providers that prefer prose structure, and a terse
// single line for resource-constrained local models.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderLocal     Provider = "local"
)

// ToolChoice controls whether the backend must emit tool calls.
type ToolChoice string

const (
	// ToolChoiceRequired forces at least one tool call. Backends without a
	// native forced-tool-use concept emulate this by re-requesting once when
	// a response arrives with zero tool calls.
	ToolChoiceRequired ToolChoice = "required"

	// ToolChoiceAuto lets the model decide.
	ToolChoiceAuto ToolChoice = "auto"

	// ToolChoiceNone forbids tool calls; used to force a closing answer.
	ToolChoiceNone ToolChoice = "none"
)

// ChatRequest is a single normalized request to an LLM backend.
type ChatRequest struct {
	Messages    []Message
	Tools       []ToolDefinition
	ToolChoice  ToolChoice
	Temperature float64
}

// TokenUsage is normalized token accounting extracted from provider-specific
// generation info. Zero values mean the provider did not report usage.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// LLMResponse is the normalized response from a backend call.
type LLMResponse struct {
	// Content is the textual content; empty for tool-call-only responses.
	Content string

	// ToolCalls the model asked to invoke, possibly empty.
	ToolCalls []ToolCall

	// Reasoning is raw provider thinking text, when the backend exposes it.
	Reasoning string

	// ContinuationID is a provider-specific response/continuation id, when
	// the backend exposes one.
	ContinuationID string

	Usage    TokenUsage
	Duration time.Duration
}

// Backend is the uniform contract every provider sits behind. A Backend is
// purely request/response: it performs network I/O but never mutates session
// state.
type Backend interface {
	// Name returns a short identifier used in logs and metrics.
	Name() string

	// Provider returns the provider family tag.
	Provider() Provider

	// Model returns the configured model name.
	Model() string

	// Chat sends a normalized chat request and returns the normalized
	// response. Implementations must honor ctx cancellation and deadlines.
	Chat(ctx context.Context, req ChatRequest) (*LLMResponse, error)
}
