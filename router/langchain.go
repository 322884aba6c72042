package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/arkadyv/diagent"
)

// LangChainBackend adapts a langchaingo llms.Model to the diagent.Backend
// contract. It converts messages and tool definitions to the llms wire
// types, maps tool_choice, and normalizes the response: content, tool calls,
// reasoning text, and token usage across providers.
//
// Example:
//
//	llm, _ := openai.New(openai.WithToken(apiKey))
//	backend := router.NewLangChainBackend(llm, "primary", diagent.ProviderOpenAI, "gpt-4o")
type LangChainBackend struct {
	model       llms.Model
	name        string
	provider    diagent.Provider
	modelName   string
	forcedTools bool
}

// NewLangChainBackend creates a backend over the given llms.Model. OpenAI
// family backends advertise native forced tool use; others rely on the
// Router's emulation.
func NewLangChainBackend(
	model llms.Model,
	name string,
	provider diagent.Provider,
	modelName string,
) *LangChainBackend {
	return &LangChainBackend{
		model:       model,
		name:        name,
		provider:    provider,
		modelName:   modelName,
		forcedTools: provider == diagent.ProviderOpenAI,
	}
}

// WithForcedToolUse overrides the forced-tool-use capability flag.
// Returns the backend for chaining.
func (b *LangChainBackend) WithForcedToolUse(supported bool) *LangChainBackend {
	b.forcedTools = supported
	return b
}

// Name implements diagent.Backend.
func (b *LangChainBackend) Name() string { return b.name }

// Provider implements diagent.Backend.
func (b *LangChainBackend) Provider() diagent.Provider { return b.provider }

// Model implements diagent.Backend.
func (b *LangChainBackend) Model() string { return b.modelName }

// SupportsForcedToolUse implements ForcedToolUser.
func (b *LangChainBackend) SupportsForcedToolUse() bool { return b.forcedTools }

// Chat implements diagent.Backend.
func (b *LangChainBackend) Chat(
	ctx context.Context,
	req diagent.ChatRequest,
) (*diagent.LLMResponse, error) {
	options := []llms.CallOption{
		llms.WithModel(b.modelName),
		llms.WithTemperature(req.Temperature),
	}
	if len(req.Tools) > 0 {
		options = append(options, llms.WithTools(asLLMTools(req.Tools)))
		if choice := asLLMToolChoice(req.ToolChoice, b.forcedTools); choice != "" {
			options = append(options, llms.WithToolChoice(choice))
		}
	}

	start := time.Now()
	resp, err := b.model.GenerateContent(ctx, diagent.AsLLMContent(req.Messages), options...)
	if err != nil {
		return nil, err
	}
	return normalizeResponse(resp, time.Since(start)), nil
}

// asLLMTools converts tool definitions to llms function tools.
func asLLMTools(defs []diagent.ToolDefinition) []llms.Tool {
	tools := make([]llms.Tool, len(defs))
	for i, def := range defs {
		tools[i] = llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.ParameterSchema(),
			},
		}
	}
	return tools
}

// asLLMToolChoice maps the normalized tool choice to the provider string.
// Backends without native forced tool use are sent "auto" in required mode;
// the Router handles re-requesting.
func asLLMToolChoice(choice diagent.ToolChoice, forcedTools bool) string {
	switch choice {
	case diagent.ToolChoiceRequired:
		if forcedTools {
			return "required"
		}
		return "auto"
	case diagent.ToolChoiceNone:
		return "none"
	case diagent.ToolChoiceAuto:
		return "auto"
	}
	return ""
}

// normalizeResponse converts an llms.ContentResponse into the normalized
// shape, decoding tool call arguments and extracting token usage.
func normalizeResponse(resp *llms.ContentResponse, duration time.Duration) *diagent.LLMResponse {
	out := &diagent.LLMResponse{Duration: duration}
	if resp == nil || len(resp.Choices) == 0 {
		return out
	}

	choice := resp.Choices[0]
	out.Content = choice.Content
	out.Reasoning = choice.ReasoningContent

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		call := diagent.ToolCall{
			ID:      tc.ID,
			Name:    tc.FunctionCall.Name,
			RawArgs: tc.FunctionCall.Arguments,
		}
		// A decode failure leaves Args nil; the validator attempts
		// mechanical repair before the call is rejected.
		var args map[string]any
		if json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args) == nil {
			call.Args = args
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}
	// Some providers report a single function call instead of tool calls.
	if len(out.ToolCalls) == 0 && choice.FuncCall != nil {
		call := diagent.ToolCall{
			ID:      "call_0",
			Name:    choice.FuncCall.Name,
			RawArgs: choice.FuncCall.Arguments,
		}
		var args map[string]any
		if json.Unmarshal([]byte(choice.FuncCall.Arguments), &args) == nil {
			call.Args = args
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}

	if info := choice.GenerationInfo; info != nil {
		out.Usage = extractUsage(info)
		out.ContinuationID = extractContinuationID(info)
	}
	return out
}

// extractUsage normalizes token counts across providers. Key names differ:
// OpenAI and Ollama report PromptTokens/CompletionTokens, Anthropic reports
// InputTokens/OutputTokens, Google and Bedrock use snake_case.
func extractUsage(info map[string]any) diagent.TokenUsage {
	usage := diagent.TokenUsage{
		InputTokens:  firstInt(info, "PromptTokens", "InputTokens", "input_tokens"),
		OutputTokens: firstInt(info, "CompletionTokens", "OutputTokens", "output_tokens"),
	}
	usage.TotalTokens = firstInt(info, "TotalTokens", "total_tokens")
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}
	return usage
}

// extractContinuationID pulls a provider response id when one is present.
func extractContinuationID(info map[string]any) string {
	for _, key := range []string{"ResponseID", "response_id", "id"} {
		if v, ok := info[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// firstInt returns the first key present in the map, handling the numeric
// types different providers use.
func firstInt(m map[string]any, keys ...string) int {
	for _, key := range keys {
		v, ok := m[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case int:
			return n
		case int32:
			return int(n)
		case int64:
			return int(n)
		case float64:
			return int(n)
		case float32:
			return int(n)
		}
	}
	return 0
}

// Compile-time checks.
var (
	_ diagent.Backend = (*LangChainBackend)(nil)
	_ ForcedToolUser  = (*LangChainBackend)(nil)
)
