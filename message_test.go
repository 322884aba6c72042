package diagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestAsLLMContent(t *testing.T) {
	messages := []Message{
		NewSystemMessage("You are a diagnostic assistant."),
		NewUserMessage("my wifi is down"),
		NewAssistantMessage("", []ToolCall{{
			ID:      "call_1",
			Name:    "check_adapter_status",
			RawArgs: `{"adapter": "Wi-Fi"}`,
		}}),
		NewToolMessage(ToolOutcome{
			CallID:  "call_1",
			Name:    "check_adapter_status",
			Success: true,
			Content: `{"up": true}`,
		}),
		NewAssistantMessage("Your adapter is up.", nil),
	}

	out := AsLLMContent(messages)
	require.Len(t, out, 5)

	assert.Equal(t, llms.ChatMessageTypeSystem, out[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, out[1].Role)

	assert.Equal(t, llms.ChatMessageTypeAI, out[2].Role)
	require.Len(t, out[2].Parts, 1)
	call, ok := out[2].Parts[0].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, "check_adapter_status", call.FunctionCall.Name)

	assert.Equal(t, llms.ChatMessageTypeTool, out[3].Role)
	require.Len(t, out[3].Parts, 1)
	toolResp, ok := out[3].Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "call_1", toolResp.ToolCallID)
	assert.Equal(t, `{"up": true}`, toolResp.Content)

	assert.Equal(t, llms.ChatMessageTypeAI, out[4].Role)
	require.Len(t, out[4].Parts, 1)
	text, ok := out[4].Parts[0].(llms.TextContent)
	require.True(t, ok)
	assert.Equal(t, "Your adapter is up.", text.Text)
}

func TestAsLLMContent_FailedToolOutcome(t *testing.T) {
	out := AsLLMContent([]Message{
		NewToolMessage(ToolOutcome{
			CallID: "call_1",
			Name:   "ping_gateway",
			Error:  "gateway unreachable",
		}),
	})

	require.Len(t, out, 1)
	toolResp := out[0].Parts[0].(llms.ToolCallResponse)
	assert.Equal(t, "error: gateway unreachable", toolResp.Content)
}

func TestAsLLMContent_AssistantWithContentAndCalls(t *testing.T) {
	out := AsLLMContent([]Message{
		NewAssistantMessage("Checking the adapter first.", []ToolCall{{
			ID:      "call_1",
			Name:    "check_adapter_status",
			RawArgs: "{}",
		}}),
	})

	require.Len(t, out, 1)
	require.Len(t, out[0].Parts, 2)
	_, isText := out[0].Parts[0].(llms.TextContent)
	_, isCall := out[0].Parts[1].(llms.ToolCall)
	assert.True(t, isText)
	assert.True(t, isCall)
}
