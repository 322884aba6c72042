package diagent

import (
	"time"

	"github.com/tmc/langchaingo/llms"
)

// Role identifies who authored a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a structured request, emitted by the model, to invoke a named
// tool with arguments. Arguments are a decoded JSON object; the raw argument
// string is preserved for repair attempts when decoding fails.
type ToolCall struct {
	ID      string
	Name    string
	Args    map[string]any
	RawArgs string
}

// ToolOutcome is the result of executing a single ToolCall. It is produced by
// a ToolRegistry and appended to the conversation as a tool message. Execute
// never panics or returns a Go error for unknown tools; failures are expressed
// through Success and Error so the orchestration loop has a single path.
type ToolOutcome struct {
	CallID   string
	Name     string
	Success  bool
	Content  string
	Error    string
	Duration time.Duration
}

// Message is one entry in a session's conversation. Messages are append-only
// and immutable once appended.
//
// Content may be empty on assistant messages that carry only tool calls.
// ToolCalls is set only on assistant messages; Outcome only on tool messages.
type Message struct {
	Role      Role
	Content   string
	ToolCalls []ToolCall
	Outcome   *ToolOutcome
	CreatedAt time.Time
}

// NewUserMessage creates a user message with the given content.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, CreatedAt: time.Now()}
}

// NewSystemMessage creates a system message with the given content.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content, CreatedAt: time.Now()}
}

// NewAssistantMessage creates an assistant message carrying content and any
// tool calls the model issued in the same turn.
func NewAssistantMessage(content string, calls []ToolCall) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   content,
		ToolCalls: calls,
		CreatedAt: time.Now(),
	}
}

// NewToolMessage creates a tool message recording the outcome of one call.
func NewToolMessage(outcome ToolOutcome) Message {
	return Message{
		Role:      RoleTool,
		Content:   outcome.Content,
		Outcome:   &outcome,
		CreatedAt: time.Now(),
	}
}

// AsLLMContent converts a conversation to langchaingo message content, which
// is the wire shape all backends consume. Tool calls and tool responses are
// mapped to their llms part types so providers that support native tool use
// see properly linked call/response pairs.
func AsLLMContent(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, msg.Content))
		case RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		case RoleAssistant:
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if msg.Content != "" {
				mc.Parts = append(mc.Parts, llms.TextContent{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:   call.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      call.Name,
						Arguments: call.RawArgs,
					},
				})
			}
			out = append(out, mc)
		case RoleTool:
			if msg.Outcome == nil {
				continue
			}
			content := msg.Outcome.Content
			if !msg.Outcome.Success && msg.Outcome.Error != "" {
				content = "error: " + msg.Outcome.Error
			}
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: msg.Outcome.CallID,
						Name:       msg.Outcome.Name,
						Content:    content,
					},
				},
			})
		}
	}
	return out
}
