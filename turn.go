package diagent

import "time"

// TurnRequest is a single user turn submitted to the orchestrator.
type TurnRequest struct {
	// SessionID resumes an existing session. Empty means start a new
	// session with a fresh id.
	SessionID string `json:"session_id,omitempty"`

	// Message is the raw user text. It passes through guardrails before
	// anything else sees it.
	Message string `json:"message"`

	// MaxToolRounds caps the tool-calling loop for this turn. Zero means
	// use the orchestrator's configured default.
	MaxToolRounds int `json:"max_tool_rounds,omitempty"`
}

// ToolCallRecord is one executed tool call surfaced to the caller.
type ToolCallRecord struct {
	Name       string         `json:"name"`
	Arguments  map[string]any `json:"arguments"`
	Result     string         `json:"result"`
	Success    bool           `json:"success"`
	DurationMS int64          `json:"duration_ms"`
}

// ToolUse is a compact {tool, success, duration} tuple kept in Diagnostics.
type ToolUse struct {
	Name       string `json:"name"`
	Success    bool   `json:"success"`
	DurationMS int64  `json:"duration_ms"`
}

// Diagnostics is the per-turn audit block returned alongside the answer.
// It is not persisted by the core.
type Diagnostics struct {
	// ConfidenceScore is a bounded scalar heuristic reflecting how much
	// diagnostic evidence has been successfully gathered. Successful tool
	// calls nudge it up by 0.1 (capped at 1.0); failures and validation
	// errors pull it down by 0.2 (floored at 0.0).
	ConfidenceScore float64 `json:"confidence_score"`

	// Thoughts is the ordered free-text audit trail of the turn.
	Thoughts []string `json:"thoughts"`

	// ToolsUsed lists every tool executed this turn, in order.
	ToolsUsed []ToolUse `json:"tools_used"`

	// Usage is total normalized token usage across the turn's model calls.
	Usage TokenUsage `json:"usage"`
}

// TurnResponse is the orchestrator's answer to one TurnRequest.
type TurnResponse struct {
	Content     string           `json:"content"`
	ToolCalls   []ToolCallRecord `json:"tool_calls,omitempty"`
	SessionID   string           `json:"session_id"`
	Diagnostics Diagnostics      `json:"diagnostics"`
}

// StreamEventType enumerates the ordered events of the streaming variant.
type StreamEventType string

const (
	StreamContent    StreamEventType = "content"
	StreamToolCall   StreamEventType = "tool_call"
	StreamToolResult StreamEventType = "tool_result"
	StreamDone       StreamEventType = "done"
	StreamError      StreamEventType = "error"
)

// StreamEvent is one event of a streaming turn. Semantics are identical to
// the blocking form, surfaced incrementally: tool_call and tool_result events
// arrive as the loop runs, a content event carries the final text, and
// exactly one done or error event closes the stream.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	SessionID string          `json:"session_id"`
	Content   string          `json:"content,omitempty"`
	ToolCall  *ToolCallRecord `json:"tool_call,omitempty"`
	Response  *TurnResponse   `json:"response,omitempty"`
	Err       error           `json:"-"`
	Timestamp time.Time       `json:"timestamp"`
}

// StreamFunc receives stream events in order. It is invoked synchronously
// from the turn's goroutine; slow callbacks slow the turn, they never
// reorder it.
type StreamFunc func(event StreamEvent)
