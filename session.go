package diagent

import (
	"strings"
	"time"
)

// Session is one conversation: an ordered, append-only list of messages plus
// the backend that has been serving it. Sessions are owned by the
// orchestrator; callers only ever see snapshots.
type Session struct {
	ID          string
	Messages    []Message
	CreatedAt   time.Time
	Provider    Provider
	Model       string
	HadFallback bool
}

// Append adds a message to the session. The orchestrator guarantees
// per-session mutual exclusion; Session itself does no locking.
func (s *Session) Append(msg Message) {
	s.Messages = append(s.Messages, msg)
}

// MessageCount returns the number of non-system messages.
func (s *Session) MessageCount() int {
	n := 0
	for _, msg := range s.Messages {
		if msg.Role != RoleSystem {
			n++
		}
	}
	return n
}

// LastMessagePreview returns a truncated preview of the most recent
// non-system message, for session listings.
func (s *Session) LastMessagePreview(maxLen int) string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		msg := s.Messages[i]
		if msg.Role == RoleSystem {
			continue
		}
		preview := strings.TrimSpace(msg.Content)
		if preview == "" && len(msg.ToolCalls) > 0 {
			preview = "[tool call: " + msg.ToolCalls[0].Name + "]"
		}
		if maxLen > 0 && len(preview) > maxLen {
			preview = preview[:maxLen] + "..."
		}
		return preview
	}
	return ""
}

// SessionInfo is the introspection summary exposed by the orchestrator.
type SessionInfo struct {
	ID                 string `json:"id"`
	MessageCount       int    `json:"message_count"`
	LastMessagePreview string `json:"last_message_preview"`
}
