package orchestrator

import (
	"fmt"
	"sort"

	"github.com/arkadyv/diagent"
)

// ListSessions returns a summary of every live session, sorted by id.
func (s *Service) ListSessions() []diagent.SessionInfo {
	s.mu.RLock()
	states := make([]*sessionState, 0, len(s.sessions))
	for _, state := range s.sessions {
		states = append(states, state)
	}
	s.mu.RUnlock()

	// Each summary reads the session's message list, which a concurrent
	// turn mutates under state.mu, so the same lock is needed here.
	infos := make([]diagent.SessionInfo, 0, len(states))
	for _, state := range states {
		state.mu.Lock()
		infos = append(infos, diagent.SessionInfo{
			ID:                 state.session.ID,
			MessageCount:       state.session.MessageCount(),
			LastMessagePreview: state.session.LastMessagePreview(80),
		})
		state.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// SessionMessages returns the conversation history of a session, excluding
// system messages. The returned slice is a copy.
func (s *Service) SessionMessages(id string) ([]diagent.Message, error) {
	s.mu.RLock()
	state, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", diagent.ErrSessionNotFound, id)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	messages := make([]diagent.Message, 0, len(state.session.Messages))
	for _, msg := range state.session.Messages {
		if msg.Role == diagent.RoleSystem {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// DeleteSession removes a session and its cached reasoning. Deleting an
// unknown id is an error so callers can distinguish typos from cleanup.
func (s *Service) DeleteSession(id string) error {
	s.mu.Lock()
	state, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", diagent.ErrSessionNotFound, id)
	}

	// Wait for an in-flight turn to finish before dropping reasoning, so a
	// concurrent turn does not resurrect cache entries for a dead session.
	state.mu.Lock()
	state.mu.Unlock()
	s.deps.Reasoning.Delete(id)
	return nil
}
