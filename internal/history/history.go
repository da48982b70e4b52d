// Package history keeps the server-side conversation memory of each chat session.
package history

import (
	"sync"

	"portal-chat/internal/llm"
)

// DefaultWindow bounds how many messages of a session are replayed to the model.
const DefaultWindow = 40

type Manager struct {
	mu       sync.RWMutex
	window   int
	sessions map[string][]llm.Message
}

func NewManager(window int) *Manager {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Manager{window: window, sessions: make(map[string][]llm.Message)}
}

func (m *Manager) Reset(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// AppendTurn records a completed user/assistant exchange.
func (m *Manager) AppendTurn(sessionID, user, assistant string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := append(m.sessions[sessionID],
		llm.Message{Role: llm.RoleUser, Content: user},
		llm.Message{Role: llm.RoleAssistant, Content: assistant},
	)
	if over := len(msgs) - m.window; over > 0 {
		msgs = append([]llm.Message(nil), msgs[over:]...)
	}
	m.sessions[sessionID] = msgs
}

// Get returns a copy of the session's messages, oldest first.
func (m *Manager) Get(sessionID string) []llm.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	es := m.sessions[sessionID]
	out := make([]llm.Message, len(es))
	copy(out, es)
	return out
}

// Len is the number of sessions with memory.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
