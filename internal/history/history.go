// Package history defines the chat-history collaborator interface and an
// in-memory implementation. The store is append-only per turn: the
// orchestrator writes the user and assistant messages exactly once when a
// turn completes.
package history

import (
	"sync"
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a session's conversation history.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the chat-history collaborator consumed by the orchestrator and
// the REST endpoints.
type Store interface {
	// Append adds a message to the session's ordered history.
	Append(sessionID string, role Role, content string) error

	// History returns the session's messages in insertion order.
	History(sessionID string) ([]Message, error)

	// Clear removes all messages for the session.
	Clear(sessionID string) error
}

// MemoryStore keeps history in process memory, keyed by session ID.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Message
}

// NewMemoryStore creates an empty in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Message)}
}

// Append adds a message to the session's history.
func (s *MemoryStore) Append(sessionID string, role Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	return nil
}

// History returns a copy of the session's messages in insertion order.
func (s *MemoryStore) History(sessionID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.sessions[sessionID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Clear removes all messages for the session.
func (s *MemoryStore) Clear(sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}
