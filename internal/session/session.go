// Package session owns per-session pipeline state: the concurrency-safe
// registry keyed by session ID and the turn state machine that serializes
// turns within a session.
package session

import (
	"sync"
	"time"
)

// Session is the per-connection pipeline context threaded through every
// relay and orchestrator call. Sessions are isolated from each other; the
// registry is the only shared structure.
type Session struct {
	ID        string
	CreatedAt time.Time

	Turn *TurnMachine

	mu               sync.RWMutex
	persona          string
	webSearchEnabled bool
	lastActive       time.Time
}

func newSession(id, persona string, webSearch bool) *Session {
	now := time.Now()
	return &Session{
		ID:               id,
		CreatedAt:        now,
		Turn:             NewTurnMachine(),
		persona:          persona,
		webSearchEnabled: webSearch,
		lastActive:       now,
	}
}

// Persona returns the persona the session generates responses with.
func (s *Session) Persona() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persona
}

// SetPersona switches the session's persona.
func (s *Session) SetPersona(persona string) {
	s.mu.Lock()
	s.persona = persona
	s.mu.Unlock()
}

// WebSearchEnabled reports whether search augmentation is on.
func (s *Session) WebSearchEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.webSearchEnabled
}

// SetWebSearchEnabled flips search augmentation mid-session.
func (s *Session) SetWebSearchEnabled(enabled bool) {
	s.mu.Lock()
	s.webSearchEnabled = enabled
	s.mu.Unlock()
}

// Touch records activity for idle eviction.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive returns the time of the most recent activity.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// Registry maps session IDs to sessions. Safe for concurrent use by
// multiple connection handlers.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// GetOrCreate resumes the session with the given ID or creates it with the
// supplied defaults. The second return reports whether it already existed.
func (r *Registry) GetOrCreate(id, persona string, webSearch bool) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.Touch()
		return s, true
	}
	s := newSession(id, persona, webSearch)
	r.sessions[id] = s
	return s, false
}

// Get looks up a session without creating it.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete removes a session explicitly.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// EvictIdle removes sessions inactive for longer than maxIdle, skipping any
// with a turn in flight. Returns the number evicted.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	cutoff := time.Now().Add(-maxIdle)
	for id, s := range r.sessions {
		if s.Turn.State() != StateIdle {
			continue
		}
		if s.LastActive().Before(cutoff) {
			delete(r.sessions, id)
			evicted++
		}
	}
	return evicted
}
