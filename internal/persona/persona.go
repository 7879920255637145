// Package persona defines the persona/config collaborator: per-session
// persona selection and the system-prompt text each persona expands to.
package persona

import (
	"fmt"
	"sync"
)

// Settings is what the persona store returns for a session.
type Settings struct {
	Persona          string
	WebSearchEnabled bool
}

// Store is the persona/config collaborator interface.
type Store interface {
	// Get returns the session's settings, falling back to defaults for
	// unknown sessions.
	Get(sessionID string) Settings

	// Set overrides the session's persona. Unknown personas are rejected.
	Set(sessionID, persona string) error

	// Prompt returns the system-prompt preamble for a persona.
	Prompt(persona string) string
}

// prompts maps each known persona to its system-prompt preamble.
var prompts = map[string]string{
	"default":   "You are a helpful voice assistant. Keep answers concise and conversational; they will be spoken aloud.",
	"pirate":    "You are a voice assistant that talks like a friendly pirate. Keep answers short and speakable.",
	"developer": "You are a voice assistant for software developers. Be precise and terse; answers are spoken aloud.",
	"cowboy":    "You are a voice assistant with a laid-back cowboy drawl. Keep answers short and speakable.",
	"robot":     "You are a voice assistant that speaks in clipped, mechanical sentences. Keep answers short.",
}

// Known reports whether a persona name is recognized.
func Known(persona string) bool {
	_, ok := prompts[persona]
	return ok
}

// MemoryStore keeps per-session settings in process memory.
type MemoryStore struct {
	defaults Settings

	mu       sync.RWMutex
	sessions map[string]Settings
}

// NewMemoryStore creates a store with the given defaults for new sessions.
func NewMemoryStore(defaultPersona string, webSearch bool) *MemoryStore {
	if !Known(defaultPersona) {
		defaultPersona = "default"
	}
	return &MemoryStore{
		defaults: Settings{Persona: defaultPersona, WebSearchEnabled: webSearch},
		sessions: make(map[string]Settings),
	}
}

// Get returns the session's settings or the defaults.
func (s *MemoryStore) Get(sessionID string) Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if settings, ok := s.sessions[sessionID]; ok {
		return settings
	}
	return s.defaults
}

// Set overrides the session's persona.
func (s *MemoryStore) Set(sessionID, persona string) error {
	if !Known(persona) {
		return fmt.Errorf("unknown persona %q", persona)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, ok := s.sessions[sessionID]
	if !ok {
		settings = s.defaults
	}
	settings.Persona = persona
	s.sessions[sessionID] = settings
	return nil
}

// Prompt returns the system-prompt preamble for a persona, defaulting when
// the persona is unknown.
func (s *MemoryStore) Prompt(persona string) string {
	if p, ok := prompts[persona]; ok {
		return p
	}
	return prompts["default"]
}
