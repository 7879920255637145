package persona

import "testing"

func TestMemoryStore_Defaults(t *testing.T) {
	s := NewMemoryStore("pirate", true)

	settings := s.Get("never-seen")
	if settings.Persona != "pirate" {
		t.Errorf("Default persona = %q, want pirate", settings.Persona)
	}
	if !settings.WebSearchEnabled {
		t.Error("Default web search = false, want true")
	}
}

func TestMemoryStore_UnknownDefaultFallsBack(t *testing.T) {
	s := NewMemoryStore("nonsense", false)
	if got := s.Get("x").Persona; got != "default" {
		t.Errorf("Persona = %q, want default", got)
	}
}

func TestMemoryStore_Set(t *testing.T) {
	s := NewMemoryStore("default", false)

	if err := s.Set("s1", "developer"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := s.Get("s1").Persona; got != "developer" {
		t.Errorf("Persona = %q, want developer", got)
	}

	// Other sessions keep the default.
	if got := s.Get("s2").Persona; got != "default" {
		t.Errorf("Unrelated session persona = %q, want default", got)
	}
}

func TestMemoryStore_SetUnknownRejected(t *testing.T) {
	s := NewMemoryStore("default", false)
	if err := s.Set("s1", "astronaut"); err == nil {
		t.Error("Expected error for unknown persona")
	}
	if got := s.Get("s1").Persona; got != "default" {
		t.Errorf("Failed Set changed persona to %q", got)
	}
}

func TestPrompt(t *testing.T) {
	s := NewMemoryStore("default", false)

	for name := range prompts {
		if s.Prompt(name) == "" {
			t.Errorf("Persona %q has empty prompt", name)
		}
	}

	// Unknown persona degrades to the default prompt rather than empty.
	if s.Prompt("bogus") != prompts["default"] {
		t.Error("Unknown persona did not fall back to default prompt")
	}
}
