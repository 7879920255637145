package session

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRegistry_GetOrCreate(t *testing.T) {
	r := NewRegistry()

	sess, existed := r.GetOrCreate("s1", "default", false)
	if existed {
		t.Error("First GetOrCreate reported existing session")
	}
	if sess.ID != "s1" {
		t.Errorf("Session ID = %q, want s1", sess.ID)
	}

	again, existed := r.GetOrCreate("s1", "pirate", true)
	if !existed {
		t.Error("Second GetOrCreate did not resume")
	}
	if again != sess {
		t.Error("Resume returned a different session")
	}
	// Resume must not overwrite the session's settings.
	if again.Persona() != "default" {
		t.Errorf("Resume overwrote persona: %q", again.Persona())
	}
}

func TestRegistry_Isolation(t *testing.T) {
	r := NewRegistry()
	a, _ := r.GetOrCreate("a", "default", false)
	b, _ := r.GetOrCreate("b", "default", false)

	a.SetWebSearchEnabled(true)
	a.SetPersona("pirate")

	if b.WebSearchEnabled() {
		t.Error("Web search toggle leaked between sessions")
	}
	if b.Persona() != "default" {
		t.Error("Persona change leaked between sessions")
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := fmt.Sprintf("s%d", j%7)
				sess, _ := r.GetOrCreate(id, "default", false)
				sess.Touch()
				r.Get(id)
			}
		}(i)
	}
	wg.Wait()

	if r.Len() != 7 {
		t.Errorf("Len = %d, want 7", r.Len())
	}
}

func TestRegistry_EvictIdle(t *testing.T) {
	r := NewRegistry()
	stale, _ := r.GetOrCreate("stale", "default", false)
	busy, _ := r.GetOrCreate("busy", "default", false)
	fresh, _ := r.GetOrCreate("fresh", "default", false)

	// Age two of the sessions past the cutoff.
	old := time.Now().Add(-time.Hour)
	stale.mu.Lock()
	stale.lastActive = old
	stale.mu.Unlock()
	busy.mu.Lock()
	busy.lastActive = old
	busy.mu.Unlock()

	// A turn in flight protects the session regardless of age.
	if _, err := busy.Turn.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	evicted := r.EvictIdle(30 * time.Minute)
	if evicted != 1 {
		t.Errorf("EvictIdle = %d, want 1", evicted)
	}
	if _, ok := r.Get("stale"); ok {
		t.Error("Stale session survived eviction")
	}
	if _, ok := r.Get("busy"); !ok {
		t.Error("Session with turn in flight was evicted")
	}
	if _, ok := r.Get("fresh"); !ok {
		t.Error("Fresh session was evicted")
	}
	_ = fresh
}

func TestRegistry_Delete(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("s1", "default", false)
	r.Delete("s1")
	if _, ok := r.Get("s1"); ok {
		t.Error("Deleted session still present")
	}
}
