package history

import (
	"fmt"
	"sync"
	"testing"
)

func TestMemoryStore_AppendAndHistory(t *testing.T) {
	s := NewMemoryStore()

	s.Append("s1", RoleUser, "what time is it")
	s.Append("s1", RoleAssistant, "half past three")
	s.Append("s1", RoleUser, "thanks")

	msgs, err := s.History("s1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(msgs))
	}

	wantRoles := []Role{RoleUser, RoleAssistant, RoleUser}
	wantContent := []string{"what time is it", "half past three", "thanks"}
	for i := range msgs {
		if msgs[i].Role != wantRoles[i] {
			t.Errorf("message %d role = %s, want %s", i, msgs[i].Role, wantRoles[i])
		}
		if msgs[i].Content != wantContent[i] {
			t.Errorf("message %d content = %q, want %q", i, msgs[i].Content, wantContent[i])
		}
		if msgs[i].Timestamp.IsZero() {
			t.Errorf("message %d has zero timestamp", i)
		}
	}
}

func TestMemoryStore_SessionIsolation(t *testing.T) {
	s := NewMemoryStore()
	s.Append("a", RoleUser, "hello from a")
	s.Append("b", RoleUser, "hello from b")

	msgs, _ := s.History("a")
	if len(msgs) != 1 || msgs[0].Content != "hello from a" {
		t.Errorf("Session a history polluted: %+v", msgs)
	}
}

func TestMemoryStore_HistoryReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	s.Append("s1", RoleUser, "original")

	msgs, _ := s.History("s1")
	msgs[0].Content = "mutated"

	again, _ := s.History("s1")
	if again[0].Content != "original" {
		t.Error("History returned a shared slice; caller mutation leaked into the store")
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	s := NewMemoryStore()
	s.Append("s1", RoleUser, "hello")
	if err := s.Clear("s1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	msgs, _ := s.History("s1")
	if len(msgs) != 0 {
		t.Errorf("Expected empty history after Clear, got %d messages", len(msgs))
	}

	// Clearing an unknown session is a no-op.
	if err := s.Clear("nope"); err != nil {
		t.Errorf("Clear on unknown session failed: %v", err)
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", n%2)
			for j := 0; j < 50; j++ {
				s.Append(id, RoleUser, "msg")
				s.History(id)
			}
		}(i)
	}
	wg.Wait()

	msgs, _ := s.History("s0")
	if len(msgs) != 200 {
		t.Errorf("Expected 200 messages, got %d", len(msgs))
	}
}
