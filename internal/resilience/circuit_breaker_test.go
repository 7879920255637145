package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_StateClosed(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	if cb.GetState() != StateClosed {
		t.Errorf("Expected initial state to be Closed, got %d", cb.GetState())
	}

	if !cb.allowRequest() {
		t.Error("Expected to allow request in Closed state")
	}
}

func TestCircuitBreaker_OpenAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	cb.RecordResult(false)
	cb.RecordResult(false)
	if cb.GetState() != StateClosed {
		t.Error("Expected state to still be Closed after 2 failures")
	}

	// Third failure opens the circuit.
	cb.RecordResult(false)
	if cb.GetState() != StateOpen {
		t.Error("Expected state to be Open after 3 failures")
	}

	if cb.allowRequest() {
		t.Error("Expected to not allow request in Open state")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	cb.RecordResult(false)
	cb.RecordResult(false)
	cb.RecordResult(true)
	cb.RecordResult(false)
	cb.RecordResult(false)

	if cb.GetState() != StateClosed {
		t.Error("Expected state to stay Closed when failures are not consecutive")
	}
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 100*time.Millisecond)

	cb.RecordResult(false)
	cb.RecordResult(false)
	cb.RecordResult(false)

	if cb.GetState() != StateOpen {
		t.Fatal("Expected circuit to be Open")
	}

	time.Sleep(150 * time.Millisecond)

	if !cb.allowRequest() {
		t.Error("Expected to allow request after timeout (HalfOpen)")
	}

	state, _, _, _ := cb.GetStats()
	if state != StateHalfOpen {
		t.Errorf("Expected state to be HalfOpen, got %d", state)
	}
}

func TestCircuitBreaker_HalfOpenProbeLimit(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 50*time.Millisecond)

	cb.RecordResult(false)
	time.Sleep(100 * time.Millisecond)

	// The half-open state admits a bounded number of probes before the
	// circuit decides.
	allowed := 0
	for i := 0; i < 10; i++ {
		if cb.allowRequest() {
			allowed++
		}
	}
	if allowed != cb.halfOpenMax {
		t.Errorf("Expected %d probes allowed in HalfOpen, got %d", cb.halfOpenMax, allowed)
	}
}

func TestCircuitBreaker_CloseAfterSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 100*time.Millisecond)

	cb.RecordResult(false)
	cb.RecordResult(false)
	cb.RecordResult(false)

	time.Sleep(150 * time.Millisecond)
	cb.allowRequest()

	for i := 0; i < 3; i++ {
		cb.RecordResult(true)
	}

	if cb.GetState() != StateClosed {
		t.Error("Expected state to be Closed after successes in HalfOpen")
	}
}

func TestCircuitBreaker_OpenAfterFailureInHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 100*time.Millisecond)

	cb.RecordResult(false)
	cb.RecordResult(false)
	cb.RecordResult(false)

	time.Sleep(150 * time.Millisecond)
	cb.allowRequest()

	// Any failure while probing reopens the circuit.
	cb.RecordResult(false)

	if cb.GetState() != StateOpen {
		t.Error("Expected state to be Open after failure in HalfOpen")
	}
}

func TestCircuitBreaker_Call(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	err := cb.Call(func() error {
		return nil
	})
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	err = cb.Call(func() error {
		return errors.New("test error")
	})
	if err == nil {
		t.Error("Expected error from failed call")
	}
}

func TestCircuitBreaker_CallOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 1*time.Second)

	cb.RecordResult(false)

	err := cb.Call(func() error {
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_GetStats(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	cb.RecordResult(true)
	cb.RecordResult(true)
	cb.RecordResult(false)

	state, requestCount, failureCount, failureRate := cb.GetStats()

	if state != StateClosed {
		t.Errorf("Expected state Closed, got %d", state)
	}
	if requestCount != 3 {
		t.Errorf("Expected 3 requests, got %d", requestCount)
	}
	if failureCount != 1 {
		t.Errorf("Expected 1 failure, got %d", failureCount)
	}
	if failureRate < 33.0 || failureRate > 34.0 {
		t.Errorf("Expected failure rate around 33.33%%, got %.2f%%", failureRate)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	cb.RecordResult(false)
	cb.RecordResult(false)
	cb.RecordResult(false)

	if cb.GetState() != StateOpen {
		t.Fatal("Expected circuit to be Open")
	}

	cb.Reset()

	if cb.GetState() != StateClosed {
		t.Error("Expected state to be Closed after reset")
	}

	state, requestCount, failureCount, _ := cb.GetStats()
	if state != StateClosed || requestCount != 0 || failureCount != 0 {
		t.Error("Expected stats to be reset")
	}
}
