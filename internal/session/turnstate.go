package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// TurnState is one stage of the per-session turn lifecycle.
type TurnState int

const (
	StateIdle TurnState = iota
	StateCapturing
	StateAwaitingFinalTranscript
	StateGenerating
	StateSynthesizing
	StatePlaying
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateAwaitingFinalTranscript:
		return "awaiting_final_transcript"
	case StateGenerating:
		return "generating"
	case StateSynthesizing:
		return "synthesizing"
	case StatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// legalTransitions is the forward path of the turn lifecycle. Failure is
// not in the table: any non-idle state may reset to idle through Fail.
var legalTransitions = map[TurnState][]TurnState{
	StateIdle:                    {StateCapturing},
	StateCapturing:               {StateAwaitingFinalTranscript},
	StateAwaitingFinalTranscript: {StateGenerating, StateIdle}, // idle on no-speech
	StateGenerating:              {StateSynthesizing},
	StateSynthesizing:            {StatePlaying},
	StatePlaying:                 {StateIdle},
}

// IllegalTransitionError reports a transition the lifecycle does not allow.
// The machine's state is unchanged when it is returned.
type IllegalTransitionError struct {
	From, To TurnState
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal turn transition %s -> %s", e.From, e.To)
}

// TurnMachine enforces the turn lifecycle for one session. At most one
// turn is in flight at a time; a second start while not idle is rejected.
type TurnMachine struct {
	mu     sync.Mutex
	state  TurnState
	turnID string
}

// NewTurnMachine returns a machine in the idle state.
func NewTurnMachine() *TurnMachine {
	return &TurnMachine{state: StateIdle}
}

// State returns the current state.
func (m *TurnMachine) State() TurnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TurnID returns the identifier of the turn in flight, or "" when idle.
func (m *TurnMachine) TurnID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.turnID
}

// Begin starts a new turn, moving idle -> capturing and assigning a fresh
// turn ID.
func (m *TurnMachine) Begin() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return "", &IllegalTransitionError{From: m.state, To: StateCapturing}
	}
	m.state = StateCapturing
	m.turnID = uuid.New().String()
	return m.turnID, nil
}

// Advance moves the machine to the given state if the lifecycle allows it.
func (m *TurnMachine) Advance(to TurnState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, allowed := range legalTransitions[m.state] {
		if allowed == to {
			m.state = to
			if to == StateIdle {
				m.turnID = ""
			}
			return nil
		}
	}
	return &IllegalTransitionError{From: m.state, To: to}
}

// Fail aborts the turn in flight from any state. The error state is
// instantaneous: the machine lands back in idle, ready for the next turn.
// Returns false if the machine was already idle.
func (m *TurnMachine) Fail() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateIdle {
		return false
	}
	m.state = StateIdle
	m.turnID = ""
	return true
}
