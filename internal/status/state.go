package status

import (
	"fmt"
	"slices"
	"sync"
)

// State is the lifecycle state of an open message thread view.
type State string

const (
	Idle           State = "IDLE"
	LoadingInitial State = "LOADING_INITIAL"
	Ready          State = "READY"
	LoadingMore    State = "LOADING_MORE"
	Failed         State = "FAILED"
	Closed         State = "CLOSED"
)

// validTransitions defines allowed state transitions. Closed is terminal.
var validTransitions = map[State][]State{
	Idle:           {LoadingInitial, Closed},
	LoadingInitial: {Ready, Failed, Closed},
	Ready:          {LoadingMore, Closed},
	LoadingMore:    {Ready, Closed},
	Failed:         {LoadingInitial, Closed},
	Closed:         {},
}

// Machine tracks and enforces thread view state transitions.
type Machine struct {
	mu       sync.RWMutex
	current  State
	onChange func(Change)
}

// Change describes an applied transition.
type Change struct {
	From State
	To   State
}

// NewMachine creates a machine in the Idle state. onChange, if non-nil, is
// called after every applied transition.
func NewMachine(onChange func(Change)) *Machine {
	return &Machine{current: Idle, onChange: onChange}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Is reports whether the machine is in state s.
func (m *Machine) Is(s State) bool {
	return m.Current() == s
}

// Transition moves to a new state. Returns an error if the transition is not allowed.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.current
	if !slices.Contains(validTransitions[from], to) {
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	m.current = to
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(Change{From: from, To: to})
	}
	return nil
}

// TransitionFrom moves to `to` only if the machine is currently in `from`.
// It reports whether the transition happened.
func (m *Machine) TransitionFrom(from, to State) bool {
	m.mu.Lock()
	if m.current != from || !slices.Contains(validTransitions[from], to) {
		m.mu.Unlock()
		return false
	}
	m.current = to
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(Change{From: from, To: to})
	}
	return true
}
