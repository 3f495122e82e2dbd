package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/huddle/internal/bus"
)

// State is the connection and synchronization state of a session.
type State string

const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Connecting   State = "CONNECTING"
	Syncing      State = "SYNCING"
	Live         State = "LIVE"
	Reconnecting State = "RECONNECTING"
	Degraded     State = "DEGRADED"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:      {Connecting, AuthRequired, Error},
	AuthRequired: {Connecting, Error},
	Connecting:   {Syncing, Live, AuthRequired, Reconnecting, Error},
	Syncing:      {Live, Degraded, Reconnecting, AuthRequired, Error},
	Live:         {Syncing, Reconnecting, Degraded, AuthRequired, Error},
	Reconnecting: {Connecting, Syncing, Live, Degraded, AuthRequired, Error},
	Degraded:     {Syncing, Live, Reconnecting, AuthRequired, Error},
	Error:        {Booting},
}

// Machine tracks and enforces session state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	reason  string
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reason returns the note attached to the last transition.
func (m *Machine) Reason() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reason
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	return m.TransitionWith(to, "")
}

// TransitionWith is Transition with a human readable reason.
func (m *Machine) TransitionWith(to State, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.reason = reason
	m.bus.Emit(bus.SessionStatusChanged, StatusChange{From: from, To: to, Reason: reason})
	return nil
}

// Ensure moves to the target state unless already there.
func (m *Machine) Ensure(to State, reason string) error {
	if m.Current() == to {
		return nil
	}
	return m.TransitionWith(to, reason)
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From   State
	To     State
	Reason string
}
