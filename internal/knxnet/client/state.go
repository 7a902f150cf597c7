package client

import (
	"fmt"
	"slices"
	"sync"
)

// State is the connection lifecycle state.
type State int32

// Lifecycle states.
const (
	StateIdle State = iota
	StateDiscovering
	StateConnecting
	StateConnected
	StateDisconnecting
	StateDisconnected
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// transitions lists the allowed targets per state.
//
//	Idle          -> Discovering | Connecting | Connected (routing)
//	Discovering   -> Connecting
//	Connecting    -> Connected
//	Connected     -> Disconnecting | Disconnected (gateway) | Connecting (session lost)
//	Disconnecting -> Disconnected
//	Disconnected  -> Idle (reset for reconnect)
//	Error         -> Idle (reconnect)
//
// Error is reachable from every state except Disconnected; Disconnected is
// reachable from every state so Close always completes.
var transitions = map[State][]State{
	StateIdle:          {StateDiscovering, StateConnecting, StateConnected, StateError, StateDisconnected},
	StateDiscovering:   {StateConnecting, StateError, StateDisconnected},
	StateConnecting:    {StateConnected, StateError, StateDisconnected},
	StateConnected:     {StateDisconnecting, StateDisconnected, StateConnecting, StateError},
	StateDisconnecting: {StateDisconnected, StateError},
	StateDisconnected:  {StateIdle},
	StateError:         {StateIdle, StateDisconnected},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// StateObserver is implemented by hooks that want lifecycle changes.
type StateObserver interface {
	OnStateChange(from, to State)
}

// stateMachine guards the current state. Observers are called outside the
// lock, in transition order per goroutine.
type stateMachine struct {
	mu       sync.Mutex
	state    State
	observer func(from, to State)
}

func newStateMachine(observer func(from, to State)) *stateMachine {
	return &stateMachine{state: StateIdle, observer: observer}
}

func (m *stateMachine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// transition moves to the target state.
//
// Returns:
//   - error: ErrInvalidTransition if from -> to is not allowed
func (m *stateMachine) transition(to State) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.state = to
	m.mu.Unlock()

	if m.observer != nil {
		m.observer(from, to)
	}
	return nil
}

// transitionFrom moves to the target only if the current state is from.
func (m *stateMachine) transitionFrom(from, to State) bool {
	m.mu.Lock()
	if m.state != from || !CanTransition(from, to) {
		m.mu.Unlock()
		return false
	}
	m.state = to
	m.mu.Unlock()

	if m.observer != nil {
		m.observer(from, to)
	}
	return true
}
