package client

import (
	"errors"
	"sync"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateDiscovering, true},
		{StateIdle, StateConnecting, true},
		{StateIdle, StateConnected, true},
		{StateDiscovering, StateConnecting, true},
		{StateDiscovering, StateConnected, false},
		{StateConnecting, StateConnected, true},
		{StateConnecting, StateDisconnecting, false},
		{StateConnected, StateDisconnecting, true},
		{StateConnected, StateDisconnected, true},
		{StateConnected, StateConnecting, true},
		{StateConnected, StateIdle, false},
		{StateDisconnecting, StateDisconnected, true},
		{StateDisconnecting, StateConnected, false},
		{StateDisconnected, StateIdle, true},
		{StateDisconnected, StateConnecting, false},
		{StateDisconnected, StateError, false},
		{StateError, StateIdle, true},
		{StateError, StateConnected, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestErrorReachableFromActiveStates(t *testing.T) {
	for _, s := range []State{StateIdle, StateDiscovering, StateConnecting, StateConnected, StateDisconnecting} {
		if !CanTransition(s, StateError) {
			t.Errorf("CanTransition(%s, error) = false", s)
		}
	}
}

func TestDisconnectedReachable(t *testing.T) {
	for s := range transitions {
		if s == StateDisconnected {
			continue
		}
		if !CanTransition(s, StateDisconnected) {
			t.Errorf("CanTransition(%s, disconnected) = false", s)
		}
	}
}

func TestStateMachineTransition(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	m := newStateMachine(func(from, to State) {
		mu.Lock()
		seen = append(seen, from.String()+"->"+to.String())
		mu.Unlock()
	})

	if err := m.transition(StateConnecting); err != nil {
		t.Fatalf("transition(connecting) error = %v", err)
	}
	err := m.transition(StateDisconnecting)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("transition(disconnecting) error = %v, want ErrInvalidTransition", err)
	}
	if got := m.current(); got != StateConnecting {
		t.Errorf("current() = %s after rejected transition, want connecting", got)
	}

	if m.transitionFrom(StateIdle, StateConnected) {
		t.Error("transitionFrom(idle, connected) = true while connecting")
	}
	if !m.transitionFrom(StateConnecting, StateConnected) {
		t.Error("transitionFrom(connecting, connected) = false")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"idle->connecting", "connecting->connected"}
	if len(seen) != len(want) {
		t.Fatalf("observer saw %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("observer[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestStateString(t *testing.T) {
	if got := State(42).String(); got != "State(42)" {
		t.Errorf("State(42).String() = %q", got)
	}
	if got := StateDisconnecting.String(); got != "disconnecting" {
		t.Errorf("StateDisconnecting.String() = %q", got)
	}
}
