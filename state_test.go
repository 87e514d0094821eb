package netreactor

import "testing"

func TestFastStateLifecycle(t *testing.T) {
	s := NewFastState()
	if got := s.Load(); got != StateAwake {
		t.Fatalf("initial state = %v, want Awake", got)
	}
	if !s.TryTransition(StateAwake, StateRunning) {
		t.Fatal("Awake -> Running transition failed")
	}
	if s.TryTransition(StateAwake, StateRunning) {
		t.Fatal("transition from stale state unexpectedly succeeded")
	}
	if !s.TryTransition(StateRunning, StateSleeping) {
		t.Fatal("Running -> Sleeping transition failed")
	}
	if !s.TryTransition(StateSleeping, StateRunning) {
		t.Fatal("Sleeping -> Running transition failed")
	}
	if !s.IsRunning() {
		t.Fatal("IsRunning() = false while Running")
	}
	s.Store(StateTerminated)
	if !s.IsTerminal() {
		t.Fatal("IsTerminal() = false after Store(StateTerminated)")
	}
	if s.CanAcceptWork() {
		t.Fatal("CanAcceptWork() = true after termination")
	}
}

func TestFastStateTransitionAny(t *testing.T) {
	s := NewFastState()
	s.Store(StateSleeping)
	if !s.TransitionAny([]LoopState{StateRunning, StateSleeping}, StateTerminating) {
		t.Fatal("TransitionAny should have matched StateSleeping")
	}
	if s.Load() != StateTerminating {
		t.Fatalf("state = %v, want Terminating", s.Load())
	}
}
