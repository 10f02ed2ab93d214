// SPDX-License-Identifier: MPL-2.0

package sequencer

import (
	"errors"
	"fmt"
)

const (
	Pending State = iota
	BaseSelected
	DirSet
	SysPackagesInstalled
	ManagerInstalled
	SourceCopied
	DependenciesResolved
	PortDeclared
	EnvSet
	Launched
	// Failed is terminal; it can be entered from any non-terminal state.
	Failed
)

// ErrInvalidTransition is the sentinel error wrapped by TransitionError.
var ErrInvalidTransition = errors.New("invalid state transition")

var stateNames = [...]string{
	Pending:              "pending",
	BaseSelected:         "base_selected",
	DirSet:               "dir_set",
	SysPackagesInstalled: "sys_packages_installed",
	ManagerInstalled:     "manager_installed",
	SourceCopied:         "source_copied",
	DependenciesResolved: "dependencies_resolved",
	PortDeclared:         "port_declared",
	EnvSet:               "env_set",
	Launched:             "launched",
	Failed:               "failed",
}

type (
	// State is a position in the bootstrap sequence.
	State int

	// TransitionError reports an Advance to anything but the immediate successor.
	TransitionError struct {
		From State
		To   State
	}

	// Machine tracks the current State. The zero value is Pending.
	Machine struct {
		state State
		// failedFrom is the state the machine was in when it failed.
		failedFrom State
	}
)

// String returns the snake_case state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Next returns the successor of s; Launched and Failed have none.
func (s State) Next() (State, bool) {
	if s >= Pending && s < Launched {
		return s + 1, true
	}
	return s, false
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == Launched || s == Failed }

// State returns the current state.
func (m *Machine) State() State { return m.state }

// FailedFrom returns the state the machine left when it failed.
func (m *Machine) FailedFrom() State { return m.failedFrom }

// Advance moves to "to", which must be the immediate successor.
func (m *Machine) Advance(to State) error {
	next, ok := m.state.Next()
	if !ok || next != to {
		return &TransitionError{From: m.state, To: to}
	}
	m.state = to
	return nil
}

// AdvanceTo advances one state at a time until target is reached.
func (m *Machine) AdvanceTo(target State) error {
	for m.state != target {
		next, ok := m.state.Next()
		if !ok || next > target {
			return &TransitionError{From: m.state, To: target}
		}
		if err := m.Advance(next); err != nil {
			return err
		}
	}
	return nil
}

// Fail enters Failed. Failing a terminal machine is an error.
func (m *Machine) Fail() error {
	if m.state.Terminal() {
		return &TransitionError{From: m.state, To: Failed}
	}
	m.failedFrom = m.state
	m.state = Failed
	return nil
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %s → %s", e.From, e.To)
}

// Unwrap returns ErrInvalidTransition for errors.Is() compatibility.
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
