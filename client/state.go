// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import "sync/atomic"

// State represents the connection state.
type State uint32

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosing
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// stateManager handles atomic state transitions.
type stateManager struct {
	state atomic.Uint32
}

func newStateManager() *stateManager {
	return &stateManager{}
}

func (sm *stateManager) get() State {
	return State(sm.state.Load())
}

func (sm *stateManager) set(s State) {
	sm.state.Store(uint32(s))
}

// transition moves from the expected state to the new one and reports
// whether it did.
func (sm *stateManager) transition(from, to State) bool {
	return sm.state.CompareAndSwap(uint32(from), uint32(to))
}

// transitionFrom moves to the new state from any of the given ones.
func (sm *stateManager) transitionFrom(to State, from ...State) bool {
	for _, f := range from {
		if sm.transition(f, to) {
			return true
		}
	}
	return false
}

// usable reports whether commands can be sent. While reconnecting they
// wait inside the failover transport.
func (sm *stateManager) usable() bool {
	s := sm.get()
	return s == StateConnected || s == StateReconnecting
}

func (sm *stateManager) isClosed() bool {
	s := sm.get()
	return s == StateClosing || s == StateClosed
}
