// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package failover

// State is the failover transport state.
type State uint32

// Failover states.
const (
	StateIdle State = iota
	StateConnected
	StateReconnecting
	StateFailed
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type event uint8

const (
	eventConnected event = iota
	eventTransportFailed
	eventRetriesExhausted
	eventClose
)

// next returns the state after e and whether e is allowed in s.
func (s State) next(e event) (State, bool) {
	if e == eventClose {
		return StateClosed, s != StateClosed
	}

	switch s {
	case StateIdle:
		switch e {
		case eventConnected:
			return StateConnected, true
		case eventRetriesExhausted:
			return StateFailed, true
		}
	case StateConnected:
		if e == eventTransportFailed {
			return StateReconnecting, true
		}
	case StateReconnecting:
		switch e {
		case eventConnected:
			return StateConnected, true
		case eventRetriesExhausted:
			return StateFailed, true
		}
	}
	return s, false
}
