// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import "sync"

// DefaultMaxConsecutiveErrors is the number of back to back decode failures
// after which a stream gives up.
const DefaultMaxConsecutiveErrors = 10

// State is the corruption recovery state of a stream.
type State uint32

// Stream states.
const (
	StateRunning State = iota
	StateDegraded
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// recovery counts consecutive decode failures. Closed is terminal.
type recovery struct {
	mu          sync.Mutex
	state       State
	consecutive int
	max         int
}

func newRecovery(max int) *recovery {
	if max <= 0 {
		max = DefaultMaxConsecutiveErrors
	}
	return &recovery{max: max}
}

// success records a decoded frame.
func (r *recovery) success() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateClosed {
		return
	}
	r.consecutive = 0
	r.state = StateRunning
}

// failure records a frame that failed to decode and returns the new count.
// closed is true once the count reaches the limit.
func (r *recovery) failure() (n int, closed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateClosed {
		return r.consecutive, true
	}
	r.consecutive++
	if r.consecutive >= r.max {
		r.state = StateClosed
		return r.consecutive, true
	}
	r.state = StateDegraded
	return r.consecutive, false
}

func (r *recovery) close() {
	r.mu.Lock()
	r.state = StateClosed
	r.mu.Unlock()
}

// reset clears the counter of a stream that is still open.
func (r *recovery) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.consecutive = 0
	if r.state != StateClosed {
		r.state = StateRunning
	}
}

func (r *recovery) snapshot() (State, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.consecutive
}
