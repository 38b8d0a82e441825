// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package failover

import (
	"errors"
	"fmt"
)

// Failover errors.
var (
	ErrClosed         = errors.New("openwire: failover transport closed")
	ErrNotStarted     = errors.New("openwire: failover transport not started")
	ErrAlreadyStarted = errors.New("openwire: failover transport already started")
	ErrSendTimeout    = errors.New("openwire: timed out waiting for reconnection")
	ErrNoURIs         = errors.New("openwire: no broker uris")
	ErrInvalidURI     = errors.New("openwire: invalid failover uri")

	errBreakersOpen = errors.New("openwire: all broker breakers open")
)

// ExhaustedRetriesError is returned, and reported to the listener, once the
// reconnect policy gave up. The transport is unusable afterwards.
type ExhaustedRetriesError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("openwire: failover gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.Last }
