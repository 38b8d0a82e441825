// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
)

// Transport errors.
var (
	ErrTooManyDecodeErrors = errors.New("openwire: too many consecutive decode errors")
	ErrClosed              = errors.New("openwire: transport closed")
	ErrNotStarted          = errors.New("openwire: transport not started")
	ErrAlreadyStarted      = errors.New("openwire: transport already started")
	ErrUnsupportedScheme   = errors.New("openwire: unsupported transport scheme")
	ErrHandshake           = errors.New("openwire: wire format handshake failed")
)

// StreamError reports a failure of the underlying connection, or a decode
// failure streak long enough to give up on it. It always ends the stream.
type StreamError struct {
	Addr string
	Err  error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("openwire: stream %s: %v", e.Addr, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }
