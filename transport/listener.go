// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"

	"github.com/absmach/openwire/commands"
)

// Listener receives what a transport reads. Calls are made from a single
// dispatcher goroutine, in wire order, never from the read loop itself.
type Listener interface {
	OnCommand(cmd commands.Command)
	OnException(err error)
	TransportInterrupted()
	TransportResumed()
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are ignored.
type ListenerFuncs struct {
	Command     func(cmd commands.Command)
	Exception   func(err error)
	Interrupted func()
	Resumed     func()
}

func (l ListenerFuncs) OnCommand(cmd commands.Command) {
	if l.Command != nil {
		l.Command(cmd)
	}
}

func (l ListenerFuncs) OnException(err error) {
	if l.Exception != nil {
		l.Exception(err)
	}
}

func (l ListenerFuncs) TransportInterrupted() {
	if l.Interrupted != nil {
		l.Interrupted()
	}
}

func (l ListenerFuncs) TransportResumed() {
	if l.Resumed != nil {
		l.Resumed()
	}
}

// Transport is a started connection to one broker.
type Transport interface {
	// Oneway writes cmd. Writes from any goroutine are serialized.
	Oneway(cmd commands.Command) error
	// ResetErrors clears the consecutive decode error counter.
	ResetErrors()
	// RemoteAddr returns the broker URI the transport was dialed with.
	RemoteAddr() string
	// Done is closed once the transport stopped reading.
	Done() <-chan struct{}
	// Err returns the failure that ended the transport, nil after Close.
	Err() error
	Close() error
}

// DialFunc connects to addr and returns a started transport delivering to l.
type DialFunc func(ctx context.Context, addr string, l Listener) (Transport, error)
