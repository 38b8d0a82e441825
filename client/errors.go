// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import "errors"

// Client errors.
var (
	// Configuration errors.
	ErrNoURI         = errors.New("no broker uri configured")
	ErrEmptyClientID = errors.New("client ID cannot be empty")

	// Connection errors.
	ErrNotConnected     = errors.New("connection not started")
	ErrAlreadyConnected = errors.New("connection already started")
	ErrConnectFailed    = errors.New("connection failed")

	// Operation errors.
	ErrTimeout        = errors.New("operation timed out")
	ErrMaxInflight    = errors.New("maximum inflight requests exceeded")
	ErrConnectionLost = errors.New("connection lost")
	ErrClientClosed   = errors.New("connection has been closed")
	ErrNoMessageID    = errors.New("dispatch carries no message id")
	ErrUnexpectedType = errors.New("unexpected response type")
)
