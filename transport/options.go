// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/absmach/openwire/codec"
	"github.com/absmach/openwire/telemetry"
)

// Options configure a stream.
type Options struct {
	// Codec holds the local wire format preferences. The negotiated
	// options replace them once the handshake completes.
	Codec codec.Options

	MaxConsecutiveErrors int
	WriteTimeout         time.Duration
	DialTimeout          time.Duration
	TLSConfig            *tls.Config

	// DispatchBuffer bounds the commands read ahead of the listener.
	DispatchBuffer int

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// DefaultOptions returns the stream defaults.
func DefaultOptions() Options {
	return Options{
		Codec:                codec.DefaultOptions(),
		MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
		WriteTimeout:         10 * time.Second,
		DialTimeout:          10 * time.Second,
		DispatchBuffer:       256,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxConsecutiveErrors <= 0 {
		o.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if o.DispatchBuffer <= 0 {
		o.DispatchBuffer = 256
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
