// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package failover

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/openwire/state"
	"github.com/absmach/openwire/telemetry"
	"github.com/absmach/openwire/transport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Options configure a failover transport.
type Options struct {
	// URIs lists the candidate brokers, primary first.
	URIs      []string
	Randomize bool

	InitialReconnectDelay time.Duration
	MaxReconnectDelay     time.Duration
	UseExponentialBackOff bool
	BackOffMultiplier     float64

	// MaxReconnectAttempts bounds the passes over all candidates after the
	// first one; -1 retries forever. StartupMaxReconnectAttempts applies to
	// Start instead, -1 falls back to MaxReconnectAttempts.
	MaxReconnectAttempts        int
	StartupMaxReconnectAttempts int

	// ConnectTimeout bounds each dial, handshake included.
	ConnectTimeout time.Duration
	// SendTimeout bounds how long Oneway waits for a reconnect; 0 waits
	// until connected or closed.
	SendTimeout time.Duration

	// UpdateURIsSupported lets the broker add candidates and rebalance the
	// connection through ConnectionControl.
	UpdateURIsSupported bool

	BreakerFailureThreshold int
	BreakerResetTimeout     time.Duration

	// Dial opens one candidate. Defaults to transport.Dialer with default
	// stream options.
	Dial transport.DialFunc
	// Tracker, when set, records setup commands sent through the transport
	// and replays them after a reconnect.
	Tracker *state.Tracker

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Tracer  trace.Tracer
}

// DefaultOptions returns the reconnect defaults.
func DefaultOptions() Options {
	return Options{
		InitialReconnectDelay:       10 * time.Millisecond,
		MaxReconnectDelay:           30 * time.Second,
		UseExponentialBackOff:       true,
		BackOffMultiplier:           2.0,
		MaxReconnectAttempts:        -1,
		StartupMaxReconnectAttempts: -1,
		ConnectTimeout:              10 * time.Second,
		UpdateURIsSupported:         true,
		BreakerFailureThreshold:     5,
		BreakerResetTimeout:         30 * time.Second,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if len(o.URIs) == 0 {
		return ErrNoURIs
	}
	if o.InitialReconnectDelay <= 0 {
		return fmt.Errorf("initial reconnect delay must be positive")
	}
	if o.MaxReconnectDelay < o.InitialReconnectDelay {
		return fmt.Errorf("max reconnect delay cannot be less than initial reconnect delay")
	}
	if o.UseExponentialBackOff && o.BackOffMultiplier < 1.0 {
		return fmt.Errorf("backoff multiplier must be at least 1.0")
	}
	if o.MaxReconnectAttempts < -1 || o.StartupMaxReconnectAttempts < -1 {
		return fmt.Errorf("reconnect attempts must be -1 or greater")
	}
	if o.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if o.SendTimeout < 0 {
		return fmt.Errorf("send timeout cannot be negative")
	}
	if o.BreakerFailureThreshold < 1 {
		return fmt.Errorf("breaker failure threshold must be at least 1")
	}
	if o.BreakerResetTimeout <= 0 {
		return fmt.Errorf("breaker reset timeout must be positive")
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer(telemetry.InstrumentationName)
	}
	if o.Dial == nil {
		topts := transport.DefaultOptions()
		topts.Logger = o.Logger
		topts.Metrics = o.Metrics
		o.Dial = transport.Dialer(topts)
	}
	return o
}

// attemptLimit returns the passes allowed after the first, -1 for no limit.
func (o Options) attemptLimit(startup bool) int {
	if startup && o.StartupMaxReconnectAttempts != -1 {
		return o.StartupMaxReconnectAttempts
	}
	return o.MaxReconnectAttempts
}

// nextDelay returns the pause after one following d.
func (o Options) nextDelay(d time.Duration) time.Duration {
	if !o.UseExponentialBackOff {
		return d
	}
	next := time.Duration(float64(d) * o.BackOffMultiplier)
	if next > o.MaxReconnectDelay || next <= 0 {
		next = o.MaxReconnectDelay
	}
	return next
}
