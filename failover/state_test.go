// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package failover

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateNext(t *testing.T) {
	tests := []struct {
		from State
		ev   event
		to   State
		ok   bool
	}{
		{StateIdle, eventConnected, StateConnected, true},
		{StateIdle, eventRetriesExhausted, StateFailed, true},
		{StateIdle, eventTransportFailed, StateIdle, false},
		{StateIdle, eventClose, StateClosed, true},
		{StateConnected, eventTransportFailed, StateReconnecting, true},
		{StateConnected, eventConnected, StateConnected, false},
		{StateConnected, eventRetriesExhausted, StateConnected, false},
		{StateConnected, eventClose, StateClosed, true},
		{StateReconnecting, eventConnected, StateConnected, true},
		{StateReconnecting, eventRetriesExhausted, StateFailed, true},
		{StateReconnecting, eventTransportFailed, StateReconnecting, false},
		{StateReconnecting, eventClose, StateClosed, true},
		{StateFailed, eventConnected, StateFailed, false},
		{StateFailed, eventClose, StateClosed, true},
		{StateClosed, eventConnected, StateClosed, false},
		{StateClosed, eventClose, StateClosed, false},
	}

	for _, tt := range tests {
		to, ok := tt.from.next(tt.ev)
		assert.Equal(t, tt.to, to, "%s + %d", tt.from, tt.ev)
		assert.Equal(t, tt.ok, ok, "%s + %d", tt.from, tt.ev)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestNextDelay(t *testing.T) {
	opts := DefaultOptions()
	opts.InitialReconnectDelay = 10 * time.Millisecond
	opts.MaxReconnectDelay = 50 * time.Millisecond

	d := opts.InitialReconnectDelay
	var got []time.Duration
	for range 4 {
		d = opts.nextDelay(d)
		got = append(got, d)
	}
	assert.Equal(t, []time.Duration{20 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond}, got)

	opts.UseExponentialBackOff = false
	assert.Equal(t, 10*time.Millisecond, opts.nextDelay(10*time.Millisecond))
}

func TestAttemptLimit(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, -1, opts.attemptLimit(true))
	assert.Equal(t, -1, opts.attemptLimit(false))

	opts.MaxReconnectAttempts = 5
	assert.Equal(t, 5, opts.attemptLimit(true))

	opts.StartupMaxReconnectAttempts = 0
	assert.Equal(t, 0, opts.attemptLimit(true))
	assert.Equal(t, 5, opts.attemptLimit(false))
}

func TestCandidates(t *testing.T) {
	opts := DefaultOptions()
	opts.URIs = []string{"tcp://a:1", "tcp://b:2", "tcp://c:3"}
	ft, err := New(opts, nil)
	require.NoError(t, err)

	assert.Equal(t, opts.URIs, ft.candidates(""))
	assert.Equal(t, []string{"tcp://b:2", "tcp://a:1", "tcp://c:3"}, ft.candidates("tcp://b:2"))
	assert.Equal(t, []string{"tcp://d:4", "tcp://a:1", "tcp://b:2", "tcp://c:3"}, ft.candidates("tcp://d:4"))

	ft.opts.Randomize = true
	assert.ElementsMatch(t, opts.URIs, ft.candidates(""))

	ft.addURIs("tcp://c:3", " tcp://d:4 ", "")
	assert.Equal(t, []string{"tcp://a:1", "tcp://b:2", "tcp://c:3", "tcp://d:4"}, ft.URIs())
}
