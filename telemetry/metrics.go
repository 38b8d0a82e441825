// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OpenTelemetry instruments of one client. A nil *Metrics
// records nothing, so components can take it as an optional dependency.
type Metrics struct {
	framesReceived metric.Int64Counter
	framesSent     metric.Int64Counter
	bytesReceived  metric.Int64Counter
	bytesSent      metric.Int64Counter
	decodeErrors   metric.Int64Counter
	poisonAcks     metric.Int64Counter
	streamsClosed  metric.Int64Counter
	reconnects     metric.Int64Counter
	replayErrors   metric.Int64Counter

	connected metric.Int64UpDownCounter

	reconnectDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(InstrumentationName))
}

// NewMetricsWithMeter creates the instruments on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.framesReceived, "openwire.frames.received", "Frames read from the broker"},
		{&m.framesSent, "openwire.frames.sent", "Frames written to the broker"},
		{&m.bytesReceived, "openwire.bytes.received", "Frame bytes read, size prefix included"},
		{&m.bytesSent, "openwire.bytes.sent", "Frame bytes written, size prefix included"},
		{&m.decodeErrors, "openwire.decode.errors", "Frames that failed to decode"},
		{&m.poisonAcks, "openwire.poison_acks", "Poison acknowledgments sent for undecodable messages"},
		{&m.streamsClosed, "openwire.streams.closed", "Streams closed by failure"},
		{&m.reconnects, "openwire.reconnects", "Reconnect attempts by result"},
		{&m.replayErrors, "openwire.replay.errors", "Tracked commands that failed to replay"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	m.connected, err = meter.Int64UpDownCounter(
		"openwire.connections.current",
		metric.WithDescription("Connected transports"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connections gauge: %w", err)
	}

	m.reconnectDuration, err = meter.Float64Histogram(
		"openwire.reconnect.duration.ms",
		metric.WithDescription("Time from interruption to resumed transport in milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconnect duration histogram: %w", err)
	}

	return m, nil
}

// RecordFrameReceived records one frame read.
func (m *Metrics) RecordFrameReceived(size int) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.framesReceived.Add(ctx, 1)
	m.bytesReceived.Add(ctx, int64(size))
}

// RecordFrameSent records one frame written.
func (m *Metrics) RecordFrameSent(size int) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.framesSent.Add(ctx, 1)
	m.bytesSent.Add(ctx, int64(size))
}

// RecordDecodeError records a frame that failed to decode.
func (m *Metrics) RecordDecodeError(recovered bool) {
	if m == nil {
		return
	}
	m.decodeErrors.Add(context.Background(), 1, metric.WithAttributes(
		attribute.Bool("id_recovered", recovered),
	))
}

// RecordPoisonAck records a poison acknowledgment sent to the broker.
func (m *Metrics) RecordPoisonAck() {
	if m == nil {
		return
	}
	m.poisonAcks.Add(context.Background(), 1)
}

// RecordStreamClosed records a stream closed by failure.
func (m *Metrics) RecordStreamClosed(reason string) {
	if m == nil {
		return
	}
	m.streamsClosed.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordConnected records a transport becoming connected.
func (m *Metrics) RecordConnected() {
	if m == nil {
		return
	}
	m.connected.Add(context.Background(), 1)
}

// RecordDisconnected records a connected transport going away.
func (m *Metrics) RecordDisconnected() {
	if m == nil {
		return
	}
	m.connected.Add(context.Background(), -1)
}

// RecordReconnectAttempt records one connection attempt to addr.
func (m *Metrics) RecordReconnectAttempt(addr string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.reconnects.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("addr", addr),
		attribute.String("result", result),
	))
}

// RecordReconnectDuration records how long the client was interrupted.
func (m *Metrics) RecordReconnectDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.reconnectDuration.Record(context.Background(), float64(d)/float64(time.Millisecond))
}

// RecordReplayError records a tracked command that failed to replay.
func (m *Metrics) RecordReplayError(commandType string) {
	if m == nil {
		return
	}
	m.replayErrors.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("command", commandType),
	))
}
