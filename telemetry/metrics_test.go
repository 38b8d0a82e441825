// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/absmach/openwire/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sum(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()

	s, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "unexpected aggregation %T", data)
	var total int64
	for _, dp := range s.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := telemetry.NewMetricsWithMeter(mp.Meter("test"))
	require.NoError(t, err)

	m.RecordFrameReceived(10)
	m.RecordFrameReceived(20)
	m.RecordFrameSent(7)
	m.RecordDecodeError(true)
	m.RecordDecodeError(false)
	m.RecordPoisonAck()
	m.RecordStreamClosed("decode")
	m.RecordConnected()
	m.RecordConnected()
	m.RecordDisconnected()
	m.RecordReconnectAttempt("tcp://a:61616", errors.New("refused"))
	m.RecordReconnectAttempt("tcp://b:61616", nil)
	m.RecordReconnectDuration(150 * time.Millisecond)
	m.RecordReplayError("ConsumerInfo")

	got := collect(t, reader)
	assert.Equal(t, int64(2), sum(t, got["openwire.frames.received"]))
	assert.Equal(t, int64(30), sum(t, got["openwire.bytes.received"]))
	assert.Equal(t, int64(1), sum(t, got["openwire.frames.sent"]))
	assert.Equal(t, int64(7), sum(t, got["openwire.bytes.sent"]))
	assert.Equal(t, int64(2), sum(t, got["openwire.decode.errors"]))
	assert.Equal(t, int64(1), sum(t, got["openwire.poison_acks"]))
	assert.Equal(t, int64(1), sum(t, got["openwire.streams.closed"]))
	assert.Equal(t, int64(1), sum(t, got["openwire.connections.current"]))
	assert.Equal(t, int64(2), sum(t, got["openwire.reconnects"]))
	assert.Equal(t, int64(1), sum(t, got["openwire.replay.errors"]))

	h, ok := got["openwire.reconnect.duration.ms"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, h.DataPoints, 1)
	assert.Equal(t, uint64(1), h.DataPoints[0].Count)
	assert.InDelta(t, 150.0, h.DataPoints[0].Sum, 0.001)
}

func TestNilMetrics(t *testing.T) {
	var m *telemetry.Metrics
	assert.NotPanics(t, func() {
		m.RecordFrameReceived(1)
		m.RecordFrameSent(1)
		m.RecordDecodeError(false)
		m.RecordPoisonAck()
		m.RecordStreamClosed("eof")
		m.RecordConnected()
		m.RecordDisconnected()
		m.RecordReconnectAttempt("tcp://a", nil)
		m.RecordReconnectDuration(time.Second)
		m.RecordReplayError("SessionInfo")
	})
}
