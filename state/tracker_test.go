// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package state_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/absmach/openwire/commands"
	"github.com/absmach/openwire/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const connID = "ID:client-1"

func connection() *commands.ConnectionInfo {
	return &commands.ConnectionInfo{ConnectionID: &commands.ConnectionID{Value: connID}, ClientID: "client"}
}

func session(v int64) *commands.SessionInfo {
	return &commands.SessionInfo{SessionID: &commands.SessionID{ConnectionID: connID, Value: v}}
}

func consumer(sess, v int64) *commands.ConsumerInfo {
	return &commands.ConsumerInfo{
		ConsumerID:  &commands.ConsumerID{ConnectionID: connID, SessionID: sess, Value: v},
		Destination: &commands.Queue{Name: "orders"},
	}
}

func durable(sess, v int64, name string) *commands.ConsumerInfo {
	c := consumer(sess, v)
	c.ConsumerID.SubscriptionName = name
	c.Destination = &commands.Topic{Name: "prices"}
	c.SubscriptionName = name
	return c
}

func producer(sess, v int64) *commands.ProducerInfo {
	return &commands.ProducerInfo{ProducerID: &commands.ProducerID{ConnectionID: connID, SessionID: sess, Value: v}}
}

func tempQueue(name string, op byte) *commands.DestinationInfo {
	return &commands.DestinationInfo{
		ConnectionID:  &commands.ConnectionID{Value: connID},
		Destination:   &commands.TempQueue{Name: name},
		OperationType: op,
	}
}

func remove(id commands.DataStructure) *commands.RemoveInfo {
	return &commands.RemoveInfo{ObjectID: id}
}

func types(cmds []commands.Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = commands.TypeName(c.DataStructureType())
	}
	return out
}

func TestTrackReplayOrder(t *testing.T) {
	tr := state.NewTracker(state.DefaultOptions())

	require.True(t, tr.Track(connection()))
	require.True(t, tr.Track(session(1)))
	require.True(t, tr.Track(tempQueue("tmp-1", commands.AddDestinationOperation)))
	require.True(t, tr.Track(consumer(1, 1)))
	require.True(t, tr.Track(producer(1, 1)))
	assert.False(t, tr.Track(&commands.KeepAliveInfo{}))
	assert.False(t, tr.Track(commands.NewTextMessage("not setup")))

	got := tr.ReplaySet()
	assert.Equal(t, []string{"ConnectionInfo", "SessionInfo", "DestinationInfo", "ConsumerInfo", "ProducerInfo"}, types(got))
	assert.True(t, got[0].(*commands.ConnectionInfo).FailoverReconnect)
	assert.Equal(t, 5, tr.Len())
}

func TestTrackReplaceKeepsOrder(t *testing.T) {
	tr := state.NewTracker(state.DefaultOptions())

	require.True(t, tr.Track(connection()))
	require.True(t, tr.Track(session(1)))
	require.True(t, tr.Track(consumer(1, 1)))

	updated := connection()
	updated.ClientID = "renamed"
	require.True(t, tr.Track(updated))
	require.True(t, tr.Track(session(1)))

	got := tr.ReplaySet()
	assert.Equal(t, []string{"ConnectionInfo", "SessionInfo", "ConsumerInfo"}, types(got))
	assert.Equal(t, "renamed", got[0].(*commands.ConnectionInfo).ClientID)
}

func TestReplayDoesNotMutateTracked(t *testing.T) {
	tr := state.NewTracker(state.DefaultOptions())
	ci := connection()
	tr.Track(ci)

	tr.ReplaySet()
	assert.False(t, ci.FailoverReconnect)
}

func TestTrackNetEffect(t *testing.T) {
	tr := state.NewTracker(state.DefaultOptions())
	tr.Track(connection())
	tr.Track(session(1))
	c1 := consumer(1, 1)
	tr.Track(c1)
	tr.Track(producer(1, 1))

	assert.True(t, tr.Track(remove(c1.ConsumerID)))
	assert.False(t, tr.Track(remove(c1.ConsumerID)), "already removed")
	assert.Equal(t, []string{"ConnectionInfo", "SessionInfo", "ProducerInfo"}, types(tr.ReplaySet()))

	// Re-adding appends in the new order.
	tr.Track(c1)
	assert.Equal(t, []string{"ConnectionInfo", "SessionInfo", "ProducerInfo", "ConsumerInfo"}, types(tr.ReplaySet()))

	tr.Track(tempQueue("tmp", commands.AddDestinationOperation))
	assert.True(t, tr.Track(tempQueue("tmp", commands.RemoveDestinationOperation)))
	assert.Equal(t, 4, tr.Len())
}

func TestTrackCascade(t *testing.T) {
	tr := state.NewTracker(state.DefaultOptions())
	tr.Track(connection())
	tr.Track(session(1))
	tr.Track(session(2))
	tr.Track(consumer(1, 1))
	tr.Track(producer(1, 2))
	tr.Track(consumer(2, 3))
	tr.Track(tempQueue("tmp", commands.AddDestinationOperation))

	require.True(t, tr.Track(remove(&commands.SessionID{ConnectionID: connID, Value: 1})))
	got := tr.ReplaySet()
	assert.Equal(t, []string{"ConnectionInfo", "SessionInfo", "ConsumerInfo", "DestinationInfo"}, types(got))
	assert.Equal(t, int64(2), got[1].(*commands.SessionInfo).SessionID.Value)

	require.True(t, tr.Track(remove(&commands.ConnectionID{Value: connID})))
	assert.Empty(t, tr.ReplaySet())
	assert.Equal(t, 0, tr.Len())
}

func TestTrackIgnoresIncomplete(t *testing.T) {
	tr := state.NewTracker(state.DefaultOptions())

	assert.False(t, tr.Track(&commands.ConnectionInfo{}))
	assert.False(t, tr.Track(&commands.SessionInfo{}))
	assert.False(t, tr.Track(&commands.ConsumerInfo{}))
	assert.False(t, tr.Track(&commands.ProducerInfo{}))
	assert.False(t, tr.Track(&commands.DestinationInfo{ConnectionID: &commands.ConnectionID{Value: connID}, Destination: &commands.Queue{Name: "q"}}))
	assert.False(t, tr.Track(remove(nil)))
	assert.False(t, tr.Track(remove((*commands.ConsumerID)(nil))))
	assert.False(t, tr.Track(remove(&commands.Queue{Name: "q"})))
	assert.False(t, tr.Track(&commands.ShutdownInfo{}))
	assert.Equal(t, 0, tr.Len())
}

func TestTrackShutdown(t *testing.T) {
	tr := state.NewTracker(state.DefaultOptions())
	tr.Track(connection())
	tr.Track(session(1))

	assert.True(t, tr.Track(&commands.ShutdownInfo{}))
	assert.Equal(t, 0, tr.Len())
}

func TestRestoreFlags(t *testing.T) {
	setup := func(tr *state.Tracker) {
		tr.Track(connection())
		tr.Track(session(1))
		tr.Track(tempQueue("tmp", commands.AddDestinationOperation))
		tr.Track(consumer(1, 1))
		tr.Track(durable(1, 2, "audit"))
		tr.Track(producer(1, 1))
	}

	cases := []struct {
		name   string
		modify func(*state.Options)
		want   []string
	}{
		{
			name:   "everything",
			modify: func(*state.Options) {},
			want:   []string{"ConnectionInfo", "SessionInfo", "DestinationInfo", "ConsumerInfo", "ConsumerInfo", "ProducerInfo"},
		},
		{
			name:   "no consumers keeps durable",
			modify: func(o *state.Options) { o.RestoreConsumers = false },
			want:   []string{"ConnectionInfo", "SessionInfo", "DestinationInfo", "ConsumerInfo", "ProducerInfo"},
		},
		{
			name:   "no producers",
			modify: func(o *state.Options) { o.RestoreProducers = false },
			want:   []string{"ConnectionInfo", "SessionInfo", "DestinationInfo", "ConsumerInfo", "ConsumerInfo"},
		},
		{
			name:   "no temp destinations",
			modify: func(o *state.Options) { o.RestoreTempDestinations = false },
			want:   []string{"ConnectionInfo", "SessionInfo", "ConsumerInfo", "ConsumerInfo", "ProducerInfo"},
		},
		{
			name:   "no sessions keeps durable and its session",
			modify: func(o *state.Options) { o.RestoreSessions = false },
			want:   []string{"ConnectionInfo", "SessionInfo", "DestinationInfo", "ConsumerInfo"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := state.DefaultOptions()
			tc.modify(&opts)
			tr := state.NewTracker(opts)
			setup(tr)
			assert.Equal(t, tc.want, types(tr.ReplaySet()))
		})
	}
}

func TestDurableSurvivesReconnect(t *testing.T) {
	opts := state.DefaultOptions()
	opts.RestoreConsumers = false
	tr := state.NewTracker(opts)

	tr.Track(connection())
	tr.Track(session(1))
	nonDurable := consumer(1, 1)
	sub := durable(1, 2, "audit")
	tr.Track(nonDurable)
	tr.Track(sub)

	var sent []commands.Command
	require.NoError(t, tr.Replay(context.Background(), func(cmd commands.Command) error {
		sent = append(sent, cmd)
		return nil
	}))

	var consumers []*commands.ConsumerInfo
	for _, cmd := range sent {
		if ci, ok := cmd.(*commands.ConsumerInfo); ok {
			consumers = append(consumers, ci)
		}
	}
	require.Len(t, consumers, 1)
	assert.Same(t, sub, consumers[0])
	assert.Equal(t, "audit", consumers[0].ConsumerID.SubscriptionName)
}

func TestReplayContinuesOnError(t *testing.T) {
	tr := state.NewTracker(state.DefaultOptions())
	tr.Track(connection())
	tr.Track(session(1))
	bad := consumer(1, 1)
	tr.Track(bad)
	tr.Track(producer(1, 1))

	refused := errors.New("refused")
	var sent []string
	err := tr.Replay(context.Background(), func(cmd commands.Command) error {
		if cmd == bad {
			return refused
		}
		sent = append(sent, commands.TypeName(cmd.DataStructureType()))
		return nil
	})

	var rerr *state.ReplayError
	require.ErrorAs(t, err, &rerr)
	assert.Same(t, bad, rerr.Command)
	assert.ErrorIs(t, err, refused)
	assert.Contains(t, rerr.Error(), "ConsumerInfo")
	assert.Equal(t, []string{"ConnectionInfo", "SessionInfo", "ProducerInfo"}, sent)
}

func TestReplayCancelled(t *testing.T) {
	tr := state.NewTracker(state.DefaultOptions())
	tr.Track(connection())
	tr.Track(session(1))

	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	err := tr.Replay(ctx, func(commands.Command) error {
		n++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
}

func TestTrackerConcurrent(t *testing.T) {
	tr := state.NewTracker(state.DefaultOptions())
	tr.Track(connection())

	var wg sync.WaitGroup
	for s := int64(1); s <= 8; s++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tr.Track(session(s))
			for v := int64(0); v < 50; v++ {
				tr.Track(consumer(s, v))
			}
		}()
		go func() {
			defer wg.Done()
			for range 50 {
				_ = tr.Replay(context.Background(), func(commands.Command) error { return nil })
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1+8+8*50, tr.Len())
}
