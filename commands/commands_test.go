// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package commands_test

import (
	"bytes"
	"testing"

	"github.com/absmach/openwire/commands"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDStrings(t *testing.T) {
	p := &commands.ProducerID{ConnectionID: "ID:host-1", SessionID: 2, Value: 3}
	assert.Equal(t, "ID:host-1:2:3", p.String())
	assert.Equal(t, &commands.SessionID{ConnectionID: "ID:host-1", Value: 2}, p.Parent())

	c := &commands.ConsumerID{ConnectionID: "ID:host-1", SessionID: 2, Value: 4}
	assert.Equal(t, "ID:host-1:2:4", c.String())
	assert.False(t, c.Durable())

	c.SubscriptionName = "audit"
	assert.True(t, c.Durable())

	var nilID *commands.ConsumerID
	assert.False(t, nilID.Durable())
	assert.Equal(t, "<nil>", nilID.String())
	assert.Equal(t, "<nil>", (*commands.SessionID)(nil).String())
	assert.Equal(t, "<nil>", (*commands.ProducerID)(nil).String())
	assert.Equal(t, "<nil>", (*commands.MessageID)(nil).String())

	m := &commands.MessageID{ProducerID: p, ProducerSequenceID: 9}
	assert.True(t, m.Valid())
	assert.Equal(t, "ID:host-1:2:3:9", m.String())
	assert.False(t, (&commands.MessageID{ProducerSequenceID: 9}).Valid())
}

func TestParseDestination(t *testing.T) {
	cases := []struct {
		in    string
		want  commands.Destination
		topic bool
		temp  bool
		err   bool
	}{
		{in: "queue://orders", want: &commands.Queue{Name: "orders"}},
		{in: "orders", want: &commands.Queue{Name: "orders"}},
		{in: "topic://prices", want: &commands.Topic{Name: "prices"}, topic: true},
		{in: "temp-queue://ID:1", want: &commands.TempQueue{Name: "ID:1"}, temp: true},
		{in: "temp-topic://ID:2", want: &commands.TempTopic{Name: "ID:2"}, topic: true, temp: true},
		{in: "queue://", err: true},
		{in: "", err: true},
		{in: "amqp://x", err: true},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := commands.ParseDestination(tc.in)
			if tc.err {
				assert.ErrorIs(t, err, commands.ErrInvalidDestination)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.topic, got.IsTopic())
			assert.Equal(t, tc.temp, got.IsTemporary())

			again, err := commands.ParseDestination(got.String())
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestTextMessage(t *testing.T) {
	m := commands.NewTextMessage("hello")
	assert.Equal(t, commands.TextMessageType, m.DataStructureType())

	s, err := m.Text()
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	long := string(bytes.Repeat([]byte("compressible "), 200))
	require.NoError(t, m.SetText(long, true))
	assert.True(t, m.Compressed)
	assert.Less(t, len(m.Content), len(long))

	s, err = m.Text()
	require.NoError(t, err)
	assert.Equal(t, long, s)

	_, err = commands.NewBytesMessage([]byte{1}).Text()
	assert.ErrorIs(t, err, commands.ErrNotTextMessage)

	bad := &commands.Message{Kind: commands.TextMessageType, Content: []byte{0, 0, 0, 9, 'x'}}
	_, err = bad.Text()
	assert.ErrorIs(t, err, commands.ErrMalformedText)
}

func TestBodyInflateLimit(t *testing.T) {
	m := commands.NewBytesMessage(nil)
	body := bytes.Repeat([]byte{0}, 1<<20)
	require.NoError(t, m.SetContent(body, true))
	assert.Less(t, len(m.Content), 16<<10)

	got, err := m.BodyLimit(1 << 20)
	require.NoError(t, err)
	assert.Len(t, got, 1<<20)

	_, err = m.BodyLimit(1<<20 - 1)
	assert.ErrorIs(t, err, commands.ErrBodyTooLarge)

	_, err = m.BodyLimit(4 << 10)
	assert.ErrorIs(t, err, commands.ErrBodyTooLarge)

	got, err = m.Body()
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestNewMessage(t *testing.T) {
	m, err := commands.NewMessage(commands.MapMessageType)
	require.NoError(t, err)
	assert.Equal(t, commands.MapMessageType, m.DataStructureType())

	_, err = commands.NewMessage(commands.QueueType)
	assert.ErrorIs(t, err, commands.ErrUnknownMsgKind)

	assert.Equal(t, commands.MessageType, (&commands.Message{}).DataStructureType())
}

func TestPoisonAck(t *testing.T) {
	consumer := &commands.ConsumerID{ConnectionID: "c", SessionID: 1, Value: 1}
	id := &commands.MessageID{ProducerID: &commands.ProducerID{ConnectionID: "p"}, ProducerSequenceID: 5}
	ack := commands.NewPoisonAck(consumer, nil, id, &commands.BrokerError{Message: "bad"})

	assert.Equal(t, commands.PoisonAck, ack.AckType)
	assert.Equal(t, byte(1), byte(ack.AckType))
	assert.Same(t, id, ack.FirstMessageID)
	assert.Same(t, id, ack.LastMessageID)
	assert.Equal(t, int32(1), ack.MessageCount)
	assert.Equal(t, "poison", ack.AckType.String())
}
