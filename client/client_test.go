// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client_test

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/absmach/openwire/client"
	"github.com/absmach/openwire/commands"
	"github.com/absmach/openwire/failover"
	"github.com/absmach/openwire/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

func testOptions(uri string) *client.Options {
	opts := client.NewOptions().
		SetURI(uri).
		SetClientID("test-client").
		SetCredentials("user", "secret").
		SetRequestTimeout(2 * time.Second)
	opts.Failover.InitialReconnectDelay = 5 * time.Millisecond
	opts.Failover.MaxReconnectDelay = 20 * time.Millisecond
	opts.Failover.ConnectTimeout = 2 * time.Second
	opts.Failover.BreakerResetTimeout = 50 * time.Millisecond
	return opts
}

func start(t *testing.T, opts *client.Options) *client.Conn {
	t.Helper()

	c, err := client.New(opts)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func deadURI(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return "tcp://" + addr
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func notify(ch chan struct{}) func() {
	return func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func TestStartRegistersConnection(t *testing.T) {
	b := testutil.NewBroker(t)
	c := start(t, testOptions(b.URL()))
	conn := b.MustAccept()

	cmd, err := conn.WaitForType(waitTimeout, commands.ConnectionInfoType)
	require.NoError(t, err)
	info := cmd.(*commands.ConnectionInfo)

	assert.Equal(t, "test-client", info.ClientID)
	assert.Equal(t, "user", info.UserName)
	assert.Equal(t, "secret", info.Password)
	assert.True(t, info.ResponseRequired)
	assert.False(t, info.FaultTolerant)
	assert.Equal(t, c.ConnectionID().Value, info.ConnectionID.Value)
	assert.True(t, strings.HasPrefix(info.ConnectionID.Value, "ID:"))
	assert.Equal(t, client.StateConnected, c.State())
	assert.Equal(t, b.URL(), c.RemoteAddr())
}

func TestStartTwice(t *testing.T) {
	b := testutil.NewBroker(t)
	c := start(t, testOptions(b.URL()))

	assert.ErrorIs(t, c.Start(context.Background()), client.ErrAlreadyConnected)
}

func TestStartFails(t *testing.T) {
	opts := testOptions(deadURI(t))
	opts.Failover.StartupMaxReconnectAttempts = 1

	c, err := client.New(opts)
	require.NoError(t, err)

	err = c.Start(context.Background())
	require.ErrorIs(t, err, client.ErrConnectFailed)
	var exhausted *failover.ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)

	assert.Equal(t, client.StateClosed, c.State())
	assert.ErrorIs(t, c.Start(context.Background()), client.ErrClientClosed)
}

func TestNotStarted(t *testing.T) {
	c, err := client.New(testOptions("tcp://127.0.0.1:61616"))
	require.NoError(t, err)

	_, err = c.CreateSession(context.Background())
	assert.ErrorIs(t, err, client.ErrNotConnected)
	assert.ErrorIs(t, c.Oneway(&commands.ShutdownInfo{}), client.ErrNotConnected)
}

func TestNewInvalidURI(t *testing.T) {
	_, err := client.New(testOptions("failover:()"))
	assert.ErrorIs(t, err, failover.ErrNoURIs)
}

func TestRequestCorrelation(t *testing.T) {
	b := testutil.NewBroker(t)
	c := start(t, testOptions(b.URL()))
	conn := b.MustAccept()

	sess, err := c.CreateSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, c.ConnectionID().Value, sess.SessionID.ConnectionID)

	cmd, err := conn.WaitForType(waitTimeout, commands.SessionInfoType)
	require.NoError(t, err)
	got := cmd.(*commands.SessionInfo)
	assert.Equal(t, sess.SessionID.String(), got.SessionID.String())
	assert.True(t, got.ResponseRequired)
	assert.Positive(t, got.ID)
}

func TestRequestExceptionResponse(t *testing.T) {
	b := testutil.NewBroker(t, testutil.WithHandler(func(bc *testutil.BrokerConn, cmd commands.Command) bool {
		if cmd.DataStructureType() != commands.SessionInfoType {
			return false
		}
		_ = bc.Send(&commands.ExceptionResponse{
			CorrelationID: cmd.CommandID(),
			Exception: &commands.BrokerError{
				ExceptionClass: "javax.jms.JMSSecurityException",
				Message:        "not authorized",
			},
		})
		return true
	}))
	c := start(t, testOptions(b.URL()))

	_, err := c.CreateSession(context.Background())
	var be *commands.BrokerError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "javax.jms.JMSSecurityException", be.ExceptionClass)
	assert.Equal(t, "not authorized", be.Message)
}

func TestRequestTimeout(t *testing.T) {
	b := testutil.NewBroker(t, testutil.WithHandler(func(_ *testutil.BrokerConn, cmd commands.Command) bool {
		return cmd.DataStructureType() == commands.SessionInfoType
	}))
	c := start(t, testOptions(b.URL()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.CreateSession(ctx)
	assert.ErrorIs(t, err, client.ErrTimeout)
}

func TestCreateConsumers(t *testing.T) {
	b := testutil.NewBroker(t)
	c := start(t, testOptions(b.URL()))
	conn := b.MustAccept()

	sess, err := c.CreateSession(context.Background())
	require.NoError(t, err)

	queue, err := c.CreateConsumer(context.Background(), sess.SessionID, &commands.Queue{Name: "orders"}, "")
	require.NoError(t, err)
	assert.False(t, queue.Durable())
	assert.EqualValues(t, client.DefaultQueuePrefetch, queue.PrefetchSize)

	durable, err := c.CreateDurableConsumer(context.Background(), sess.SessionID, &commands.Topic{Name: "prices"}, "audit", "region = 'EU'")
	require.NoError(t, err)
	assert.True(t, durable.Durable())
	assert.Equal(t, "audit", durable.ConsumerID.SubscriptionName)
	assert.EqualValues(t, client.DefaultTopicPrefetch, durable.PrefetchSize)
	assert.NotEqual(t, queue.ConsumerID.Value, durable.ConsumerID.Value)

	_, err = c.CreateDurableConsumer(context.Background(), sess.SessionID, &commands.Topic{Name: "prices"}, "", "")
	assert.Error(t, err)

	cmd, err := conn.WaitFor(waitTimeout, func(cmd commands.Command) bool {
		ci, ok := cmd.(*commands.ConsumerInfo)
		return ok && ci.SubscriptionName == "audit"
	})
	require.NoError(t, err)
	assert.Equal(t, "region = 'EU'", cmd.(*commands.ConsumerInfo).Selector)
}

func TestSendStampsMessages(t *testing.T) {
	b := testutil.NewBroker(t)
	c := start(t, testOptions(b.URL()))
	conn := b.MustAccept()

	sess, err := c.CreateSession(context.Background())
	require.NoError(t, err)
	p, err := c.CreateProducer(context.Background(), sess.SessionID, &commands.Queue{Name: "orders"})
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), p, commands.NewTextMessage("first")))
	persistent := commands.NewTextMessage("second")
	persistent.Persistent = true
	require.NoError(t, c.Send(context.Background(), p, persistent))

	isMessage := func(cmd commands.Command) bool { return commands.IsMessageType(cmd.DataStructureType()) }
	for i, seq := range []int64{1, 2} {
		cmd, err := conn.WaitFor(waitTimeout, isMessage)
		require.NoError(t, err)
		msg := cmd.(*commands.Message)
		assert.Equal(t, p.Info.ProducerID.String(), msg.ProducerID.String())
		assert.Equal(t, seq, msg.MessageID.ProducerSequenceID)
		assert.Equal(t, "queue://orders", msg.Destination.String())
		assert.Positive(t, msg.Timestamp)
		assert.Equal(t, i == 1, msg.ResponseRequired)
	}
}

func TestSendWithoutDestination(t *testing.T) {
	b := testutil.NewBroker(t)
	c := start(t, testOptions(b.URL()))

	sess, err := c.CreateSession(context.Background())
	require.NoError(t, err)
	p, err := c.CreateProducer(context.Background(), sess.SessionID, nil)
	require.NoError(t, err)

	assert.Error(t, c.Send(context.Background(), p, commands.NewBytesMessage([]byte{1})))

	msg := commands.NewBytesMessage([]byte{1})
	msg.Destination = &commands.Topic{Name: "events"}
	assert.NoError(t, c.Send(context.Background(), p, msg))
}

func TestDispatchAndAck(t *testing.T) {
	b := testutil.NewBroker(t)
	msgs := make(chan *commands.MessageDispatch, 1)
	opts := testOptions(b.URL()).SetOnMessage(func(md *commands.MessageDispatch) { msgs <- md })
	c := start(t, opts)
	conn := b.MustAccept()

	sess, err := c.CreateSession(context.Background())
	require.NoError(t, err)
	cons, err := c.CreateConsumer(context.Background(), sess.SessionID, &commands.Queue{Name: "orders"}, "")
	require.NoError(t, err)

	producer := &commands.ProducerID{ConnectionID: "ID:remote", SessionID: 1, Value: 1}
	msg := commands.NewTextMessage("hello")
	msg.ProducerID = producer
	msg.Destination = &commands.Queue{Name: "orders"}
	msg.MessageID = &commands.MessageID{ProducerID: producer, ProducerSequenceID: 42}
	require.NoError(t, conn.Send(&commands.MessageDispatch{
		ConsumerID:  cons.ConsumerID,
		Destination: &commands.Queue{Name: "orders"},
		Message:     msg,
	}))

	var md *commands.MessageDispatch
	select {
	case md = <-msgs:
	case <-time.After(waitTimeout):
		t.Fatal("message not dispatched")
	}
	text, err := md.Message.Text()
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	require.NoError(t, c.Ack(md, commands.StandardAck))
	cmd, err := conn.WaitForType(waitTimeout, commands.MessageAckType)
	require.NoError(t, err)
	ack := cmd.(*commands.MessageAck)
	assert.Equal(t, commands.StandardAck, ack.AckType)
	assert.Equal(t, cons.ConsumerID.String(), ack.ConsumerID.String())
	assert.Equal(t, int64(42), ack.FirstMessageID.ProducerSequenceID)
	assert.EqualValues(t, 1, ack.MessageCount)

	assert.ErrorIs(t, c.Ack(&commands.MessageDispatch{}, commands.StandardAck), client.ErrNoMessageID)
}

func TestDispatchWithoutHandler(t *testing.T) {
	b := testutil.NewBroker(t)
	c := start(t, testOptions(b.URL()))
	conn := b.MustAccept()

	require.NoError(t, conn.Send(&commands.MessageDispatch{Message: commands.NewTextMessage("x")}))
	require.NoError(t, conn.Send(&commands.MessageDispatch{
		ConsumerID: &commands.ConsumerID{ConnectionID: "ID:remote", SessionID: 1, Value: 1},
	}))

	sess, err := c.CreateSession(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, sess.SessionID)
	assert.Equal(t, client.StateConnected, c.State())
}

func TestUnsolicitedCommands(t *testing.T) {
	b := testutil.NewBroker(t)
	cmds := make(chan commands.Command, 1)
	errs := make(chan error, 1)
	opts := testOptions(b.URL()).
		SetOnCommand(func(cmd commands.Command) { cmds <- cmd }).
		SetOnException(func(err error) { errs <- err })
	start(t, opts)
	conn := b.MustAccept()

	require.NoError(t, conn.Send(&commands.BrokerInfo{BrokerName: "east"}))
	select {
	case cmd := <-cmds:
		assert.Equal(t, "east", cmd.(*commands.BrokerInfo).BrokerName)
	case <-time.After(waitTimeout):
		t.Fatal("broker info not delivered")
	}

	require.NoError(t, conn.Send(&commands.ConnectionError{
		Exception: &commands.BrokerError{ExceptionClass: "java.io.IOException", Message: "overloaded"},
	}))
	select {
	case err := <-errs:
		var be *commands.BrokerError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, "overloaded", be.Message)
	case <-time.After(waitTimeout):
		t.Fatal("connection error not delivered")
	}
}

func TestCloseSendsGoodbye(t *testing.T) {
	b := testutil.NewBroker(t)
	c := start(t, testOptions(b.URL()))
	conn := b.MustAccept()

	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, client.StateClosed, c.State())

	cmd, err := conn.WaitForType(waitTimeout, commands.RemoveInfoType)
	require.NoError(t, err)
	id, ok := cmd.(*commands.RemoveInfo).ObjectID.(*commands.ConnectionID)
	require.True(t, ok)
	assert.Equal(t, c.ConnectionID().Value, id.Value)

	_, err = conn.WaitForType(waitTimeout, commands.ShutdownInfoType)
	require.NoError(t, err)

	_, err = c.CreateSession(context.Background())
	assert.ErrorIs(t, err, client.ErrClientClosed)
	assert.NoError(t, c.Close(context.Background()))
}

func TestReconnectRestoresState(t *testing.T) {
	primary := testutil.NewBroker(t)
	backup := testutil.NewBroker(t)

	interrupted := make(chan struct{}, 1)
	resumed := make(chan struct{}, 1)
	opts := testOptions("failover:(" + primary.URL() + "," + backup.URL() + ")").
		SetOnInterrupted(notify(interrupted)).
		SetOnResumed(notify(resumed))
	opts.Tracker.RestoreConsumers = false
	c := start(t, opts)
	primary.MustAccept()

	sess, err := c.CreateSession(context.Background())
	require.NoError(t, err)
	_, err = c.CreateConsumer(context.Background(), sess.SessionID, &commands.Queue{Name: "orders"}, "")
	require.NoError(t, err)
	durable, err := c.CreateDurableConsumer(context.Background(), sess.SessionID, &commands.Topic{Name: "prices"}, "audit", "")
	require.NoError(t, err)

	primary.Close()
	waitSignal(t, interrupted, "interruption")

	conn := backup.MustAccept()
	waitSignal(t, resumed, "resumption")
	assert.Equal(t, client.StateConnected, c.State())
	assert.Equal(t, backup.URL(), c.RemoteAddr())

	var replayed []commands.Command
	for _, typ := range []byte{commands.ConnectionInfoType, commands.SessionInfoType, commands.ConsumerInfoType} {
		cmd, err := conn.WaitForType(waitTimeout, typ)
		require.NoError(t, err)
		replayed = append(replayed, cmd)
	}

	info := replayed[0].(*commands.ConnectionInfo)
	assert.True(t, info.FailoverReconnect)
	assert.True(t, info.FaultTolerant)
	assert.Equal(t, sess.SessionID.String(), replayed[1].(*commands.SessionInfo).SessionID.String())
	assert.Equal(t, durable.ConsumerID.String(), replayed[2].(*commands.ConsumerInfo).ConsumerID.String())

	for _, cmd := range conn.Received() {
		if ci, ok := cmd.(*commands.ConsumerInfo); ok {
			assert.True(t, ci.Durable(), "non-durable consumer replayed")
		}
	}

	_, err = c.CreateSession(context.Background())
	assert.NoError(t, err)
}

func TestReconnectExhausted(t *testing.T) {
	b := testutil.NewBroker(t)
	errs := make(chan error, 4)
	opts := testOptions(b.URL()).SetOnException(func(err error) { errs <- err })
	opts.Failover.MaxReconnectAttempts = 1
	c := start(t, opts)
	b.MustAccept()

	b.Close()

	select {
	case err := <-errs:
		var exhausted *failover.ExhaustedRetriesError
		require.True(t, errors.As(err, &exhausted), "unexpected error %v", err)
	case <-time.After(waitTimeout):
		t.Fatal("exhaustion not reported")
	}
	assert.Equal(t, client.StateDisconnected, c.State())

	_, err := c.CreateSession(context.Background())
	assert.ErrorIs(t, err, client.ErrNotConnected)
}
