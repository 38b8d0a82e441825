// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package client is a connection facade over the failover transport. It
// assigns command ids, correlates responses, creates sessions, consumers
// and producers, and keeps them registered with a state tracker so they
// survive a reconnect.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/absmach/openwire/commands"
	"github.com/absmach/openwire/failover"
	"github.com/absmach/openwire/state"
	"github.com/absmach/openwire/transport"
	"github.com/google/uuid"
)

// Consumer prefetch defaults.
const (
	DefaultQueuePrefetch = 1000
	DefaultTopicPrefetch = 32766
)

// Conn is a thread-safe OpenWire connection.
type Conn struct {
	opts    *Options
	logger  *slog.Logger
	state   *stateManager
	pending *pendingStore
	tracker *state.Tracker
	ft      *failover.Transport

	connID *commands.ConnectionID

	commandID  atomic.Int32
	sessionID  atomic.Int64
	consumerID atomic.Int64
	producerID atomic.Int64
	tempID     atomic.Int64
}

// Producer sends messages to a destination. Its sequence numbers form
// the message ids.
type Producer struct {
	Info *commands.ProducerInfo
	seq  atomic.Int64
}

// New creates a connection with the given options. Nothing is dialed
// until Start.
func New(opts *Options) (*Conn, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	c := &Conn{
		opts:    opts,
		logger:  opts.Logger.With(slog.String("client_id", opts.ClientID)),
		state:   newStateManager(),
		pending: newPendingStore(opts.MaxInflight),
		connID:  &commands.ConnectionID{Value: "ID:" + uuid.NewString()},
	}

	topts := opts.Tracker
	topts.Logger = opts.Logger
	topts.Metrics = opts.Metrics
	c.tracker = state.NewTracker(topts)

	fopts, err := opts.failoverOptions(c.tracker)
	if err != nil {
		return nil, err
	}
	ft, err := failover.New(fopts, transport.ListenerFuncs{
		Command:     c.onCommand,
		Exception:   c.onException,
		Interrupted: c.onInterrupted,
		Resumed:     c.onResumed,
	})
	if err != nil {
		return nil, err
	}
	c.ft = ft

	return c, nil
}

// Start connects to the broker and registers the connection. A Conn whose
// Start failed is closed and cannot be started again.
func (c *Conn) Start(ctx context.Context) error {
	if !c.state.transition(StateDisconnected, StateConnecting) {
		if c.state.isClosed() {
			return ErrClientClosed
		}
		return ErrAlreadyConnected
	}

	if err := c.ft.Start(ctx); err != nil {
		c.shutdown()
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	info := &commands.ConnectionInfo{
		ConnectionID:  c.connID,
		ClientID:      c.opts.ClientID,
		UserName:      c.opts.Username,
		Password:      c.opts.Password,
		FaultTolerant: len(c.ft.URIs()) > 1,
	}
	if _, err := c.request(ctx, info); err != nil {
		c.shutdown()
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	c.state.transitionFrom(StateConnected, StateConnecting)
	c.logger.Info("connection started",
		slog.String("connection_id", c.connID.Value),
		slog.String("broker", c.ft.RemoteAddr()))
	return nil
}

// Request sends cmd and waits for the broker's response. An
// ExceptionResponse is returned as a *commands.BrokerError. Without a
// deadline on ctx the request times out after RequestTimeout.
func (c *Conn) Request(ctx context.Context, cmd commands.Command) (commands.Command, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	return c.request(ctx, cmd)
}

func (c *Conn) request(ctx context.Context, cmd commands.Command) (commands.Command, error) {
	id := c.nextCommandID()
	cmd.SetCommandID(id)
	cmd.SetResponseRequired(true)

	op, err := c.pending.add(id)
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok && c.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}

	if err := c.ft.Oneway(cmd); err != nil {
		c.pending.remove(id)
		return nil, err
	}

	resp, err := op.wait(ctx)
	if err != nil {
		c.pending.remove(id)
		return resp, err
	}
	return resp, nil
}

// Oneway sends cmd without waiting for a response.
func (c *Conn) Oneway(cmd commands.Command) error {
	if err := c.usable(); err != nil {
		return err
	}
	cmd.SetCommandID(c.nextCommandID())
	cmd.SetResponseRequired(false)
	return c.ft.Oneway(cmd)
}

// CreateSession opens a session.
func (c *Conn) CreateSession(ctx context.Context) (*commands.SessionInfo, error) {
	info := &commands.SessionInfo{
		SessionID: &commands.SessionID{
			ConnectionID: c.connID.Value,
			Value:        c.sessionID.Add(1),
		},
	}
	if _, err := c.Request(ctx, info); err != nil {
		return nil, err
	}
	return info, nil
}

// CreateConsumer subscribes to dest within session. An empty selector
// receives everything.
func (c *Conn) CreateConsumer(ctx context.Context, session *commands.SessionID, dest commands.Destination, selector string) (*commands.ConsumerInfo, error) {
	info := c.consumerInfo(session, dest, selector)
	if _, err := c.Request(ctx, info); err != nil {
		return nil, err
	}
	return info, nil
}

// CreateDurableConsumer subscribes to topic under the subscription name.
// The broker keeps messages for the subscription while the connection is
// away, and the subscription is restored on every reconnect.
func (c *Conn) CreateDurableConsumer(ctx context.Context, session *commands.SessionID, topic *commands.Topic, name, selector string) (*commands.ConsumerInfo, error) {
	if name == "" {
		return nil, fmt.Errorf("durable subscription name cannot be empty")
	}

	info := c.consumerInfo(session, topic, selector)
	info.ConsumerID.SubscriptionName = name
	info.SubscriptionName = name
	if _, err := c.Request(ctx, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (c *Conn) consumerInfo(session *commands.SessionID, dest commands.Destination, selector string) *commands.ConsumerInfo {
	prefetch := int32(DefaultQueuePrefetch)
	if dest.IsTopic() {
		prefetch = DefaultTopicPrefetch
	}
	return &commands.ConsumerInfo{
		ConsumerID: &commands.ConsumerID{
			ConnectionID: session.ConnectionID,
			SessionID:    session.Value,
			Value:        c.consumerID.Add(1),
		},
		Destination:   dest,
		PrefetchSize:  prefetch,
		DispatchAsync: true,
		Selector:      selector,
	}
}

// Unsubscribe deletes a durable subscription on the broker. Its consumer
// must have been removed first.
func (c *Conn) Unsubscribe(ctx context.Context, name string) error {
	_, err := c.Request(ctx, &commands.RemoveSubscriptionInfo{
		ConnectionID:     c.connID,
		SubscriptionName: name,
		ClientID:         c.opts.ClientID,
	})
	return err
}

// CreateProducer registers a producer within session. A nil dest makes an
// anonymous producer; every message then names its destination.
func (c *Conn) CreateProducer(ctx context.Context, session *commands.SessionID, dest commands.Destination) (*Producer, error) {
	info := &commands.ProducerInfo{
		ProducerID: &commands.ProducerID{
			ConnectionID: session.ConnectionID,
			SessionID:    session.Value,
			Value:        c.producerID.Add(1),
		},
		Destination: dest,
	}
	if _, err := c.Request(ctx, info); err != nil {
		return nil, err
	}
	return &Producer{Info: info}, nil
}

// CreateTempQueue creates a queue that lives as long as the connection.
func (c *Conn) CreateTempQueue(ctx context.Context) (*commands.TempQueue, error) {
	dest := &commands.TempQueue{Name: fmt.Sprintf("%s:%d", c.connID.Value, c.tempID.Add(1))}
	_, err := c.Request(ctx, &commands.DestinationInfo{
		ConnectionID:  c.connID,
		Destination:   dest,
		OperationType: commands.AddDestinationOperation,
	})
	if err != nil {
		return nil, err
	}
	return dest, nil
}

// Remove closes the session, consumer or producer named by id.
func (c *Conn) Remove(ctx context.Context, id commands.DataStructure) error {
	_, err := c.Request(ctx, &commands.RemoveInfo{ObjectID: id})
	return err
}

// Send stamps msg with the producer's id, the next sequence number and
// the current time, then sends it. Persistent messages wait for the
// broker's receipt.
func (c *Conn) Send(ctx context.Context, p *Producer, msg *commands.Message) error {
	if msg.Destination == nil {
		msg.Destination = p.Info.Destination
	}
	if msg.Destination == nil {
		return fmt.Errorf("message has no destination")
	}

	msg.ProducerID = p.Info.ProducerID
	msg.MessageID = &commands.MessageID{
		ProducerID:         p.Info.ProducerID,
		ProducerSequenceID: p.seq.Add(1),
	}
	msg.Timestamp = time.Now().UnixMilli()

	if msg.Persistent {
		_, err := c.Request(ctx, msg)
		return err
	}
	return c.Oneway(msg)
}

// Ack acknowledges a single dispatched message.
func (c *Conn) Ack(md *commands.MessageDispatch, ackType commands.AckType) error {
	if md.Message == nil || md.Message.MessageID == nil {
		return ErrNoMessageID
	}
	id := md.Message.MessageID
	return c.Oneway(&commands.MessageAck{
		Destination:    md.Destination,
		ConsumerID:     md.ConsumerID,
		AckType:        ackType,
		FirstMessageID: id,
		LastMessageID:  id,
		MessageCount:   1,
	})
}

// Close removes the connection from the broker, announces the shutdown
// and stops reconnecting. ctx bounds the goodbye.
func (c *Conn) Close(ctx context.Context) error {
	prev := c.state.get()
	if !c.state.transitionFrom(StateClosing, StateConnected, StateReconnecting, StateConnecting, StateDisconnected) {
		return nil
	}

	if prev == StateConnected {
		if _, err := c.request(ctx, &commands.RemoveInfo{ObjectID: c.connID}); err != nil {
			c.logger.Debug("failed to remove connection", slog.String("error", err.Error()))
		}
		if err := c.ft.Oneway(&commands.ShutdownInfo{}); err != nil {
			c.logger.Debug("failed to send shutdown", slog.String("error", err.Error()))
		}
	}

	err := c.ft.Close()
	c.pending.clear(ErrClientClosed)
	c.state.set(StateClosed)
	c.logger.Info("connection closed")
	return err
}

// shutdown tears down after a failed Start.
func (c *Conn) shutdown() {
	_ = c.ft.Close()
	c.pending.clear(ErrClientClosed)
	c.state.set(StateClosed)
}

// State returns the connection state.
func (c *Conn) State() State {
	return c.state.get()
}

// ConnectionID returns the id the connection registers with.
func (c *Conn) ConnectionID() *commands.ConnectionID {
	return c.connID
}

// RemoteAddr returns the broker currently connected, empty while
// reconnecting.
func (c *Conn) RemoteAddr() string {
	return c.ft.RemoteAddr()
}

func (c *Conn) usable() error {
	if c.state.usable() {
		return nil
	}
	if c.state.isClosed() {
		return ErrClientClosed
	}
	return ErrNotConnected
}

func (c *Conn) nextCommandID() int32 {
	for {
		id := c.commandID.Add(1)
		if id > 0 {
			return id
		}
		c.commandID.CompareAndSwap(id, 0)
	}
}

func (c *Conn) onCommand(cmd commands.Command) {
	switch cmd := cmd.(type) {
	case *commands.ExceptionResponse:
		err := cmd.Exception
		if err == nil {
			err = &commands.BrokerError{Message: "request failed"}
		}
		if !c.pending.complete(cmd.CorrelationID, cmd, err) {
			c.logger.Debug("unsolicited exception response",
				slog.Int("correlation_id", int(cmd.CorrelationID)),
				slog.String("error", err.Error()))
		}
	case *commands.Response:
		if !c.pending.complete(cmd.CorrelationID, cmd, nil) {
			c.logger.Debug("unsolicited response", slog.Int("correlation_id", int(cmd.CorrelationID)))
		}
	case *commands.MessageDispatch:
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(cmd)
			return
		}
		c.logger.Debug("dropped message without handler", slog.String("consumer_id", cmd.ConsumerID.String()))
	case *commands.ConnectionError:
		if cmd.Exception != nil {
			c.exception(cmd.Exception)
		}
	default:
		if c.opts.OnCommand != nil {
			c.opts.OnCommand(cmd)
		}
	}
}

func (c *Conn) onException(err error) {
	var exhausted *failover.ExhaustedRetriesError
	if errors.As(err, &exhausted) {
		c.state.transitionFrom(StateDisconnected, StateConnected, StateReconnecting)
		c.pending.clear(fmt.Errorf("%w: %w", ErrConnectionLost, err))
		c.logger.Error("connection lost", slog.String("error", err.Error()))
	}
	c.exception(err)
}

func (c *Conn) exception(err error) {
	if c.opts.OnException != nil {
		c.opts.OnException(err)
	}
}

func (c *Conn) onInterrupted() {
	c.state.transition(StateConnected, StateReconnecting)
	if c.opts.OnInterrupted != nil {
		c.opts.OnInterrupted()
	}
}

func (c *Conn) onResumed() {
	c.state.transition(StateReconnecting, StateConnected)
	if c.opts.OnResumed != nil {
		c.opts.OnResumed()
	}
}
