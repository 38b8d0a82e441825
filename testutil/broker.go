// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides an in-process OpenWire broker for tests. It
// speaks just enough of the protocol to negotiate the wire format, record
// what clients send, answer requests and inject arbitrary frames.
package testutil

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/absmach/openwire/codec"
	"github.com/absmach/openwire/commands"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

// Default timeouts.
const (
	DefaultAcceptTimeout = 5 * time.Second
	DefaultWaitTimeout   = 5 * time.Second
)

// Errors.
var (
	ErrTimeout      = errors.New("operation timed out")
	ErrConnClosed   = errors.New("connection closed")
	ErrNotWireInfo  = errors.New("client did not open with WireFormatInfo")
	ErrBrokerClosed = errors.New("broker closed")
)

// Handler sees every command a client sends. Returning true suppresses the
// automatic Response.
type Handler func(c *BrokerConn, cmd commands.Command) bool

// Option configures a Broker.
type Option func(*Broker)

// WithWireFormat sets the wire format the broker advertises.
func WithWireFormat(opts codec.Options) Option {
	return func(b *Broker) { b.wire = opts }
}

// WithoutAutoRespond stops the broker from answering response-required
// commands.
func WithoutAutoRespond() Option {
	return func(b *Broker) { b.autoRespond = false }
}

// WithHandler installs h.
func WithHandler(h Handler) Option {
	return func(b *Broker) { b.handler = h }
}

// WithWebSocket also serves the protocol over websocket.
func WithWebSocket() Option {
	return func(b *Broker) { b.ws = true }
}

// Broker is a fake OpenWire broker listening on loopback.
type Broker struct {
	t           testing.TB
	ln          net.Listener
	wsLn        net.Listener
	httpSrv     *http.Server
	wire        codec.Options
	autoRespond bool
	handler     Handler
	ws          bool

	accepted chan *BrokerConn
	done     chan struct{}
	wg       sync.WaitGroup

	mu     sync.Mutex
	conns  []*BrokerConn
	closed bool
}

// NewBroker starts a broker on a random loopback port. It is closed when
// the test ends.
func NewBroker(t testing.TB, opts ...Option) *Broker {
	t.Helper()

	b := &Broker{
		t: t,
		wire: codec.Options{
			Version:      codec.MaxVersion,
			MaxFrameSize: codec.DefaultMaxFrameSize,
		},
		autoRespond: true,
		accepted:    make(chan *BrokerConn, 64),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	b.ln = ln

	b.wg.Add(1)
	go b.acceptLoop()

	if b.ws {
		wsLn, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		b.wsLn = wsLn
		b.httpSrv = &http.Server{
			Handler: websocket.Server{Handler: b.handleWS},
		}
		go func() { _ = b.httpSrv.Serve(wsLn) }()
	}

	t.Cleanup(b.Close)
	return b
}

// URL returns the tcp:// URI of the broker.
func (b *Broker) URL() string {
	return "tcp://" + b.ln.Addr().String()
}

// WSURL returns the ws:// URI of the broker, empty without WithWebSocket.
func (b *Broker) WSURL() string {
	if b.wsLn == nil {
		return ""
	}
	return "ws://" + b.wsLn.Addr().String() + "/"
}

func (b *Broker) acceptLoop() {
	defer b.wg.Done()

	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.serve(conn)
		}()
	}
}

func (b *Broker) handleWS(ws *websocket.Conn) {
	ws.PayloadType = websocket.BinaryFrame
	b.serve(ws)
}

// serve blocks until the connection is gone.
func (b *Broker) serve(conn net.Conn) {
	c, err := b.handshake(conn)
	if err != nil {
		_ = conn.Close()
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = conn.Close()
		return
	}
	b.conns = append(b.conns, c)
	b.mu.Unlock()

	select {
	case b.accepted <- c:
	case <-b.done:
	}
	c.readLoop()
}

func (b *Broker) handshake(conn net.Conn) (*BrokerConn, error) {
	local := codec.NewWireFormatInfo(b.wire)
	loose := codec.New(codec.Options{MaxFrameSize: b.wire.MaxFrameSize})

	_ = conn.SetDeadline(time.Now().Add(DefaultAcceptTimeout))
	defer conn.SetDeadline(time.Time{})

	if err := loose.WriteFrame(conn, local); err != nil {
		return nil, err
	}
	r := bufio.NewReader(conn)
	cmd, err := loose.ReadCommand(r)
	if err != nil {
		return nil, err
	}
	remote, ok := cmd.(*commands.WireFormatInfo)
	if !ok {
		return nil, ErrNotWireInfo
	}
	opts, err := codec.Negotiate(local, remote)
	if err != nil {
		return nil, err
	}

	return &BrokerConn{
		broker:   b,
		conn:     conn,
		r:        r,
		wf:       codec.New(opts),
		Remote:   remote,
		received: make(chan commands.Command, 1024),
		done:     make(chan struct{}),
	}, nil
}

// Accept waits for the next client to complete the handshake.
func (b *Broker) Accept(timeout time.Duration) (*BrokerConn, error) {
	select {
	case c := <-b.accepted:
		return c, nil
	case <-b.done:
		return nil, ErrBrokerClosed
	case <-time.After(timeout):
		return nil, fmt.Errorf("accept: %w", ErrTimeout)
	}
}

// MustAccept is Accept with DefaultAcceptTimeout that fails the test on
// error.
func (b *Broker) MustAccept() *BrokerConn {
	b.t.Helper()

	c, err := b.Accept(DefaultAcceptTimeout)
	require.NoError(b.t, err)
	return c
}

// Conns returns every connection accepted so far.
func (b *Broker) Conns() []*BrokerConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*BrokerConn(nil), b.conns...)
}

// Close stops listening and drops every connection.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	conns := b.conns
	b.mu.Unlock()

	close(b.done)
	_ = b.ln.Close()
	if b.httpSrv != nil {
		_ = b.httpSrv.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	b.wg.Wait()
}

// BrokerConn is the broker side of one client connection.
type BrokerConn struct {
	broker *Broker
	conn   net.Conn
	r      *bufio.Reader
	wf     *codec.WireFormat
	wmu    sync.Mutex

	// Remote is the WireFormatInfo the client opened with.
	Remote *commands.WireFormatInfo

	received chan commands.Command
	done     chan struct{}

	mu      sync.Mutex
	history []commands.Command
	once    sync.Once
}

func (c *BrokerConn) readLoop() {
	defer c.Close()

	for {
		cmd, err := c.wf.ReadCommand(c.r)
		if err != nil {
			return
		}

		c.mu.Lock()
		c.history = append(c.history, cmd)
		c.mu.Unlock()

		handled := false
		if h := c.broker.handler; h != nil {
			handled = h(c, cmd)
		}
		if !handled && c.broker.autoRespond && cmd.IsResponseRequired() {
			_ = c.Send(&commands.Response{CorrelationID: cmd.CommandID()})
		}

		select {
		case c.received <- cmd:
		default:
		}
	}
}

// Options returns the negotiated wire format options.
func (c *BrokerConn) Options() codec.Options {
	return c.wf.Options()
}

// Frame marshals cmd with the negotiated wire format.
func (c *BrokerConn) Frame(cmd commands.Command) ([]byte, error) {
	return c.wf.Marshal(cmd)
}

// Send writes cmd to the client.
func (c *BrokerConn) Send(cmd commands.Command) error {
	frame, err := c.wf.Marshal(cmd)
	if err != nil {
		return err
	}
	return c.SendRaw(frame)
}

// SendRaw writes b to the client as is.
func (c *BrokerConn) SendRaw(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	_, err := c.conn.Write(b)
	return err
}

// Next returns the next command received from the client.
func (c *BrokerConn) Next(timeout time.Duration) (commands.Command, error) {
	select {
	case cmd := <-c.received:
		return cmd, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("next command: %w", ErrTimeout)
	}
}

// WaitFor skips received commands until match accepts one.
func (c *BrokerConn) WaitFor(timeout time.Duration, match func(commands.Command) bool) (commands.Command, error) {
	deadline := time.After(timeout)
	for {
		select {
		case cmd := <-c.received:
			if match(cmd) {
				return cmd, nil
			}
		case <-deadline:
			return nil, fmt.Errorf("wait for command: %w", ErrTimeout)
		}
	}
}

// WaitForType waits for a command with type tag t.
func (c *BrokerConn) WaitForType(timeout time.Duration, t byte) (commands.Command, error) {
	return c.WaitFor(timeout, func(cmd commands.Command) bool {
		return cmd.DataStructureType() == t
	})
}

// Received returns every command received so far, in order.
func (c *BrokerConn) Received() []commands.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]commands.Command(nil), c.history...)
}

// Close drops the connection without any goodbye.
func (c *BrokerConn) Close() {
	c.once.Do(func() {
		_ = c.conn.Close()
		close(c.done)
	})
}

// Done is closed once the connection is gone.
func (c *BrokerConn) Done() <-chan struct{} {
	return c.done
}

// TruncatePayload returns a copy of frame keeping only the first keep
// payload bytes, with the size prefix rewritten to match. The frame
// boundary stays intact while the command inside no longer decodes.
func TruncatePayload(frame []byte, keep int) []byte {
	out := make([]byte, 4+keep)
	binary.BigEndian.PutUint32(out, uint32(keep))
	copy(out[4:], frame[4:4+keep])
	return out
}

// DropTail returns a copy of frame without its last n payload bytes.
func DropTail(frame []byte, n int) []byte {
	return TruncatePayload(frame, len(frame)-4-n)
}
