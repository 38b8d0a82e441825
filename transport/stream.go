// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package transport reads and writes OpenWire frames over one broker
// connection.
//
// A Stream negotiates the wire format, then runs a read loop that decodes
// frames in order and hands them to a dispatcher goroutine. Frames that fail
// to decode are dropped; if the failed frame was a message dispatch whose
// consumer and message ids survived, the broker is sent a poison
// acknowledgment for that message. The stream gives up after a run of
// consecutive decode failures and reports a StreamError.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/openwire/codec"
	"github.com/absmach/openwire/commands"
	"github.com/absmach/openwire/telemetry"
	"golang.org/x/time/rate"
)

const readBufferSize = 64 * 1024

type event struct {
	cmd commands.Command
	err error
}

// Stream is a transport over a single connection.
type Stream struct {
	conn     net.Conn
	reader   *bufio.Reader
	addr     string
	opts     Options
	listener Listener
	logger   *slog.Logger
	metrics  *telemetry.Metrics

	wf  atomic.Pointer[codec.WireFormat]
	rec *recovery

	// Throttles corruption warnings; a desynchronized stream fails every frame.
	logLimit *rate.Limiter

	wmu       sync.Mutex
	lastWrite atomic.Int64

	events     chan event
	closing    chan struct{}
	readerDone chan struct{}
	started    atomic.Bool
	closeOnce  sync.Once
	failOnce   sync.Once

	errMu sync.Mutex
	err   error
}

// NewStream wraps conn. addr names the broker in errors and logs. The
// stream does nothing until Start.
func NewStream(conn net.Conn, addr string, opts Options, l Listener) *Stream {
	opts = opts.withDefaults()
	if l == nil {
		l = ListenerFuncs{}
	}
	if addr == "" && conn.RemoteAddr() != nil {
		addr = conn.RemoteAddr().String()
	}

	return &Stream{
		conn:       conn,
		reader:     bufio.NewReaderSize(conn, readBufferSize),
		addr:       addr,
		opts:       opts,
		listener:   l,
		logger:     opts.Logger.With("addr", addr),
		metrics:    opts.Metrics,
		rec:        newRecovery(opts.MaxConsecutiveErrors),
		logLimit:   rate.NewLimiter(rate.Every(time.Second), 5),
		events:     make(chan event, opts.DispatchBuffer),
		closing:    make(chan struct{}),
		readerDone: make(chan struct{}),
	}
}

// Start exchanges WireFormatInfo with the broker, switches to the
// negotiated options and starts reading. Cancelling ctx aborts the
// handshake; it has no effect once Start returned.
func (s *Stream) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		select {
		case <-s.closing:
			return ErrClosed
		default:
			return ErrAlreadyStarted
		}
	}

	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetDeadline(time.Unix(1, 0))
	})
	opts, err := s.handshake()
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
		}
		serr := &StreamError{Addr: s.addr, Err: fmt.Errorf("%w: %w", ErrHandshake, err)}
		s.fail(serr)
		close(s.readerDone)
		return serr
	}
	if err := s.conn.SetDeadline(time.Time{}); err != nil {
		serr := &StreamError{Addr: s.addr, Err: err}
		s.fail(serr)
		close(s.readerDone)
		return serr
	}

	s.logger.Debug("wire format negotiated",
		slog.Int("version", opts.Version),
		slog.Bool("tight", opts.TightEncoding),
		slog.Duration("max_inactivity", opts.MaxInactivityDuration))

	go s.dispatch()
	go s.readLoop(opts)
	if opts.MaxInactivityDuration > 0 {
		go s.keepAlive(opts.MaxInactivityDuration / 2)
	}
	s.metrics.RecordConnected()

	return nil
}

func (s *Stream) handshake() (codec.Options, error) {
	local := codec.NewWireFormatInfo(s.opts.Codec)
	loose := codec.New(codec.Options{MaxFrameSize: s.opts.Codec.MaxFrameSize})
	s.wf.Store(loose)

	frame, err := loose.Marshal(local)
	if err != nil {
		return codec.Options{}, err
	}
	if err := s.write(frame); err != nil {
		return codec.Options{}, err
	}

	cmd, err := loose.ReadCommand(s.reader)
	if err != nil {
		return codec.Options{}, err
	}
	remote, ok := cmd.(*commands.WireFormatInfo)
	if !ok {
		return codec.Options{}, fmt.Errorf("expected WireFormatInfo, got %s", commands.TypeName(cmd.DataStructureType()))
	}

	opts, err := codec.Negotiate(local, remote)
	if err != nil {
		return codec.Options{}, err
	}
	wf := codec.New(opts)
	s.wf.Store(wf)
	return wf.Options(), nil
}

func (s *Stream) readLoop(opts codec.Options) {
	defer close(s.readerDone)
	defer close(s.events)
	defer s.metrics.RecordDisconnected()

	wf := s.wf.Load()
	first := true
	for {
		if opts.MaxInactivityDuration > 0 {
			timeout := opts.MaxInactivityDuration
			if first {
				timeout += opts.MaxInactivityInitialDelay
			}
			_ = s.conn.SetReadDeadline(time.Now().Add(timeout))
		}
		first = false

		payload, err := wf.ReadFrame(s.reader)
		if err != nil {
			s.readFailed(err)
			return
		}
		s.metrics.RecordFrameReceived(len(payload) + 4)

		cmd, err := wf.Unmarshal(payload)
		if err != nil {
			s.handleDecodeError(err)
			if st, _ := s.rec.snapshot(); st == StateClosed {
				s.readFailed(ErrClosed)
				return
			}
			continue
		}
		s.rec.success()

		if ka, ok := cmd.(*commands.KeepAliveInfo); ok {
			if ka.ResponseRequired {
				ka.ResponseRequired = false
				if err := s.Oneway(ka); err != nil {
					s.logger.Debug("failed to answer keep alive", slog.String("error", err.Error()))
				}
			}
			continue
		}

		if !s.emit(event{cmd: cmd}) {
			return
		}
	}
}

// handleDecodeError applies the corruption policy to one failed frame.
func (s *Stream) handleDecodeError(err error) {
	var ack *commands.MessageAck
	var de *codec.DecodeError
	if errors.As(err, &de) {
		ack = poisonAck(de.Partial, err)
	}
	s.metrics.RecordDecodeError(ack != nil)

	if ack != nil {
		if serr := s.Oneway(ack); serr != nil {
			s.logger.Warn("failed to send poison ack",
				slog.String("message_id", ack.FirstMessageID.String()),
				slog.String("error", serr.Error()))
		} else {
			s.metrics.RecordPoisonAck()
		}
	}

	n, closed := s.rec.failure()
	if s.logLimit.Allow() {
		if ack != nil {
			s.logger.Warn("dropped corrupt message, sent poison ack",
				slog.String("consumer_id", ack.ConsumerID.String()),
				slog.String("message_id", ack.FirstMessageID.String()),
				slog.Int("consecutive", n),
				slog.String("error", err.Error()))
		} else {
			s.logger.Warn("dropped corrupt frame, no message id recovered",
				slog.Int("consecutive", n),
				slog.String("error", err.Error()))
		}
	}

	if closed {
		s.fail(&StreamError{
			Addr: s.addr,
			Err:  fmt.Errorf("%w (%d): %w", ErrTooManyDecodeErrors, n, err),
		})
	}
}

// readFailed ends the read loop. The listener hears about it unless the
// stream was closed on purpose.
func (s *Stream) readFailed(err error) {
	select {
	case <-s.closing:
		return
	default:
	}

	if s.Err() == nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		s.fail(&StreamError{Addr: s.addr, Err: err})
	}
	s.emit(event{err: s.Err()})
}

func (s *Stream) emit(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.closing:
		return false
	}
}

func (s *Stream) dispatch() {
	for ev := range s.events {
		select {
		case <-s.closing:
			continue
		default:
		}

		if ev.err != nil {
			s.listener.OnException(ev.err)
			continue
		}
		s.listener.OnCommand(ev.cmd)
	}
}

func (s *Stream) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closing:
			return
		case <-s.readerDone:
			return
		case <-ticker.C:
			if time.Since(time.Unix(0, s.lastWrite.Load())) < interval {
				continue
			}
			if err := s.Oneway(&commands.KeepAliveInfo{}); err != nil {
				return
			}
		}
	}
}

// fail records the first failure and tears the connection down.
func (s *Stream) fail(err error) {
	s.failOnce.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()

		s.rec.close()
		_ = s.conn.Close()

		reason := "io"
		if errors.Is(err, ErrTooManyDecodeErrors) {
			reason = "decode"
		}
		s.metrics.RecordStreamClosed(reason)
		s.logger.Warn("stream failed", slog.String("error", err.Error()))
	})
}

// Oneway marshals cmd and writes it. Writes are serialized; a write error
// ends the stream.
func (s *Stream) Oneway(cmd commands.Command) error {
	select {
	case <-s.closing:
		return ErrClosed
	default:
	}
	if err := s.Err(); err != nil {
		return err
	}

	wf := s.wf.Load()
	if wf == nil {
		return ErrNotStarted
	}
	frame, err := wf.Marshal(cmd)
	if err != nil {
		return err
	}
	return s.write(frame)
}

func (s *Stream) write(frame []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if s.opts.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	if _, err := s.conn.Write(frame); err != nil {
		select {
		case <-s.closing:
			return ErrClosed
		default:
		}
		serr := &StreamError{Addr: s.addr, Err: err}
		s.fail(serr)
		return serr
	}

	s.lastWrite.Store(time.Now().UnixNano())
	s.metrics.RecordFrameSent(len(frame))
	return nil
}

// Close stops the stream and waits for the read loop to exit. It may be
// called from a listener callback.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		s.rec.close()
		_ = s.conn.Close()
		if s.started.CompareAndSwap(false, true) {
			close(s.readerDone)
		}
	})
	<-s.readerDone
	return nil
}

// Err returns the failure that ended the stream.
func (s *Stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Done is closed when the read loop exits.
func (s *Stream) Done() <-chan struct{} { return s.readerDone }

// RemoteAddr returns the broker address.
func (s *Stream) RemoteAddr() string { return s.addr }

// State returns the corruption recovery state.
func (s *Stream) State() State {
	st, _ := s.rec.snapshot()
	return st
}

// ConsecutiveErrors returns the current run of decode failures.
func (s *Stream) ConsecutiveErrors() int {
	_, n := s.rec.snapshot()
	return n
}

// ResetErrors clears the decode failure counter.
func (s *Stream) ResetErrors() { s.rec.reset() }

// WireFormat returns the negotiated wire format, nil before Start.
func (s *Stream) WireFormat() *codec.WireFormat { return s.wf.Load() }
