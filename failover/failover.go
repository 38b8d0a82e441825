// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package failover keeps an OpenWire connection alive across broker
// failures.
//
// A Transport owns one stream at a time. When the stream fails, whether from
// an I/O error or a run of corrupt frames, the transport walks the candidate
// brokers with backoff until one accepts, replays the recorded connection
// state on it and resends requests that were never answered. The
// application only sees a TransportInterrupted and TransportResumed pair.
package failover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/openwire/commands"
	"github.com/absmach/openwire/telemetry"
	"github.com/absmach/openwire/transport"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ transport.Transport = (*Transport)(nil)

type reconnectRequest struct {
	gen       uint64
	err       error
	preferred string
}

// Transport is a transport.Transport that reconnects on failure.
type Transport struct {
	opts     Options
	listener transport.Listener
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer

	ctx      context.Context
	cancel   context.CancelFunc
	started  atomic.Bool
	requests chan reconnectRequest
	done     chan struct{}
	doneOnce sync.Once

	// gen numbers every dial; activeGen is the generation of the current
	// stream. Anything reported by an older stream is ignored.
	gen       atomic.Uint64
	activeGen atomic.Uint64

	// sendMu orders sends against restore: a restore holds it exclusively
	// while replaying, so no send races the replay on the new stream.
	sendMu sync.RWMutex

	// connected is closed on entering StateConnected, interrupted on
	// leaving it.
	mu          sync.Mutex
	state       State
	current     transport.Transport
	currentURI  string
	connected   chan struct{}
	interrupted chan struct{}
	err         error
	uris        []string
	breakers    map[string]*gobreaker.CircuitBreaker

	pmu     sync.Mutex
	pending map[int32]commands.Command
}

// New returns an idle failover transport delivering to l.
func New(opts Options, l transport.Listener) (*Transport, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	if l == nil {
		l = transport.ListenerFuncs{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		opts:        opts,
		listener:    l,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		tracer:      opts.Tracer,
		ctx:         ctx,
		cancel:      cancel,
		requests:    make(chan reconnectRequest, 16),
		done:        make(chan struct{}),
		connected:   make(chan struct{}),
		interrupted: make(chan struct{}),
		uris:        slices.Clone(opts.URIs),
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
		pending:     make(map[int32]commands.Command),
	}, nil
}

// Start connects to the first reachable candidate, retrying per
// StartupMaxReconnectAttempts. Cancelling ctx abandons the attempt and
// leaves the transport failed.
func (t *Transport) Start(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(t.ctx, cancel)
	defer stop()

	tr, uri, gen, err := t.connect(ctx, true, "")
	if err != nil {
		if t.ctx.Err() != nil {
			return ErrClosed
		}
		t.terminate(err)
		return err
	}
	if !t.install(tr, uri, gen) {
		return ErrClosed
	}
	t.logger.Info("connected to broker", slog.String("uri", uri))

	go t.supervise()
	return nil
}

func (t *Transport) supervise() {
	for {
		select {
		case <-t.ctx.Done():
			return
		case req := <-t.requests:
			if req.gen != t.activeGen.Load() {
				continue
			}
			if !t.reconnect(req) {
				return
			}
		}
	}
}

// reconnect replaces the current stream. It returns false once the
// transport is closed or failed.
func (t *Transport) reconnect(req reconnectRequest) bool {
	begin := time.Now()

	t.mu.Lock()
	next, ok := t.state.next(eventTransportFailed)
	if !ok {
		alive := t.state != StateClosed && t.state != StateFailed
		t.mu.Unlock()
		return alive
	}
	t.state = next
	old, oldURI := t.current, t.currentURI
	t.current = nil
	t.connected = make(chan struct{})
	close(t.interrupted)
	t.mu.Unlock()

	if req.err != nil {
		t.logger.Warn("transport failed, reconnecting",
			slog.String("uri", oldURI),
			slog.String("error", req.err.Error()))
	} else {
		t.logger.Info("reconnecting on broker request",
			slog.String("uri", oldURI),
			slog.String("reconnect_to", req.preferred))
	}
	if old != nil {
		_ = old.Close()
	}
	t.listener.TransportInterrupted()

	tr, uri, gen, err := t.connect(t.ctx, false, req.preferred)
	if err != nil {
		if t.ctx.Err() != nil {
			return false
		}
		t.logger.Error("giving up on reconnecting", slog.String("error", err.Error()))
		t.terminate(err)
		t.listener.OnException(err)
		return false
	}
	if !t.restore(tr, uri, gen) {
		return false
	}

	t.metrics.RecordReconnectDuration(time.Since(begin))
	t.logger.Info("reconnected to broker",
		slog.String("uri", uri),
		slog.Duration("took", time.Since(begin)))
	t.listener.TransportResumed()
	return true
}

// connect runs passes over the candidates until one accepts or the attempt
// limit is reached.
func (t *Transport) connect(ctx context.Context, startup bool, preferred string) (transport.Transport, string, uint64, error) {
	limit := t.opts.attemptLimit(startup)
	delay := t.opts.InitialReconnectDelay

	attempt := 1
	for {
		tr, uri, gen, err := t.pass(ctx, attempt, preferred)
		if err == nil {
			return tr, uri, gen, nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return nil, "", 0, cerr
		}

		// A pass that dialed nothing is not an attempt; wait for a breaker
		// to half-open instead.
		wait := t.opts.BreakerResetTimeout
		blocked := errors.Is(err, errBreakersOpen)
		if !blocked {
			if limit >= 0 && attempt > limit {
				return nil, "", 0, &ExhaustedRetriesError{Attempts: attempt, Last: err}
			}
			attempt++
			wait = delay
		}

		t.logger.Debug("no broker reachable, backing off",
			slog.Int("attempt", attempt),
			slog.Bool("breakers_open", blocked),
			slog.Duration("delay", wait),
			slog.String("error", err.Error()))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, "", 0, ctx.Err()
		case <-timer.C:
		}
		if !blocked {
			delay = t.opts.nextDelay(delay)
		}
		preferred = ""
	}
}

// pass tries every candidate once.
func (t *Transport) pass(ctx context.Context, attempt int, preferred string) (transport.Transport, string, uint64, error) {
	ctx, span := t.tracer.Start(ctx, "openwire.failover.connect",
		trace.WithAttributes(attribute.Int("openwire.attempt", attempt)))
	defer span.End()

	var errs []error
	rejected := 0
	for _, uri := range t.candidates(preferred) {
		tr, gen, err := t.dial(ctx, uri)
		if err == nil {
			span.SetAttributes(attribute.String("openwire.broker.uri", uri))
			return tr, uri, gen, nil
		}
		if ctx.Err() != nil {
			return nil, "", 0, ctx.Err()
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			rejected++
		}
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	switch {
	case err == nil:
		err = ErrNoURIs
	case rejected == len(errs):
		err = fmt.Errorf("%w: %w", errBreakersOpen, err)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "no broker reachable")
	return nil, "", 0, err
}

func (t *Transport) dial(ctx context.Context, uri string) (transport.Transport, uint64, error) {
	gen := t.gen.Add(1)
	l := &link{t: t, gen: gen}

	res, err := t.breaker(uri).Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, t.opts.ConnectTimeout)
		defer cancel()
		tr, err := t.opts.Dial(ctx, uri, l)
		if err != nil {
			return nil, err
		}
		return tr, nil
	})
	t.metrics.RecordReconnectAttempt(uri, err)
	if err != nil {
		t.logger.Debug("broker unreachable", slog.String("uri", uri), slog.String("error", err.Error()))
		return nil, 0, fmt.Errorf("%s: %w", uri, err)
	}
	return res.(transport.Transport), gen, nil
}

func (t *Transport) breaker(uri string) *gobreaker.CircuitBreaker {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cb, ok := t.breakers[uri]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        uri,
		MaxRequests: 1,
		Timeout:     t.opts.BreakerResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(t.opts.BreakerFailureThreshold)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			t.logger.Warn("broker circuit breaker state changed",
				slog.String("uri", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	t.breakers[uri] = cb
	return cb
}

// candidates returns the URIs for one pass, preferred first.
func (t *Transport) candidates(preferred string) []string {
	t.mu.Lock()
	uris := slices.Clone(t.uris)
	t.mu.Unlock()

	if t.opts.Randomize {
		rand.Shuffle(len(uris), func(i, j int) { uris[i], uris[j] = uris[j], uris[i] })
	}
	if preferred != "" {
		uris = slices.DeleteFunc(uris, func(u string) bool { return u == preferred })
		uris = append([]string{preferred}, uris...)
	}
	return uris
}

// restore brings a fresh stream up to date and makes it current.
func (t *Transport) restore(tr transport.Transport, uri string, gen uint64) bool {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	tr.ResetErrors()
	if t.opts.Tracker != nil {
		if err := t.opts.Tracker.Replay(t.ctx, tr.Oneway); err != nil {
			t.reportReplay(err)
		}
	}
	for _, cmd := range t.unanswered() {
		if t.ctx.Err() != nil {
			break
		}
		if err := tr.Oneway(cmd); err != nil {
			t.logger.Warn("failed to resend request",
				slog.String("command", commands.TypeName(cmd.DataStructureType())),
				slog.Int("command_id", int(cmd.CommandID())),
				slog.String("error", err.Error()))
		}
	}
	return t.install(tr, uri, gen)
}

func (t *Transport) reportReplay(err error) {
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		if errors.Is(e, context.Canceled) {
			continue
		}
		t.listener.OnException(e)
	}
}

func (t *Transport) install(tr transport.Transport, uri string, gen uint64) bool {
	t.mu.Lock()
	next, ok := t.state.next(eventConnected)
	if !ok {
		t.mu.Unlock()
		_ = tr.Close()
		return false
	}
	t.state = next
	t.current = tr
	t.currentURI = uri
	t.activeGen.Store(gen)
	t.interrupted = make(chan struct{})
	close(t.connected)
	t.mu.Unlock()
	return true
}

func (t *Transport) terminate(err error) {
	t.mu.Lock()
	if next, ok := t.state.next(eventRetriesExhausted); ok {
		t.state = next
		t.err = err
	}
	t.mu.Unlock()

	t.clearPending()
	t.doneOnce.Do(func() { close(t.done) })
}

func (t *Transport) requestReconnect(req reconnectRequest) {
	select {
	case t.requests <- req:
	case <-t.ctx.Done():
	}
}

func (t *Transport) onCommand(gen uint64, cmd commands.Command) {
	if gen < t.activeGen.Load() {
		return
	}

	switch c := cmd.(type) {
	case commands.Correlated:
		t.answered(c.Correlation())
	case *commands.ConnectionControl:
		t.onControl(gen, c)
	}
	t.listener.OnCommand(cmd)
}

func (t *Transport) onControl(gen uint64, cc *commands.ConnectionControl) {
	if !t.opts.UpdateURIsSupported {
		return
	}
	if cc.ConnectedBrokers != "" {
		t.addURIs(strings.Split(cc.ConnectedBrokers, ",")...)
	}
	if cc.RebalanceConnection && cc.ReconnectTo != "" {
		t.addURIs(cc.ReconnectTo)
		if cc.ReconnectTo != t.RemoteAddr() {
			go t.requestReconnect(reconnectRequest{gen: gen, preferred: cc.ReconnectTo})
		}
	}
}

func (t *Transport) addURIs(uris ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, u := range uris {
		u = strings.TrimSpace(u)
		if u == "" || slices.Contains(t.uris, u) {
			continue
		}
		t.uris = append(t.uris, u)
		t.logger.Info("added broker uri", slog.String("uri", u))
	}
}

// Oneway sends cmd on the current stream. While reconnecting it waits up to
// SendTimeout. Setup commands are recorded in the tracker and requests are
// kept until answered, so both survive a reconnect.
func (t *Transport) Oneway(cmd commands.Command) error {
	if !t.started.Load() {
		return ErrNotStarted
	}

	var deadline <-chan time.Time
	if t.opts.SendTimeout > 0 {
		timer := time.NewTimer(t.opts.SendTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var failed transport.Transport
	for {
		tr, err := t.waitConnected(deadline, failed)
		if err != nil {
			return err
		}
		if done, err := t.send(tr, cmd); done {
			return err
		}
		failed = tr
	}
}

// send reports done once cmd was written, or will be replayed or resent
// after the reconnect.
func (t *Transport) send(tr transport.Transport, cmd commands.Command) (bool, error) {
	t.sendMu.RLock()
	defer t.sendMu.RUnlock()

	t.mu.Lock()
	active := t.current == tr
	t.mu.Unlock()
	if !active {
		return false, nil
	}

	tracked := t.opts.Tracker != nil && t.opts.Tracker.Track(cmd)
	required := cmd.IsResponseRequired()
	if required {
		t.pmu.Lock()
		t.pending[cmd.CommandID()] = cmd
		t.pmu.Unlock()
	}

	err := tr.Oneway(cmd)
	if err == nil {
		return true, nil
	}

	var serr *transport.StreamError
	if !errors.As(err, &serr) && !errors.Is(err, transport.ErrClosed) {
		if required {
			t.answered(cmd.CommandID())
		}
		return true, err
	}
	return tracked || required, nil
}

// waitConnected returns the current stream once connected. A stream equal
// to failed is not handed out again.
func (t *Transport) waitConnected(deadline <-chan time.Time, failed transport.Transport) (transport.Transport, error) {
	for {
		t.mu.Lock()
		st, tr, ch, err := t.state, t.current, t.connected, t.err
		if st == StateConnected && tr == failed {
			st, ch = StateReconnecting, t.interrupted
		}
		t.mu.Unlock()

		switch st {
		case StateConnected:
			return tr, nil
		case StateFailed:
			return nil, err
		case StateClosed:
			return nil, ErrClosed
		}

		select {
		case <-ch:
		case <-t.done:
		case <-deadline:
			return nil, ErrSendTimeout
		}
	}
}

func (t *Transport) answered(id int32) {
	t.pmu.Lock()
	delete(t.pending, id)
	t.pmu.Unlock()
}

// unanswered returns the pending requests to resend, oldest first. Setup
// commands are left to the tracker replay.
func (t *Transport) unanswered() []commands.Command {
	t.pmu.Lock()
	defer t.pmu.Unlock()

	out := make([]commands.Command, 0, len(t.pending))
	for _, cmd := range t.pending {
		if t.opts.Tracker != nil && isSetup(cmd) {
			delete(t.pending, cmd.CommandID())
			continue
		}
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CommandID() < out[j].CommandID() })
	return out
}

func (t *Transport) clearPending() {
	t.pmu.Lock()
	clear(t.pending)
	t.pmu.Unlock()
}

func isSetup(cmd commands.Command) bool {
	switch cmd.(type) {
	case *commands.ConnectionInfo, *commands.SessionInfo, *commands.ConsumerInfo,
		*commands.ProducerInfo, *commands.DestinationInfo, *commands.RemoveInfo:
		return true
	}
	return false
}

// Close stops reconnecting and closes the current stream. It does not wait
// for an in-flight reconnect to notice.
func (t *Transport) Close() error {
	t.mu.Lock()
	next, ok := t.state.next(eventClose)
	if !ok {
		t.mu.Unlock()
		return nil
	}
	t.state = next
	cur := t.current
	t.current = nil
	t.mu.Unlock()

	t.cancel()
	t.clearPending()
	t.doneOnce.Do(func() { close(t.done) })
	if cur != nil {
		return cur.Close()
	}
	return nil
}

// State returns the failover state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the error that failed the transport.
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done is closed once the transport failed or was closed.
func (t *Transport) Done() <-chan struct{} { return t.done }

// RemoteAddr returns the URI of the connected broker, empty while
// disconnected.
func (t *Transport) RemoteAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return ""
	}
	return t.currentURI
}

// URIs returns the current candidates.
func (t *Transport) URIs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.uris)
}

// ResetErrors clears the decode error counter of the current stream.
func (t *Transport) ResetErrors() {
	t.mu.Lock()
	cur := t.current
	t.mu.Unlock()
	if cur != nil {
		cur.ResetErrors()
	}
}

// link is the listener of one dialed stream.
type link struct {
	t   *Transport
	gen uint64
}

func (l *link) OnCommand(cmd commands.Command) { l.t.onCommand(l.gen, cmd) }

func (l *link) OnException(err error) {
	l.t.requestReconnect(reconnectRequest{gen: l.gen, err: err})
}

func (l *link) TransportInterrupted() {}
func (l *link) TransportResumed()     {}
