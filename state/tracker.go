// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package state records the connection, session, consumer, producer and
// temporary destination setup a client sent, so that it can be replayed on
// a new connection after failover.
package state

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/absmach/openwire/commands"
	"github.com/absmach/openwire/telemetry"
)

// Options select what is restored on replay. Connections are always
// restored. Durable consumers are restored regardless of RestoreConsumers,
// together with their session.
type Options struct {
	RestoreSessions         bool
	RestoreConsumers        bool
	RestoreProducers        bool
	RestoreTempDestinations bool

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// DefaultOptions restores everything.
func DefaultOptions() Options {
	return Options{
		RestoreSessions:         true,
		RestoreConsumers:        true,
		RestoreProducers:        true,
		RestoreTempDestinations: true,
	}
}

type kind uint8

const (
	kindConnection kind = iota
	kindSession
	kindConsumer
	kindProducer
	kindTempDestination
)

type entry struct {
	seq    uint64
	kind   kind
	key    string
	parent string
	cmd    commands.Command
}

// Tracker holds the net effect of the setup and teardown commands sent on a
// connection. It is safe for concurrent use.
type Tracker struct {
	opts Options

	mu      sync.Mutex
	seq     uint64
	entries map[string]*entry
}

// NewTracker returns an empty tracker.
func NewTracker(opts Options) *Tracker {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Tracker{
		opts:    opts,
		entries: make(map[string]*entry),
	}
}

// Track records cmd. It reports whether cmd changed the tracked state;
// commands that are not setup or teardown are ignored.
func (t *Tracker) Track(cmd commands.Command) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch c := cmd.(type) {
	case *commands.ConnectionInfo:
		if c.ConnectionID == nil {
			return false
		}
		t.add(kindConnection, connectionKey(c.ConnectionID), "", c)
	case *commands.SessionInfo:
		if c.SessionID == nil {
			return false
		}
		t.add(kindSession, sessionKey(c.SessionID), connectionKey(c.SessionID.Parent()), c)
	case *commands.ConsumerInfo:
		if c.ConsumerID == nil {
			return false
		}
		t.add(kindConsumer, consumerKey(c.ConsumerID), sessionKey(c.ConsumerID.Parent()), c)
	case *commands.ProducerInfo:
		if c.ProducerID == nil {
			return false
		}
		t.add(kindProducer, producerKey(c.ProducerID), sessionKey(c.ProducerID.Parent()), c)
	case *commands.DestinationInfo:
		if c.ConnectionID == nil || c.Destination == nil || !c.Destination.IsTemporary() {
			return false
		}
		key := destinationKey(c.ConnectionID, c.Destination)
		if c.OperationType == commands.RemoveDestinationOperation {
			return t.remove(key)
		}
		t.add(kindTempDestination, key, connectionKey(c.ConnectionID), c)
	case *commands.RemoveInfo:
		key, ok := objectKey(c.ObjectID)
		if !ok {
			return false
		}
		return t.remove(key)
	case *commands.ShutdownInfo:
		if len(t.entries) == 0 {
			return false
		}
		clear(t.entries)
	default:
		return false
	}
	return true
}

// add records a setup command. Re-adding a live entity replaces its command
// and keeps its place in the replay order.
func (t *Tracker) add(k kind, key, parent string, cmd commands.Command) {
	seq := t.seq + 1
	if e, ok := t.entries[key]; ok {
		seq = e.seq
	} else {
		t.seq = seq
	}
	t.entries[key] = &entry{seq: seq, kind: k, key: key, parent: parent, cmd: cmd}
}

// remove drops key and everything created under it.
func (t *Tracker) remove(key string) bool {
	if _, ok := t.entries[key]; !ok {
		return false
	}
	delete(t.entries, key)
	for k, e := range t.entries {
		if e.parent == key {
			t.remove(k)
		}
	}
	return true
}

// ReplaySet returns the commands Replay would send, in order.
func (t *Tracker) ReplaySet() []commands.Command {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.sorted()
	keep := t.selectForReplay(entries)

	var out []commands.Command
	for _, e := range entries {
		if !keep[e.key] {
			continue
		}
		cmd := e.cmd
		if ci, ok := cmd.(*commands.ConnectionInfo); ok {
			replayed := *ci
			replayed.FailoverReconnect = true
			cmd = &replayed
		}
		out = append(out, cmd)
	}
	return out
}

// Len returns the number of tracked entities.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Replay sends the replay set through send. A failed command does not stop
// the replay; every failure is returned as a *ReplayError joined into the
// result. Replay stops early when ctx is done.
func (t *Tracker) Replay(ctx context.Context, send func(commands.Command) error) error {
	var errs []error
	for _, cmd := range t.ReplaySet() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := send(cmd); err != nil {
			name := commands.TypeName(cmd.DataStructureType())
			t.opts.Logger.Warn("failed to replay command",
				slog.String("command", name),
				slog.String("error", err.Error()))
			t.opts.Metrics.RecordReplayError(name)
			errs = append(errs, &ReplayError{Command: cmd, Err: err})
		}
	}
	return errors.Join(errs...)
}

func (t *Tracker) sorted() []*entry {
	entries := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	return entries
}

func (t *Tracker) selectForReplay(entries []*entry) map[string]bool {
	keep := make(map[string]bool, len(entries))
	for _, e := range entries {
		switch e.kind {
		case kindConnection:
			keep[e.key] = true
		case kindSession:
			keep[e.key] = t.opts.RestoreSessions
		case kindConsumer:
			if ci := e.cmd.(*commands.ConsumerInfo); ci.Durable() {
				keep[e.key] = true
				keep[e.parent] = true
				continue
			}
			keep[e.key] = t.opts.RestoreSessions && t.opts.RestoreConsumers
		case kindProducer:
			keep[e.key] = t.opts.RestoreSessions && t.opts.RestoreProducers
		case kindTempDestination:
			keep[e.key] = t.opts.RestoreTempDestinations
		}
	}
	return keep
}

func connectionKey(id *commands.ConnectionID) string { return "connection:" + id.Value }
func sessionKey(id *commands.SessionID) string       { return "session:" + id.String() }
func consumerKey(id *commands.ConsumerID) string     { return "consumer:" + id.String() }
func producerKey(id *commands.ProducerID) string     { return "producer:" + id.String() }

func destinationKey(conn *commands.ConnectionID, d commands.Destination) string {
	return "destination:" + conn.Value + ":" + d.String()
}

func objectKey(id commands.DataStructure) (string, bool) {
	switch id := id.(type) {
	case *commands.ConnectionID:
		if id != nil {
			return connectionKey(id), true
		}
	case *commands.SessionID:
		if id != nil {
			return sessionKey(id), true
		}
	case *commands.ConsumerID:
		if id != nil {
			return consumerKey(id), true
		}
	case *commands.ProducerID:
		if id != nil {
			return producerKey(id), true
		}
	}
	return "", false
}
