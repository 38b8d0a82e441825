// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/absmach/openwire/commands"
)

// pendingOp is a request waiting for its response.
type pendingOp struct {
	id      int32
	done    chan struct{}
	resp    commands.Command
	err     error
	created time.Time
}

// pendingStore correlates responses with the requests that asked for them.
type pendingStore struct {
	mu      sync.Mutex
	pending map[int32]*pendingOp
	maxSize int
}

func newPendingStore(maxSize int) *pendingStore {
	return &pendingStore{
		pending: make(map[int32]*pendingOp),
		maxSize: maxSize,
	}
}

// add registers a request by command id.
func (ps *pendingStore) add(id int32) (*pendingOp, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.maxSize > 0 && len(ps.pending) >= ps.maxSize {
		return nil, ErrMaxInflight
	}

	op := &pendingOp{
		id:      id,
		done:    make(chan struct{}),
		created: time.Now(),
	}
	ps.pending[id] = op
	return op, nil
}

// complete hands resp to the request id. It reports whether the request
// was still waiting.
func (ps *pendingStore) complete(id int32, resp commands.Command, err error) bool {
	ps.mu.Lock()
	op, ok := ps.pending[id]
	if ok {
		delete(ps.pending, id)
	}
	ps.mu.Unlock()

	if !ok {
		return false
	}
	op.resp = resp
	op.err = err
	close(op.done)
	return true
}

// remove drops a request without completing it.
func (ps *pendingStore) remove(id int32) {
	ps.mu.Lock()
	delete(ps.pending, id)
	ps.mu.Unlock()
}

// clear fails every waiting request with err.
func (ps *pendingStore) clear(err error) {
	ps.mu.Lock()
	pending := ps.pending
	ps.pending = make(map[int32]*pendingOp)
	ps.mu.Unlock()

	for _, op := range pending {
		op.err = err
		close(op.done)
	}
}

func (ps *pendingStore) count() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.pending)
}

// wait blocks until the response arrives or ctx is done.
func (op *pendingOp) wait(ctx context.Context) (commands.Command, error) {
	select {
	case <-op.done:
		return op.resp, op.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}
