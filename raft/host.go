package raft

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arrowquorum/quorumlock/logger"
	"github.com/arrowquorum/quorumlock/types"
)

// Host is a single-process reference implementation of the runtime a
// replicated lock depends on, not a Raft cluster: it has no peers, no
// elections, no log replication, and no durable write-ahead log. What it
// does provide, faithfully, is the contract the lock core depends on:
//
//   - a monotonically increasing commit Index assigned to every proposed
//     command,
//   - one serialized execution context shared by command application,
//     session events, and timer fires,
//   - a Clock, a Scheduler, and a SessionRegistry passed to the state
//     machine at construction.
//
// Host exists for tests, the CLI, and the demo gRPC server. Running it
// in place of a real consensus group means a single process is the
// entire "cluster" — correct for demonstrating the lock FSM, not a
// substitute for replication or durability.
type Host struct {
	clock     Clock
	scheduler *timerWheel
	sessions  *InMemorySessionRegistry
	sm        StateMachine
	logger    logger.Logger

	jobs chan func()
	quit chan struct{}

	nextIndex atomic.Uint64

	mu          sync.Mutex
	lastApplied types.Index
}

// NewHost constructs a Host and starts its serialized executor. newSM is
// called once, after the Host's Clock/Scheduler/SessionRegistry exist, so
// the state machine can be wired against them (they form a cycle: the
// state machine needs the scheduler, the scheduler's fires need to be
// submitted onto the Host's executor).
func NewHost(clock Clock, log logger.Logger, newSM func(Clock, Scheduler, SessionRegistry) StateMachine) *Host {
	if clock == nil {
		clock = NewStandardClock()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	h := &Host{
		clock:    clock,
		sessions: NewInMemorySessionRegistry(),
		logger:   log.WithComponent("host"),
		jobs:     make(chan func(), 256),
		quit:     make(chan struct{}),
	}
	h.scheduler = newTimerWheel(clock, h.submit)
	h.sm = newSM(clock, h.scheduler, h.sessions)
	go h.run()
	return h
}

// submit enqueues fn to run on the single serialized executor goroutine.
// Used both by Propose/session-event callers and by the Scheduler's
// timer-fire callbacks, which is what gives timer fires the same
// serialization guarantee as command processing.
func (h *Host) submit(fn func()) {
	select {
	case h.jobs <- fn:
	case <-h.quit:
	}
}

func (h *Host) run() {
	for {
		select {
		case fn := <-h.jobs:
			fn()
		case <-h.quit:
			return
		}
	}
}

// Close stops the executor. Pending jobs are dropped.
func (h *Host) Close() {
	close(h.quit)
}

// OpenSession registers a new active session.
func (h *Host) OpenSession(id types.SessionID) {
	h.sessions.Open(id)
}

// Propose assigns the next commit index to command and applies it on the
// serialized executor, returning the state machine's response. It blocks
// until the command has been fully applied or ctx is done.
func (h *Host) Propose(ctx context.Context, session types.SessionID, command []byte) (types.Index, []byte, error) {
	type result struct {
		index types.Index
		resp  []byte
		err   error
	}
	done := make(chan result, 1)

	h.submit(func() {
		index := types.Index(h.nextIndex.Add(1))
		resp, err := h.sm.Apply(ctx, index, session, command)
		h.mu.Lock()
		h.lastApplied = index
		h.mu.Unlock()
		done <- result{index, resp, err}
	})

	select {
	case r := <-done:
		return r.index, r.resp, r.err
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// CloseSession delivers onClose(session) on the serialized executor,
// then marks the session inactive in the registry. Order matters: the
// release algorithm must run while the session is still considered
// active for promotion-skip decisions made *during* this call, and only
// the session being released itself is known-departing.
func (h *Host) CloseSession(ctx context.Context, id types.SessionID) error {
	done := make(chan error, 1)
	h.submit(func() {
		err := h.sm.HandleSessionClose(ctx, id)
		h.sessions.Close(id)
		done <- err
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExpireSession delivers onExpire(session) on the serialized executor,
// then marks the session inactive.
func (h *Host) ExpireSession(ctx context.Context, id types.SessionID) error {
	done := make(chan error, 1)
	h.submit(func() {
		err := h.sm.HandleSessionExpire(ctx, id)
		h.sessions.Close(id)
		done <- err
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot requests a snapshot from the state machine on the serialized
// executor, so it cannot race a concurrent Propose. If the state machine
// reports index 0, the Host's own last applied index is returned instead.
func (h *Host) Snapshot(ctx context.Context) (types.Index, []byte, error) {
	type result struct {
		index types.Index
		data  []byte
		err   error
	}
	done := make(chan result, 1)
	h.submit(func() {
		index, data, err := h.sm.Snapshot(ctx)
		if index == 0 {
			h.mu.Lock()
			index = h.lastApplied
			h.mu.Unlock()
		}
		done <- result{index, data, err}
	})
	select {
	case r := <-done:
		return r.index, r.data, r.err
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// RestoreSnapshot installs a snapshot on the serialized executor and
// fast-forwards the Host's own index counter so subsequently proposed
// commands continue from lastIncludedIndex.
func (h *Host) RestoreSnapshot(ctx context.Context, lastIncludedIndex types.Index, data []byte) error {
	done := make(chan error, 1)
	h.submit(func() {
		err := h.sm.RestoreSnapshot(ctx, lastIncludedIndex, data)
		if err == nil {
			for {
				cur := h.nextIndex.Load()
				if uint64(lastIncludedIndex) <= cur {
					break
				}
				if h.nextIndex.CompareAndSwap(cur, uint64(lastIncludedIndex)) {
					break
				}
			}
			h.mu.Lock()
			h.lastApplied = lastIncludedIndex
			h.mu.Unlock()
		}
		done <- err
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastApplied returns the highest index applied or restored so far.
func (h *Host) LastApplied() types.Index {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastApplied
}
