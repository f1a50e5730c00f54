// Package lock implements a single resource's replicated, session-aware,
// strict-FIFO mutual-exclusion lock: exactly one holder at a time, queued
// waiters served in arrival order, and automatic release when the holder
// or a waiter's session disconnects or is judged to have expired.
//
// A State is driven by exactly one caller at a time, always on the host
// runtime's serialized executor — it holds no internal lock of its own.
package lock

import (
	"time"

	"github.com/arrowquorum/quorumlock/logger"
	"github.com/arrowquorum/quorumlock/raft"
	"github.com/arrowquorum/quorumlock/types"
)

// State is one resource's lock state machine: the current holder, if any,
// and the FIFO queue of sessions waiting to acquire it.
type State struct {
	resource types.ResourceID
	clock    raft.Clock
	sessions raft.SessionRegistry
	sink     raft.EventSink
	timers   *TimerManager
	log      logger.Logger

	holder *types.LockHolder
	queue  waiterQueue
}

// NewState returns an empty State for resource.
func NewState(
	resource types.ResourceID,
	clock raft.Clock,
	sessions raft.SessionRegistry,
	scheduler raft.Scheduler,
	sink raft.EventSink,
	log logger.Logger,
) *State {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &State{
		resource: resource,
		clock:    clock,
		sessions: sessions,
		sink:     sink,
		timers:   NewTimerManager(scheduler),
		log:      log.WithComponent("lock"),
	}
}

// Lock applies a committed lock request at index, on behalf of session.
// It never returns an acquisition result directly: every outcome is
// reported through the event sink's OnLock, exactly once per request that
// resolves. An immediate grant or a try-lock denial is reported at once; a
// request left pending in the queue emits nothing until it is promoted or
// its deadline passes.
//
//   - Timeout == 0: try once. Acquire if free, otherwise deny immediately.
//   - Timeout > 0: queue the request and arm a timer; if nothing has
//     dequeued it by the deadline, deny it and drop it from the queue.
//   - Timeout < 0: queue the request with no deadline.
func (s *State) Lock(index types.Index, session types.SessionID, req types.LockRequest) {
	if s.holder == nil {
		s.holder = &types.LockHolder{ID: req.ID, Index: index, Session: session}
		s.emitLock(session, types.LockResponse{Index: index, ID: req.ID, Acquired: true})
		return
	}

	switch {
	case req.Timeout == 0:
		s.emitLock(session, types.LockResponse{Index: index, ID: req.ID, Acquired: false})
	case req.Timeout > 0:
		holder := types.LockHolder{
			ID:      req.ID,
			Index:   index,
			Session: session,
			Expire:  s.clock.Now().UnixMilli() + req.Timeout,
		}
		s.queue.enqueue(holder)
		s.timers.Schedule(index, time.Duration(req.Timeout)*time.Millisecond, func() {
			s.onTimeout(holder)
		})
	default: // wait forever
		s.queue.enqueue(types.LockHolder{ID: req.ID, Index: index, Session: session})
	}
}

// onTimeout fires when a bounded wait's deadline passes without the
// waiter having been dequeued by an Unlock or a ReleaseSession. It is a
// no-op if the waiter is already gone by the time it runs, which can
// happen when a fire races a cancellation that was already in flight.
func (s *State) onTimeout(expected types.LockHolder) {
	s.timers.Forget(expected.Index)
	if _, ok := s.queue.removeByIndex(expected.Index); !ok {
		return
	}
	if sess, found := s.sessions.Lookup(expected.Session); found && sess.Active() {
		s.emitLock(expected.Session, types.LockResponse{
			Index:    expected.Index,
			ID:       expected.ID,
			Acquired: false,
		})
	}
}

// Unlock applies a committed unlock request at index, on behalf of
// session. req.Index == 0 means "whatever I currently hold or have
// queued"; a nonzero req.Index must match the holder's acquisition index
// to have any effect, so a stale unlock referring to an index that has
// already been superseded is a no-op.
//
// If the caller is not the current holder, Unlock instead looks for a
// queued waiter belonging to this same session with a matching req.ID and
// rescinds it — a client can only cancel its own pending wait, never
// another session's.
func (s *State) Unlock(index types.Index, session types.SessionID, req types.UnlockRequest) types.UnlockResponse {
	if s.holder != nil && (req.Index == 0 || req.Index == s.holder.Index) {
		if s.holder.Session != session || s.holder.ID != req.ID {
			if removed, ok := s.queue.removeBySessionAndID(session, req.ID); ok {
				s.timers.Cancel(removed.Index)
			}
			return types.UnlockResponse{Index: index}
		}
		s.promote(index)
	}
	return types.UnlockResponse{Index: index}
}

// promote releases the current holder and advances through the queue,
// skipping any waiter whose session is no longer active, until it finds
// one to promote or exhausts the queue.
//
// respIndexOverride controls which index value the promoted waiter's
// LockResponse carries: an Unlock promotes using the unlocking command's
// own index, while a session release promotes using the waiter's own
// acquisition index. Pass 0 to use the waiter's own index — a real commit
// index is never zero.
func (s *State) promote(respIndexOverride types.Index) {
	s.holder = nil
	for {
		next, ok := s.queue.dequeue()
		if !ok {
			return
		}
		s.timers.Cancel(next.Index)

		sess, found := s.sessions.Lookup(next.Session)
		if !found || !sess.Active() {
			continue
		}

		respIndex := next.Index
		if respIndexOverride != 0 {
			respIndex = respIndexOverride
		}
		s.holder = &types.LockHolder{ID: next.ID, Index: next.Index, Session: next.Session}
		s.emitLock(next.Session, types.LockResponse{Index: respIndex, ID: next.ID, Acquired: true})
		return
	}
}

// IsLocked applies a committed isLocked query at index. req.Index == 0
// asks "is anything held"; a nonzero req.Index asks "is the lock held by
// the acquisition that committed at this specific index."
func (s *State) IsLocked(index types.Index, req types.IsLockedRequest) types.IsLockedResponse {
	locked := s.holder != nil && (req.Index == 0 || s.holder.Index == req.Index)
	return types.IsLockedResponse{Index: index, Locked: locked}
}

// ReleaseSession drops everything session held or was waiting on. Called
// identically whether the session closed normally or was judged expired.
func (s *State) ReleaseSession(session types.SessionID) {
	for _, h := range s.queue.removeBySession(session) {
		s.timers.Cancel(h.Index)
	}
	if s.holder != nil && s.holder.Session == session {
		s.promote(0)
	}
}

// Backup serializes the current holder and queue. Timers are derived
// state reconstructed from Expire on Restore, never serialized.
func (s *State) Backup() types.AtomicLockSnapshot {
	var snap types.AtomicLockSnapshot
	if s.holder != nil {
		snap.Lock = &types.LockCall{
			ID:        s.holder.ID,
			Index:     s.holder.Index,
			SessionID: s.holder.Session,
			Expire:    s.holder.Expire,
		}
	}
	for _, h := range s.queue.snapshot() {
		snap.Queue = append(snap.Queue, types.LockCall{
			ID:        h.ID,
			Index:     h.Index,
			SessionID: h.Session,
			Expire:    h.Expire,
		})
	}
	return snap
}

// Restore replaces the current holder and queue with snap, re-arming a
// timer for every queued entry that carries a deadline. Unlike the
// original this was ported from, a deadline already in the past restores
// with a zero delay instead of a negative one, so a stale snapshot can
// never arm a timer that would have already fired.
//
// Restore returns ErrInvalidSnapshot, and leaves the State untouched,
// if snap carries a non-positive acquisition index or two entries
// sharing the same index — a malformed snapshot is the only fault that
// makes restore fail outright.
func (s *State) Restore(snap types.AtomicLockSnapshot) error {
	seen := make(map[types.Index]bool, len(snap.Queue)+1)
	if snap.Lock != nil {
		if snap.Lock.Index <= 0 {
			return ErrInvalidSnapshot
		}
		seen[snap.Lock.Index] = true
	}
	for _, entry := range snap.Queue {
		if entry.Index <= 0 || seen[entry.Index] {
			return ErrInvalidSnapshot
		}
		seen[entry.Index] = true
	}

	s.timers.CancelAll()
	s.queue = waiterQueue{}
	s.holder = nil

	if snap.Lock != nil {
		s.holder = &types.LockHolder{
			ID:      snap.Lock.ID,
			Index:   snap.Lock.Index,
			Session: snap.Lock.SessionID,
			Expire:  snap.Lock.Expire,
		}
	}

	now := s.clock.Now().UnixMilli()
	for _, entry := range snap.Queue {
		h := types.LockHolder{
			ID:      entry.ID,
			Index:   entry.Index,
			Session: entry.SessionID,
			Expire:  entry.Expire,
		}
		s.queue.enqueue(h)
		if entry.Expire > 0 {
			delay := entry.Expire - now
			if delay < 0 {
				delay = 0
			}
			waiter := h
			s.timers.Schedule(waiter.Index, time.Duration(delay)*time.Millisecond, func() {
				s.onTimeout(waiter)
			})
		}
	}
	return nil
}

// Status returns a lightweight summary of this resource for diagnostics:
// whether it is currently held, the current holder's acquisition index
// (zero if unheld), and how many waiters are queued.
func (s *State) Status() (locked bool, holderIndex types.Index, queueLen int) {
	if s.holder != nil {
		return true, s.holder.Index, s.queue.len()
	}
	return false, 0, s.queue.len()
}

func (s *State) emitLock(session types.SessionID, resp types.LockResponse) {
	if s.sink != nil {
		s.sink.OnLock(session, resp)
	}
}
