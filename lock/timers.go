package lock

import (
	"time"

	"github.com/arrowquorum/quorumlock/raft"
	"github.com/arrowquorum/quorumlock/types"
)

// TimerManager tracks the at-most-one pending expiration timer per queued
// waiter, keyed by the waiter's log index (unique within a resource). The
// map itself holds no ordering information — ordering lives in the host
// runtime's Scheduler, backed by an absolute-time min-heap — so keying a
// map by Index here does not reintroduce the unordered-container problem
// the wait queue avoids.
type TimerManager struct {
	scheduler raft.Scheduler
	handles   map[types.Index]raft.Handle
}

// NewTimerManager returns a TimerManager backed by scheduler.
func NewTimerManager(scheduler raft.Scheduler) *TimerManager {
	return &TimerManager{
		scheduler: scheduler,
		handles:   make(map[types.Index]raft.Handle),
	}
}

// Schedule arranges for fn to run after delay and remembers the resulting
// handle under index, replacing any existing timer for that index.
func (m *TimerManager) Schedule(index types.Index, delay time.Duration, fn func()) {
	m.Cancel(index)
	m.handles[index] = m.scheduler.Schedule(delay, fn)
}

// Cancel cancels and forgets the timer for index, if one exists. It is a
// no-op if index has no pending timer, so callers may cancel every waiter
// they remove, whether or not it was ever given a deadline.
func (m *TimerManager) Cancel(index types.Index) {
	h, ok := m.handles[index]
	if !ok {
		return
	}
	m.scheduler.Cancel(h)
	delete(m.handles, index)
}

// CancelAll cancels every pending timer, e.g. before a snapshot restore
// discards the waiters they were scheduled for.
func (m *TimerManager) CancelAll() {
	for index, h := range m.handles {
		m.scheduler.Cancel(h)
		delete(m.handles, index)
	}
}

// Forget drops the bookkeeping entry for index without canceling its
// underlying timer. Used by a fired callback to clean up after itself: by
// the time it runs the entry has already left the scheduler's heap, so
// there is nothing left to cancel, only the map entry to discard.
func (m *TimerManager) Forget(index types.Index) {
	delete(m.handles, index)
}

// Pending reports whether index currently has a scheduled timer.
func (m *TimerManager) Pending(index types.Index) bool {
	_, ok := m.handles[index]
	return ok
}
