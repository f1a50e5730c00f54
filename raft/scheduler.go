package raft

import (
	"container/heap"
	"sync"
	"time"
)

// Handle identifies a scheduled timer for later cancellation. The zero
// Handle is never issued by Schedule.
type Handle uint64

// Scheduler is the host-provided timer service: schedule a delayed
// callback, get back a Handle, cancel by Handle. The host runtime
// guarantees a fired callback executes in the same serialized execution
// context as command handlers — callers must never assume a fire races
// with, or interleaves at field-access granularity with, command
// processing.
type Scheduler interface {
	// Schedule arranges for fn to run once, no earlier than delay from
	// now on the scheduler's clock.
	Schedule(delay time.Duration, fn func()) Handle

	// Cancel prevents a previously scheduled fn from running, if it
	// hasn't already been handed to the executor. Cancellation is
	// best-effort: a fire that already raced past cancellation into the
	// executor still runs, and callback bodies must be idempotent/no-op
	// on a missing entry (see lock.TimerManager).
	Cancel(h Handle)
}

// timerEntry is one pending fire, ordered by fireAt in timerHeap.
type timerEntry struct {
	handle   Handle
	fireAt   time.Time
	fn       func()
	index    int // position in timerHeap, maintained by container/heap
	canceled bool
}

// timerHeap is a min-heap of *timerEntry ordered by fireAt. An
// absolute-time min-heap is a legitimate deterministic structure (unlike
// an unordered map) because every decision it drives — "what's the next
// thing to fire" — is a total order on fireAt, with ties broken by
// handle.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if !h[i].fireAt.Equal(h[j].fireAt) {
		return h[i].fireAt.Before(h[j].fireAt)
	}
	return h[i].handle < h[j].handle
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	entry := x.(*timerEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*h = old[:n-1]
	return entry
}

// timerWheel is a Scheduler backed by a min-heap and the supplied Clock,
// handing due callbacks to submit for serialized execution rather than
// running them inline on the wheel's own wakeup goroutine.
type timerWheel struct {
	mu      sync.Mutex
	clock   Clock
	submit  func(func())
	entries map[Handle]*timerEntry
	heap    timerHeap
	nextID  Handle
	wake    chan struct{}
	timer   Timer
}

// newTimerWheel returns a running Scheduler. submit is called, on the
// wheel's own goroutine, once per due timer; the caller is responsible
// for routing it onto whatever serialized executor backs command
// processing (see Host).
func newTimerWheel(clock Clock, submit func(func())) *timerWheel {
	w := &timerWheel{
		clock:   clock,
		submit:  submit,
		entries: make(map[Handle]*timerEntry),
		wake:    make(chan struct{}, 1),
	}
	go w.run()
	return w
}

func (w *timerWheel) Schedule(delay time.Duration, fn func()) Handle {
	w.mu.Lock()
	w.nextID++
	entry := &timerEntry{
		handle: w.nextID,
		fireAt: w.clock.Now().Add(delay),
		fn:     fn,
	}
	w.entries[entry.handle] = entry
	heap.Push(&w.heap, entry)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return entry.handle
}

func (w *timerWheel) Cancel(h Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	entry, ok := w.entries[h]
	if !ok {
		return
	}
	entry.canceled = true
	delete(w.entries, h)
	if entry.index >= 0 && entry.index < len(w.heap) {
		heap.Remove(&w.heap, entry.index)
	}
}

// run drives the wheel: sleep until the next fireAt, then hand every due,
// non-canceled entry to submit.
func (w *timerWheel) run() {
	for {
		w.mu.Lock()
		var wait time.Duration
		if len(w.heap) == 0 {
			wait = 24 * time.Hour
		} else {
			wait = w.heap[0].fireAt.Sub(w.clock.Now())
			if wait < 0 {
				wait = 0
			}
		}
		w.mu.Unlock()

		t := w.clock.NewTimer(wait)
		select {
		case <-t.Chan():
		case <-w.wake:
			t.Stop()
			continue
		}

		w.mu.Lock()
		now := w.clock.Now()
		var due []*timerEntry
		for len(w.heap) > 0 && !w.heap[0].fireAt.After(now) {
			entry := heap.Pop(&w.heap).(*timerEntry)
			delete(w.entries, entry.handle)
			if !entry.canceled {
				due = append(due, entry)
			}
		}
		w.mu.Unlock()

		for _, entry := range due {
			w.submit(entry.fn)
		}
	}
}
