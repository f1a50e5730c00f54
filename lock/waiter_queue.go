package lock

import "github.com/arrowquorum/quorumlock/types"

// waiterQueue is a strict FIFO of queued lock waiters. It is a plain
// slice, not a heap: ordering is arrival order only, with no priority
// dimension, so the data structure that would let priority leak back in
// (container/heap) is deliberately not used here. Removal by session/id is
// O(n), which is acceptable at the scale a single resource's wait queue is
// expected to reach.
type waiterQueue struct {
	items []types.LockHolder
}

func (q *waiterQueue) enqueue(h types.LockHolder) {
	q.items = append(q.items, h)
}

// dequeue removes and returns the head of the queue, oldest first.
func (q *waiterQueue) dequeue() (types.LockHolder, bool) {
	if len(q.items) == 0 {
		return types.LockHolder{}, false
	}
	h := q.items[0]
	q.items = q.items[1:]
	return h, true
}

func (q *waiterQueue) len() int {
	return len(q.items)
}

// removeByIndex removes the single waiter with the given log index, if
// present, and reports whether it found one.
func (q *waiterQueue) removeByIndex(index types.Index) (types.LockHolder, bool) {
	for i, h := range q.items {
		if h.Index == index {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return h, true
		}
	}
	return types.LockHolder{}, false
}

// removeBySessionAndID removes the single waiter matching both session and
// client-chosen id — the key a client uses to rescind its own queued
// request without affecting any other waiter queued under the same
// resource.
func (q *waiterQueue) removeBySessionAndID(session types.SessionID, id int32) (types.LockHolder, bool) {
	for i, h := range q.items {
		if h.Session == session && h.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return h, true
		}
	}
	return types.LockHolder{}, false
}

// removeBySession removes every waiter belonging to session, e.g. when
// that session closes or expires, and returns what it removed.
func (q *waiterQueue) removeBySession(session types.SessionID) []types.LockHolder {
	var removed []types.LockHolder
	kept := q.items[:0]
	for _, h := range q.items {
		if h.Session == session {
			removed = append(removed, h)
		} else {
			kept = append(kept, h)
		}
	}
	q.items = kept
	return removed
}

// snapshot returns the queue contents in order, as a defensive copy.
func (q *waiterQueue) snapshot() []types.LockHolder {
	out := make([]types.LockHolder, len(q.items))
	copy(out, q.items)
	return out
}
