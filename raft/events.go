package raft

import "github.com/arrowquorum/quorumlock/types"

// EventSink receives the session events the lock state machine emits:
// every resolution of a lock request, whether an immediate grant, a
// try-lock denial, a queued waiter's promotion, or a timeout denial.
// OnLock is called synchronously on the serialized executor, from inside
// the handler that resolves the request. Neither Host nor the sink holds
// the event back until the triggering command's return value has reached
// its caller, so a subscriber may see the event before that reply.
type EventSink interface {
	// OnLock notifies session that a lock acquisition attempt resolved,
	// successfully or not.
	OnLock(session types.SessionID, resp types.LockResponse)
}

// EventSinkFunc adapts a function to an EventSink.
type EventSinkFunc func(session types.SessionID, resp types.LockResponse)

func (f EventSinkFunc) OnLock(session types.SessionID, resp types.LockResponse) {
	f(session, resp)
}
