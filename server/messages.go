package server

import "github.com/arrowquorum/quorumlock/types"

// LockCallRequest is the envelope every unary RPC carries: which session
// is calling and which resource it names. Request carries the
// operation-specific fields.
type LockCallRequest struct {
	Session  types.SessionID
	Resource types.ResourceID
	Request  types.LockRequest
}

// UnlockCallRequest is LockCallRequest's analogue for Unlock.
type UnlockCallRequest struct {
	Session  types.SessionID
	Resource types.ResourceID
	Request  types.UnlockRequest
}

// IsLockedCallRequest is LockCallRequest's analogue for IsLocked.
type IsLockedCallRequest struct {
	Resource types.ResourceID
	Request  types.IsLockedRequest
}

// LockAck is Lock's synchronous reply: the index the command committed
// at. Whether the lock was actually acquired arrives later, out of band,
// as a LockResponse delivered over the Events stream — matching the
// state machine's own rule that acquisition outcomes are always
// asynchronous session events, never a command's direct return value.
type LockAck struct {
	Index types.Index
}

// EventsRequest subscribes the caller to the session events for Session.
type EventsRequest struct {
	Session types.SessionID
}

// StatusRequest asks for a human-oriented summary of one resource.
type StatusRequest struct {
	Resource types.ResourceID
}

// StatusReply is GetStatus's response.
type StatusReply struct {
	Resource    types.ResourceID
	Locked      bool
	HolderIndex types.Index
	QueueLen    int
}
