package server

import (
	"sync"

	"github.com/arrowquorum/quorumlock/raft"
	"github.com/arrowquorum/quorumlock/types"
)

// EventBus implements raft.EventSink by fanning each session event out to
// whichever subscriber channel is currently registered for that session.
// A session with no subscriber simply drops the event: the gRPC streaming
// Events call only sees events delivered while it is connected, matching
// how a real client would re-poll IsLocked after reconnecting.
type EventBus struct {
	mu   sync.RWMutex
	subs map[types.SessionID]chan types.LockResponse
}

// NewEventBus returns an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[types.SessionID]chan types.LockResponse)}
}

var _ raft.EventSink = (*EventBus)(nil)

// Subscribe registers ch to receive session events for session, replacing
// any previous subscriber. unsubscribe must be called when the caller is
// done listening.
func (b *EventBus) Subscribe(session types.SessionID) (ch <-chan types.LockResponse, unsubscribe func()) {
	events := make(chan types.LockResponse, 16)
	b.mu.Lock()
	b.subs[session] = events
	b.mu.Unlock()

	return events, func() {
		b.mu.Lock()
		if b.subs[session] == events {
			delete(b.subs, session)
		}
		b.mu.Unlock()
	}
}

// OnLock implements raft.EventSink.
func (b *EventBus) OnLock(session types.SessionID, resp types.LockResponse) {
	b.mu.RLock()
	ch, ok := b.subs[session]
	b.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case ch <- resp:
	default:
		// Subscriber isn't keeping up; drop rather than block the
		// single serialized executor that called us.
	}
}
