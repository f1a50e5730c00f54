package raft

import (
	"sync"

	"github.com/arrowquorum/quorumlock/types"
)

// Session is a client connection abstraction with a unique id and an
// active/inactive lifecycle state maintained by the host runtime. A
// session becomes inactive when the client closes its connection or the
// host judges it to have expired (missed heartbeats).
type Session interface {
	// ID returns the session's unique identifier.
	ID() types.SessionID

	// Active reports whether the session is still considered live. The
	// lock state machine must never deliver a session event to an
	// inactive session.
	Active() bool
}

// SessionRegistry looks up sessions by id. The host runtime owns session
// creation, closing, and expiry; the lock state machine only ever reads
// through this interface.
type SessionRegistry interface {
	// Lookup returns the session for id, and whether it is currently
	// tracked at all. A session that was tracked and has since closed or
	// expired is still returned, with Active() reporting false, so the
	// caller can distinguish "unknown session" from "inactive session."
	Lookup(id types.SessionID) (Session, bool)
}

// session is the registry's concrete Session implementation.
type session struct {
	id     types.SessionID
	active bool
}

func (s *session) ID() types.SessionID { return s.id }
func (s *session) Active() bool        { return s.active }

// InMemorySessionRegistry is a SessionRegistry backed by a map, suitable
// for the reference Host and for tests. It is safe for concurrent use.
type InMemorySessionRegistry struct {
	mu       sync.RWMutex
	sessions map[types.SessionID]*session
}

// NewInMemorySessionRegistry returns an empty InMemorySessionRegistry.
func NewInMemorySessionRegistry() *InMemorySessionRegistry {
	return &InMemorySessionRegistry{
		sessions: make(map[types.SessionID]*session),
	}
}

// Open registers a new active session, or reactivates an existing one.
func (r *InMemorySessionRegistry) Open(id types.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &session{id: id, active: true}
}

// Close marks a session inactive. It remains tracked so Lookup can still
// distinguish it from a session that never existed.
func (r *InMemorySessionRegistry) Close(id types.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.active = false
	}
}

// Lookup implements SessionRegistry.
func (r *InMemorySessionRegistry) Lookup(id types.SessionID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s, true
}
