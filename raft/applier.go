package raft

import (
	"context"

	"github.com/arrowquorum/quorumlock/types"
)

// Applier defines how a host consensus runtime applies committed log
// entries to an application's state machine and manages state snapshots.
// It is the boundary between the deterministic lock state machine and
// everything this repository treats as an external collaborator:
// consensus transport, cluster membership, election, and durable log
// storage.
//
// Implementations must be deterministic, idempotent, and safe to call
// from a single serialized executor (never concurrently for the same
// instance).
type Applier interface {
	// Apply applies a committed command at the given index. The context
	// may carry deadlines; implementations should still attempt to apply
	// the command, since skipping a committed entry causes divergence
	// across replicas.
	Apply(ctx context.Context, index types.Index, session types.SessionID, command []byte) ([]byte, error)

	// Snapshot returns a serialized, point-in-time view of the state
	// machine along with the highest log index it includes.
	Snapshot(ctx context.Context) (lastAppliedIndex types.Index, data []byte, err error)

	// RestoreSnapshot replaces all existing state with the state encoded
	// in data, captured as of lastIncludedIndex. After restoration, Apply
	// must ignore entries at or below lastIncludedIndex (the host runtime
	// is responsible for not resubmitting them).
	RestoreSnapshot(ctx context.Context, lastIncludedIndex types.Index, data []byte) error
}

// SessionHandler delivers session lifecycle callbacks to the state
// machine: a session closing and a session expiring both release
// whatever that session held or was waiting on, via the same release
// algorithm. The host runtime delivers them in a deterministic,
// replicated order, identically to how it delivers committed commands.
type SessionHandler interface {
	// HandleSessionClose releases everything the session held or was
	// waiting on because the client closed its connection.
	HandleSessionClose(ctx context.Context, session types.SessionID) error

	// HandleSessionExpire releases everything the session held or was
	// waiting on because the host judged it to have expired.
	HandleSessionExpire(ctx context.Context, session types.SessionID) error
}

// StateMachine is the full inbound contract a host runtime drives: commit
// application, snapshotting, and session lifecycle.
type StateMachine interface {
	Applier
	SessionHandler
}
