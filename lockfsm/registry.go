// Package lockfsm hosts many independent lock.State instances behind a
// single raft.StateMachine, one per types.ResourceID. It is the
// multi-resource analogue of running one lock.State per partition: each
// resource has its own holder, queue, and timer set, with no shared
// mutable state between resources.
package lockfsm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/arrowquorum/quorumlock/lock"
	"github.com/arrowquorum/quorumlock/logger"
	"github.com/arrowquorum/quorumlock/raft"
	"github.com/arrowquorum/quorumlock/types"
)

// ErrInvalidSnapshot is returned by RestoreSnapshot when data does not
// decode into a well-formed registry snapshot.
var ErrInvalidSnapshot = errors.New("lockfsm: invalid snapshot")

// ErrUnknownOp is returned when a Command carries an Op the registry
// does not recognize.
var ErrUnknownOp = errors.New("lockfsm: unknown op")

// Registry implements raft.StateMachine by routing each command to the
// lock.State for its Resource, creating that state lazily on first use.
type Registry struct {
	clock      raft.Clock
	sessions   raft.SessionRegistry
	scheduler  raft.Scheduler
	sink       raft.EventSink
	serializer lock.Serializer
	log        logger.Logger

	mu        sync.Mutex
	resources map[types.ResourceID]*lock.State
}

// New returns an empty Registry. scheduler and sessions are shared by
// every resource's lock.State; a resource's own isolation comes entirely
// from owning an independent holder/queue/timer set, not from a separate
// scheduler or session registry.
func New(
	clock raft.Clock,
	sessions raft.SessionRegistry,
	scheduler raft.Scheduler,
	sink raft.EventSink,
	log logger.Logger,
) *Registry {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Registry{
		clock:      clock,
		sessions:   sessions,
		scheduler:  scheduler,
		sink:       sink,
		serializer: lock.JSONSerializer{},
		log:        log.WithComponent("lockfsm"),
		resources:  make(map[types.ResourceID]*lock.State),
	}
}

func (r *Registry) stateFor(resource types.ResourceID) *lock.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.resources[resource]
	if !ok {
		s = lock.NewState(resource, r.clock, r.sessions, r.scheduler, r.sink, r.log)
		r.resources[resource] = s
	}
	return s
}

// Apply decodes cmd as a types.Command and dispatches it to the named
// resource's state. It implements raft.Applier.
func (r *Registry) Apply(ctx context.Context, index types.Index, session types.SessionID, cmd []byte) ([]byte, error) {
	var command types.Command
	if err := json.Unmarshal(cmd, &command); err != nil {
		return nil, fmt.Errorf("lockfsm: decode command: %w", err)
	}

	state := r.stateFor(command.Resource)

	switch command.Op {
	case types.OpLock:
		req, err := r.serializer.DecodeLockRequest(command.Payload)
		if err != nil {
			return nil, fmt.Errorf("lockfsm: decode lock request: %w", err)
		}
		state.Lock(index, session, req)
		return nil, nil
	case types.OpUnlock:
		req, err := r.serializer.DecodeUnlockRequest(command.Payload)
		if err != nil {
			return nil, fmt.Errorf("lockfsm: decode unlock request: %w", err)
		}
		resp := state.Unlock(index, session, req)
		return json.Marshal(resp)
	case types.OpIsLocked:
		req, err := r.serializer.DecodeIsLockedRequest(command.Payload)
		if err != nil {
			return nil, fmt.Errorf("lockfsm: decode isLocked request: %w", err)
		}
		resp := state.IsLocked(index, req)
		return json.Marshal(resp)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, command.Op)
	}
}

// HandleSessionClose releases whatever session held or was waiting on,
// across every resource. It implements raft.SessionHandler.
func (r *Registry) HandleSessionClose(ctx context.Context, session types.SessionID) error {
	r.releaseEverywhere(session)
	return nil
}

// HandleSessionExpire runs the identical release algorithm as
// HandleSessionClose; the lock state machine treats a closed session and
// an expired session the same way.
func (r *Registry) HandleSessionExpire(ctx context.Context, session types.SessionID) error {
	r.releaseEverywhere(session)
	return nil
}

// Status reports a lightweight summary of resource for diagnostics. A
// resource that has never been touched reports unlocked with no waiters,
// without creating it.
func (r *Registry) Status(resource types.ResourceID) (locked bool, holderIndex types.Index, queueLen int) {
	r.mu.Lock()
	s, ok := r.resources[resource]
	r.mu.Unlock()
	if !ok {
		return false, 0, 0
	}
	return s.Status()
}

// releaseEverywhere releases session from every resource in sorted
// ResourceID order, so that replicas applying the same session close or
// expiry emit identical outbound event streams regardless of Go's
// randomized map iteration order.
func (r *Registry) releaseEverywhere(session types.SessionID) {
	r.mu.Lock()
	ids := make([]types.ResourceID, 0, len(r.resources))
	for id := range r.resources {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	states := make([]*lock.State, len(ids))
	for i, id := range ids {
		states[i] = r.resources[id]
	}
	r.mu.Unlock()

	for _, s := range states {
		s.ReleaseSession(session)
	}
}

// registrySnapshot is the wire shape of a full Registry snapshot: every
// resource's serialized lock.State snapshot, keyed by its ResourceID. The
// per-resource payload is opaque here — it is the Serializer's shape, not
// this package's — so the registry can wrap it without knowing it.
type registrySnapshot struct {
	Resources map[types.ResourceID]json.RawMessage `json:"resources"`
}

// Snapshot implements raft.Applier. It does not track its own "last
// applied index" independently of the host runtime; the caller
// (raft.Host) is the authority on which index a snapshot corresponds to.
func (r *Registry) Snapshot(ctx context.Context) (types.Index, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	resources := make(map[types.ResourceID]json.RawMessage, len(r.resources))
	for id, s := range r.resources {
		encoded, err := r.serializer.EncodeSnapshot(s.Backup())
		if err != nil {
			return 0, nil, fmt.Errorf("lockfsm: encode resource %q snapshot: %w", id, err)
		}
		resources[id] = encoded
	}

	data, err := json.Marshal(registrySnapshot{Resources: resources})
	if err != nil {
		return 0, nil, fmt.Errorf("lockfsm: encode snapshot: %w", err)
	}
	return 0, data, nil
}

// RestoreSnapshot implements raft.Applier, replacing every resource's
// state with what data encodes. Resources absent from data are dropped.
func (r *Registry) RestoreSnapshot(ctx context.Context, lastIncludedIndex types.Index, data []byte) error {
	var snap registrySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	resources := make(map[types.ResourceID]*lock.State, len(snap.Resources))
	for id, raw := range snap.Resources {
		resourceSnap, err := r.serializer.DecodeSnapshot(raw)
		if err != nil {
			return fmt.Errorf("%w: resource %q: %v", ErrInvalidSnapshot, id, err)
		}
		s := lock.NewState(id, r.clock, r.sessions, r.scheduler, r.sink, r.log)
		if err := s.Restore(resourceSnap); err != nil {
			return fmt.Errorf("lockfsm: restore resource %q: %w", id, err)
		}
		resources[id] = s
	}

	r.mu.Lock()
	r.resources = resources
	r.mu.Unlock()
	return nil
}
