package raft

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/arrowquorum/quorumlock/testutil"
	"github.com/arrowquorum/quorumlock/types"
)

// stubStateMachine records what it was called with, guarded by a mutex so
// tests can assert on it after Propose returns.
type stubStateMachine struct {
	mu       sync.Mutex
	applied  []types.Index
	closed   []types.SessionID
	expired  []types.SessionID
	snapData []byte
}

func (s *stubStateMachine) Apply(ctx context.Context, index types.Index, session types.SessionID, cmd []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, index)
	return json.Marshal(map[string]any{"index": index})
}

func (s *stubStateMachine) Snapshot(ctx context.Context) (types.Index, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.Index(len(s.applied)), s.snapData, nil
}

func (s *stubStateMachine) RestoreSnapshot(ctx context.Context, lastIncludedIndex types.Index, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapData = data
	return nil
}

func (s *stubStateMachine) HandleSessionClose(ctx context.Context, session types.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, session)
	return nil
}

func (s *stubStateMachine) HandleSessionExpire(ctx context.Context, session types.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired = append(s.expired, session)
	return nil
}

func newTestHost() (*Host, *stubStateMachine) {
	sm := &stubStateMachine{}
	host := NewHost(NewStandardClock(), nil, func(Clock, Scheduler, SessionRegistry) StateMachine {
		return sm
	})
	return host, sm
}

func TestHost_ProposeAssignsIncreasingIndices(t *testing.T) {
	host, sm := newTestHost()
	defer host.Close()
	host.OpenSession("s1")
	ctx := context.Background()

	i1, _, err := host.Propose(ctx, "s1", []byte("a"))
	testutil.RequireNoError(t, err)
	i2, _, err := host.Propose(ctx, "s1", []byte("b"))
	testutil.RequireNoError(t, err)

	testutil.AssertTrue(t, i2 > i1)
	testutil.AssertEqual(t, types.Index(1), i1)
	testutil.AssertEqual(t, types.Index(2), i2)
	testutil.AssertEqual(t, types.Index(2), host.LastApplied())

	sm.mu.Lock()
	defer sm.mu.Unlock()
	testutil.AssertEqual(t, []types.Index{1, 2}, sm.applied)
}

func TestHost_CloseSessionDeliversAndDeactivates(t *testing.T) {
	host, sm := newTestHost()
	defer host.Close()
	host.OpenSession("s1")
	ctx := context.Background()

	testutil.RequireNoError(t, host.CloseSession(ctx, "s1"))

	sm.mu.Lock()
	testutil.AssertEqual(t, []types.SessionID{"s1"}, sm.closed)
	sm.mu.Unlock()

	sess, ok := host.sessions.Lookup("s1")
	testutil.AssertTrue(t, ok)
	testutil.AssertFalse(t, sess.Active())
}

func TestHost_ExpireSessionDeliversAndDeactivates(t *testing.T) {
	host, sm := newTestHost()
	defer host.Close()
	host.OpenSession("s1")
	ctx := context.Background()

	testutil.RequireNoError(t, host.ExpireSession(ctx, "s1"))

	sm.mu.Lock()
	testutil.AssertEqual(t, []types.SessionID{"s1"}, sm.expired)
	sm.mu.Unlock()
}

func TestHost_RestoreSnapshotFastForwardsIndex(t *testing.T) {
	host, _ := newTestHost()
	defer host.Close()
	ctx := context.Background()

	testutil.RequireNoError(t, host.RestoreSnapshot(ctx, 100, []byte("snap")))
	testutil.AssertEqual(t, types.Index(100), host.LastApplied())

	host.OpenSession("s1")
	index, _, err := host.Propose(ctx, "s1", []byte("cmd"))
	testutil.RequireNoError(t, err)
	testutil.AssertEqual(t, types.Index(101), index)
}
