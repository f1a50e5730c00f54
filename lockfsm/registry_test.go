package lockfsm

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/arrowquorum/quorumlock/lock"
	"github.com/arrowquorum/quorumlock/raft"
	"github.com/arrowquorum/quorumlock/testutil"
	"github.com/arrowquorum/quorumlock/types"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time                      { return c.now }
func (c *fakeClock) Since(t time.Time) time.Duration      { return c.now.Sub(t) }
func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.now.Add(d)
	return ch
}
func (c *fakeClock) NewTimer(d time.Duration) raft.Timer { return &fakeTimer{} }

type fakeTimer struct{}

func (t *fakeTimer) Chan() <-chan time.Time { return nil }
func (t *fakeTimer) Stop() bool             { return true }

type fakeScheduler struct {
	next    raft.Handle
	entries map[raft.Handle]func()
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{entries: make(map[raft.Handle]func())}
}

func (s *fakeScheduler) Schedule(delay time.Duration, fn func()) raft.Handle {
	s.next++
	s.entries[s.next] = fn
	return s.next
}

func (s *fakeScheduler) Cancel(h raft.Handle) { delete(s.entries, h) }

type captureSink struct {
	events []sinkEvent
}

type sinkEvent struct {
	session types.SessionID
	resp    types.LockResponse
}

func (c *captureSink) OnLock(session types.SessionID, resp types.LockResponse) {
	c.events = append(c.events, sinkEvent{session, resp})
}

func newTestRegistry() (*Registry, *raft.InMemorySessionRegistry, *captureSink) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	sessions := raft.NewInMemorySessionRegistry()
	scheduler := newFakeScheduler()
	sink := &captureSink{}
	return New(clock, sessions, scheduler, sink, nil), sessions, sink
}

func encodeLockCommand(t *testing.T, resource types.ResourceID, req types.LockRequest) []byte {
	t.Helper()
	payload, err := json.Marshal(req)
	testutil.RequireNoError(t, err)
	data, err := json.Marshal(types.Command{Resource: resource, Op: types.OpLock, Payload: payload})
	testutil.RequireNoError(t, err)
	return data
}

func encodeUnlockCommand(t *testing.T, resource types.ResourceID, req types.UnlockRequest) []byte {
	t.Helper()
	payload, err := json.Marshal(req)
	testutil.RequireNoError(t, err)
	data, err := json.Marshal(types.Command{Resource: resource, Op: types.OpUnlock, Payload: payload})
	testutil.RequireNoError(t, err)
	return data
}

func TestRegistry_RoutesCommandsByResource(t *testing.T) {
	reg, sessions, sink := newTestRegistry()
	sessions.Open("s1")
	sessions.Open("s2")
	ctx := context.Background()

	_, err := reg.Apply(ctx, 1, "s1", encodeLockCommand(t, "alpha", types.LockRequest{ID: 1}))
	testutil.RequireNoError(t, err)
	_, err = reg.Apply(ctx, 2, "s2", encodeLockCommand(t, "beta", types.LockRequest{ID: 1}))
	testutil.RequireNoError(t, err)

	testutil.AssertLen(t, sink.events, 2)
	testutil.AssertTrue(t, sink.events[0].resp.Acquired)
	testutil.AssertTrue(t, sink.events[1].resp.Acquired)
	testutil.AssertEqual(t, 2, len(reg.resources))
}

func TestRegistry_UnlockReturnsResponseBytes(t *testing.T) {
	reg, sessions, _ := newTestRegistry()
	sessions.Open("s1")
	ctx := context.Background()

	_, err := reg.Apply(ctx, 1, "s1", encodeLockCommand(t, "alpha", types.LockRequest{ID: 1}))
	testutil.RequireNoError(t, err)

	out, err := reg.Apply(ctx, 2, "s1", encodeUnlockCommand(t, "alpha", types.UnlockRequest{ID: 1}))
	testutil.RequireNoError(t, err)

	var resp types.UnlockResponse
	testutil.RequireNoError(t, json.Unmarshal(out, &resp))
	testutil.AssertEqual(t, types.UnlockResponse{Index: 2}, resp)
}

func TestRegistry_SessionCloseReleasesAcrossResources(t *testing.T) {
	reg, sessions, sink := newTestRegistry()
	sessions.Open("s1")
	sessions.Open("s2")
	ctx := context.Background()

	_, _ = reg.Apply(ctx, 1, "s1", encodeLockCommand(t, "alpha", types.LockRequest{ID: 1}))
	_, _ = reg.Apply(ctx, 2, "s1", encodeLockCommand(t, "beta", types.LockRequest{ID: 2}))
	_, _ = reg.Apply(ctx, 3, "s2", encodeLockCommand(t, "alpha", types.LockRequest{ID: 3, Timeout: -1}))

	testutil.RequireNoError(t, reg.HandleSessionClose(ctx, "s1"))

	testutil.AssertLen(t, sink.events, 3) // 2 acquisitions + 1 promotion on alpha
	last := sink.events[2]
	testutil.AssertEqual(t, types.SessionID("s2"), last.session)
	testutil.AssertTrue(t, last.resp.Acquired)
}

func TestRegistry_SnapshotRestoreRoundTrip(t *testing.T) {
	reg, sessions, _ := newTestRegistry()
	sessions.Open("s1")
	ctx := context.Background()

	_, err := reg.Apply(ctx, 1, "s1", encodeLockCommand(t, "alpha", types.LockRequest{ID: 1}))
	testutil.RequireNoError(t, err)

	_, data, err := reg.Snapshot(ctx)
	testutil.RequireNoError(t, err)

	restored, sessions2, _ := newTestRegistry()
	sessions2.Open("s1")
	testutil.RequireNoError(t, restored.RestoreSnapshot(ctx, 1, data))

	resp, err := restored.Apply(ctx, 2, "s1", mustEncodeIsLocked(t, "alpha", types.IsLockedRequest{}))
	testutil.RequireNoError(t, err)

	var isLocked types.IsLockedResponse
	testutil.RequireNoError(t, json.Unmarshal(resp, &isLocked))
	testutil.AssertTrue(t, isLocked.Locked)
}

func TestRegistry_RestoreSnapshotRejectsMalformedResource(t *testing.T) {
	reg, sessions, _ := newTestRegistry()
	sessions.Open("s1")
	ctx := context.Background()

	_, err := reg.Apply(ctx, 1, "s1", encodeLockCommand(t, "alpha", types.LockRequest{ID: 1}))
	testutil.RequireNoError(t, err)

	malformed, err := json.Marshal(types.AtomicLockSnapshot{
		Queue: []types.LockCall{{ID: 1, Index: 0, SessionID: "s1"}},
	})
	testutil.RequireNoError(t, err)
	data, err := json.Marshal(registrySnapshot{
		Resources: map[types.ResourceID]json.RawMessage{"beta": malformed},
	})
	testutil.RequireNoError(t, err)

	err = reg.RestoreSnapshot(ctx, 2, data)
	testutil.AssertErrorIs(t, err, lock.ErrInvalidSnapshot)
	testutil.AssertEqual(t, 1, len(reg.resources))
	_, ok := reg.resources["alpha"]
	testutil.AssertTrue(t, ok)
}

func mustEncodeIsLocked(t *testing.T, resource types.ResourceID, req types.IsLockedRequest) []byte {
	t.Helper()
	payload, err := json.Marshal(req)
	testutil.RequireNoError(t, err)
	data, err := json.Marshal(types.Command{Resource: resource, Op: types.OpIsLocked, Payload: payload})
	testutil.RequireNoError(t, err)
	return data
}
