package server

import (
	"context"
	"testing"

	"github.com/arrowquorum/quorumlock/lockfsm"
	"github.com/arrowquorum/quorumlock/raft"
	"github.com/arrowquorum/quorumlock/testutil"
	"github.com/arrowquorum/quorumlock/types"
)

func newTestServer(t *testing.T) (*GRPCServer, *raft.Host, *EventBus) {
	t.Helper()
	bus := NewEventBus()
	var reg *lockfsm.Registry
	host := raft.NewHost(raft.NewStandardClock(), nil, func(clock raft.Clock, sched raft.Scheduler, sessions raft.SessionRegistry) raft.StateMachine {
		reg = lockfsm.New(clock, sessions, sched, bus, nil)
		return reg
	})
	t.Cleanup(host.Close)
	host.OpenSession("s1")
	host.OpenSession("s2")
	srv := NewGRPCServer(host, reg, bus, nil, nil)
	return srv, host, bus
}

func TestGRPCServer_LockAndWatchDeliverAcquisition(t *testing.T) {
	srv, _, bus := newTestServer(t)
	ctx := context.Background()

	events, unsubscribe := bus.Subscribe("s1")
	defer unsubscribe()

	ack, err := srv.Lock(ctx, &LockCallRequest{Session: "s1", Resource: "alpha", Request: types.LockRequest{ID: 1}})
	testutil.RequireNoError(t, err)
	testutil.AssertTrue(t, ack.Index > 0)

	resp := <-events
	testutil.AssertTrue(t, resp.Acquired)
}

func TestGRPCServer_UnlockReleasesLock(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx := context.Background()

	_, err := srv.Lock(ctx, &LockCallRequest{Session: "s1", Resource: "alpha", Request: types.LockRequest{ID: 1}})
	testutil.RequireNoError(t, err)

	_, err = srv.Unlock(ctx, &UnlockCallRequest{Session: "s1", Resource: "alpha", Request: types.UnlockRequest{ID: 1}})
	testutil.RequireNoError(t, err)

	locked, err := srv.IsLocked(ctx, &IsLockedCallRequest{Resource: "alpha", Request: types.IsLockedRequest{}})
	testutil.RequireNoError(t, err)
	testutil.AssertFalse(t, locked.Locked)
}

func TestGRPCServer_GetStatusReportsQueueLength(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx := context.Background()

	_, err := srv.Lock(ctx, &LockCallRequest{Session: "s1", Resource: "alpha", Request: types.LockRequest{ID: 1}})
	testutil.RequireNoError(t, err)
	_, err = srv.Lock(ctx, &LockCallRequest{Session: "s2", Resource: "alpha", Request: types.LockRequest{ID: 2, Timeout: -1}})
	testutil.RequireNoError(t, err)

	status, err := srv.GetStatus(ctx, &StatusRequest{Resource: "alpha"})
	testutil.RequireNoError(t, err)
	testutil.AssertTrue(t, status.Locked)
	testutil.AssertEqual(t, 1, status.QueueLen)
}

// alwaysDenyLimiter denies every request outright, for exercising the
// rejection path without depending on real token-bucket timing.
type alwaysDenyLimiter struct{}

func (alwaysDenyLimiter) Allow() bool                   { return false }
func (alwaysDenyLimiter) Wait(ctx context.Context) error { return context.DeadlineExceeded }

func TestGRPCServer_RateLimitRejectsOverCapacity(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.limiter = alwaysDenyLimiter{}
	ctx := context.Background()

	_, err := srv.Lock(ctx, &LockCallRequest{Session: "s1", Resource: "alpha", Request: types.LockRequest{ID: 1}})
	testutil.AssertError(t, err)
}

// newUnprovisionedTestServer builds a server the way cmd/lockd does: no
// call to host.OpenSession ahead of time. Sessions must come into
// existence purely from the RPC boundary, exactly as a real client would
// drive it.
func newUnprovisionedTestServer(t *testing.T) (*GRPCServer, *EventBus) {
	t.Helper()
	bus := NewEventBus()
	var reg *lockfsm.Registry
	host := raft.NewHost(raft.NewStandardClock(), nil, func(clock raft.Clock, sched raft.Scheduler, sessions raft.SessionRegistry) raft.StateMachine {
		reg = lockfsm.New(clock, sessions, sched, bus, nil)
		return reg
	})
	t.Cleanup(host.Close)
	return NewGRPCServer(host, reg, bus, nil, nil), bus
}

func TestGRPCServer_PromotesQueuedWaiterWithoutPriorSessionOpen(t *testing.T) {
	srv, bus := newUnprovisionedTestServer(t)
	ctx := context.Background()

	events, unsubscribe := bus.Subscribe("s2")
	defer unsubscribe()

	_, err := srv.Lock(ctx, &LockCallRequest{Session: "s1", Resource: "alpha", Request: types.LockRequest{ID: 1}})
	testutil.RequireNoError(t, err)
	_, err = srv.Lock(ctx, &LockCallRequest{Session: "s2", Resource: "alpha", Request: types.LockRequest{ID: 2, Timeout: -1}})
	testutil.RequireNoError(t, err)

	_, err = srv.Unlock(ctx, &UnlockCallRequest{Session: "s1", Resource: "alpha", Request: types.UnlockRequest{ID: 1}})
	testutil.RequireNoError(t, err)

	resp := <-events
	testutil.AssertTrue(t, resp.Acquired)
}
