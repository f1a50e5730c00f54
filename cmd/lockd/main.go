// Command lockd runs a single-process quorumlock server: a raft.Host
// wrapping a lockfsm.Registry, exposed over gRPC.
//
// It is a demonstration harness, not a cluster member — there is no
// peer discovery, election, or replication here. See package raft for
// the boundary this repository draws around that.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arrowquorum/quorumlock/lockfsm"
	"github.com/arrowquorum/quorumlock/logger"
	"github.com/arrowquorum/quorumlock/raft"
	"github.com/arrowquorum/quorumlock/server"
	"github.com/arrowquorum/quorumlock/snapshotstore"
)

func main() {
	addr := flag.String("addr", ":50051", "address to listen on")
	snapshotDir := flag.String("snapshot-dir", "./lockd-data", "directory for the snapshot store")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	rateLimit := flag.Int("rate-limit", 0, "max requests per second, 0 disables rate limiting")
	flag.Parse()

	log := logger.NewStdLogger(*logLevel)

	if err := run(*addr, *snapshotDir, *rateLimit, log); err != nil {
		log.Fatalw("lockd exiting", "error", err)
	}
}

func run(addr, snapshotDir string, rateLimit int, log logger.Logger) error {
	store, err := snapshotstore.NewFileStore(snapshotDir, log)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}

	bus := server.NewEventBus()
	var reg *lockfsm.Registry
	host := raft.NewHost(raft.NewStandardClock(), log, func(clock raft.Clock, sched raft.Scheduler, sessions raft.SessionRegistry) raft.StateMachine {
		reg = lockfsm.New(clock, sessions, sched, bus, log)
		return reg
	})
	defer host.Close()

	ctx := context.Background()
	if lastIndex, data, err := store.Load(ctx); err == nil {
		if err := host.RestoreSnapshot(ctx, lastIndex, data); err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		log.Infow("restored snapshot", "lastIncludedIndex", lastIndex)
	} else if err != snapshotstore.ErrNoSnapshot {
		return fmt.Errorf("load snapshot: %w", err)
	}

	var limiter server.RateLimiter
	if rateLimit > 0 {
		limiter = server.NewTokenBucketRateLimiter(rateLimit, rateLimit, time.Second, log)
	}

	grpcServer := server.NewGRPCTransport()
	lockService := server.NewGRPCServer(host, reg, bus, limiter, log)
	lockService.Register(grpcServer)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	go handleShutdown(ctx, host, store, grpcServer, log)

	log.Infow("lockd listening", "addr", addr)
	if err := grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func handleShutdown(ctx context.Context, host *raft.Host, store *snapshotstore.FileStore, grpcServer interface{ GracefulStop() }, log logger.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Infow("shutting down, taking final snapshot")
	index, data, err := host.Snapshot(ctx)
	if err != nil {
		log.Errorw("final snapshot failed", "error", err)
	} else if err := store.Save(ctx, index, data); err != nil {
		log.Errorw("persisting final snapshot failed", "error", err)
	}

	grpcServer.GracefulStop()
}
