package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arrowquorum/quorumlock/lock"
	"github.com/arrowquorum/quorumlock/logger"
	"github.com/arrowquorum/quorumlock/raft"
	"github.com/arrowquorum/quorumlock/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LockFSM is the subset of lockfsm.Registry the server depends on,
// narrowed so this package never imports lockfsm directly.
type LockFSM interface {
	Status(resource types.ResourceID) (locked bool, holderIndex types.Index, queueLen int)
}

// GRPCServer exposes a raft.Host's lock resources over gRPC. It has no
// protoc-generated bindings: the service is hand-registered (see
// serviceDesc below) and every message crosses the wire through the
// JSON codec in codec.go.
type GRPCServer struct {
	host       *raft.Host
	fsm        LockFSM
	bus        *EventBus
	limiter    RateLimiter
	serializer lock.Serializer
	log        logger.Logger
}

// NewGRPCServer returns a GRPCServer backed by host. limiter may be nil,
// in which case requests are never throttled.
func NewGRPCServer(host *raft.Host, fsm LockFSM, bus *EventBus, limiter RateLimiter, log logger.Logger) *GRPCServer {
	if limiter == nil {
		limiter = noopRateLimiter{}
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &GRPCServer{host: host, fsm: fsm, bus: bus, limiter: limiter, serializer: lock.JSONSerializer{}, log: log.WithComponent("server")}
}

// Register attaches the lock service to s.
func (g *GRPCServer) Register(s *grpc.Server) {
	s.RegisterService(&serviceDesc, g)
}

func (g *GRPCServer) throttle(ctx context.Context) error {
	if !g.limiter.Allow() {
		if err := g.limiter.Wait(ctx); err != nil {
			return status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
	}
	return nil
}

// proposeOp opens session on the host before proposing, so a waiter this
// command queues (or a later promotion of it) finds a live session at
// lookup time. Every unary RPC that names a session goes through here,
// so that is the one place session creation needs to be wired in. payload
// is the already-serialized request body.
func (g *GRPCServer) proposeOp(ctx context.Context, session types.SessionID, resource types.ResourceID, op types.Op, payload []byte) (types.Index, []byte, error) {
	if session != "" {
		g.host.OpenSession(session)
	}

	cmd, err := json.Marshal(types.Command{Resource: resource, Op: op, Payload: payload})
	if err != nil {
		return 0, nil, status.Errorf(codes.Internal, "encode command: %v", err)
	}
	index, resp, err := g.host.Propose(ctx, session, cmd)
	if err != nil {
		return 0, nil, status.Errorf(codes.Internal, "propose: %v", err)
	}
	return index, resp, nil
}

// Lock handles the unary Lock RPC.
func (g *GRPCServer) Lock(ctx context.Context, req *LockCallRequest) (*LockAck, error) {
	if err := g.throttle(ctx); err != nil {
		return nil, err
	}
	payload, err := g.serializer.EncodeLockRequest(req.Request)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode request: %v", err)
	}
	index, _, err := g.proposeOp(ctx, req.Session, req.Resource, types.OpLock, payload)
	if err != nil {
		return nil, err
	}
	return &LockAck{Index: index}, nil
}

// Unlock handles the unary Unlock RPC.
func (g *GRPCServer) Unlock(ctx context.Context, req *UnlockCallRequest) (*types.UnlockResponse, error) {
	if err := g.throttle(ctx); err != nil {
		return nil, err
	}
	payload, err := g.serializer.EncodeUnlockRequest(req.Request)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode request: %v", err)
	}
	_, data, err := g.proposeOp(ctx, req.Session, req.Resource, types.OpUnlock, payload)
	if err != nil {
		return nil, err
	}
	var resp types.UnlockResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, status.Errorf(codes.Internal, "decode response: %v", err)
	}
	return &resp, nil
}

// IsLocked handles the unary IsLocked RPC.
func (g *GRPCServer) IsLocked(ctx context.Context, req *IsLockedCallRequest) (*types.IsLockedResponse, error) {
	if err := g.throttle(ctx); err != nil {
		return nil, err
	}
	payload, err := g.serializer.EncodeIsLockedRequest(req.Request)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode request: %v", err)
	}
	_, data, err := g.proposeOp(ctx, "", req.Resource, types.OpIsLocked, payload)
	if err != nil {
		return nil, err
	}
	var resp types.IsLockedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, status.Errorf(codes.Internal, "decode response: %v", err)
	}
	return &resp, nil
}

// GetStatus handles the unary GetStatus RPC.
func (g *GRPCServer) GetStatus(ctx context.Context, req *StatusRequest) (*StatusReply, error) {
	locked, holderIndex, queueLen := g.fsm.Status(req.Resource)
	return &StatusReply{
		Resource:    req.Resource,
		Locked:      locked,
		HolderIndex: holderIndex,
		QueueLen:    queueLen,
	}, nil
}

// Events handles the server-streaming Events RPC: it opens req's session
// on the host (a client may call Watch before its first Lock), subscribes
// it to the EventBus, and forwards every LockResponse it is sent until
// the client disconnects.
func (g *GRPCServer) Events(req *EventsRequest, stream grpc.ServerStream) error {
	g.host.OpenSession(req.Session)
	ch, unsubscribe := g.bus.Subscribe(req.Session)
	defer unsubscribe()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case resp, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.SendMsg(&resp); err != nil {
				return err
			}
		}
	}
}

func unaryHandler[Req any, Resp any](
	call func(srv *GRPCServer, ctx context.Context, req *Req) (*Resp, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		g, ok := srv.(*GRPCServer)
		if !ok {
			return nil, fmt.Errorf("server: unexpected service impl %T", srv)
		}
		var req Req
		if err := dec(&req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(g, ctx, &req)
		}
		info := &grpc.UnaryServerInfo{Server: srv}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(g, ctx, req.(*Req))
		}
		return interceptor(ctx, &req, info, handler)
	}
}

// serviceDesc is the hand-written equivalent of a protoc-generated
// grpc.ServiceDesc. There is no .proto source anywhere backing this
// service; the method set below is the entire contract.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "quorumlock.Lock",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Lock", Handler: unaryHandler(func(g *GRPCServer, ctx context.Context, req *LockCallRequest) (*LockAck, error) {
			return g.Lock(ctx, req)
		})},
		{MethodName: "Unlock", Handler: unaryHandler(func(g *GRPCServer, ctx context.Context, req *UnlockCallRequest) (*types.UnlockResponse, error) {
			return g.Unlock(ctx, req)
		})},
		{MethodName: "IsLocked", Handler: unaryHandler(func(g *GRPCServer, ctx context.Context, req *IsLockedCallRequest) (*types.IsLockedResponse, error) {
			return g.IsLocked(ctx, req)
		})},
		{MethodName: "GetStatus", Handler: unaryHandler(func(g *GRPCServer, ctx context.Context, req *StatusRequest) (*StatusReply, error) {
			return g.GetStatus(ctx, req)
		})},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "Events",
			Handler: func(srv any, stream grpc.ServerStream) error {
				g, ok := srv.(*GRPCServer)
				if !ok {
					return fmt.Errorf("server: unexpected service impl %T", srv)
				}
				var req EventsRequest
				if err := stream.RecvMsg(&req); err != nil {
					return err
				}
				return g.Events(&req, stream)
			},
			ServerStreams: true,
		},
	},
	Metadata: "server/grpcserver.go",
}
