package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/arrowquorum/quorumlock/server"
	"github.com/arrowquorum/quorumlock/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var errBuilderMissingEndpoint = errors.New("client: endpoint must be set")

// Client is a typed wrapper around a gRPC connection to a quorumlock
// server.
type Client struct {
	conn   *grpc.ClientConn
	config Config
}

// jsonCodecName mirrors server.codecName; kept as its own unexported
// constant since server.codecName is not exported.
const jsonCodecName = "json"

// Dial returns a Client for cfg.Endpoint without blocking. The connection
// is established lazily by grpc.NewClient, so the first RPC waits for it
// under that call's RequestTimeout or the caller's deadline;
// cfg.DialTimeout is not applied.
func Dial(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errBuilderMissingEndpoint
	}

	conn, err := grpc.NewClient(cfg.Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", cfg.Endpoint, err)
	}
	return &Client{conn: conn, config: cfg}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}
	return c.conn.Invoke(ctx, method, req, resp)
}

// Lock requests resource on behalf of session. The command's commit index
// is returned immediately; whether the lock was actually acquired arrives
// later over Watch.
func (c *Client) Lock(ctx context.Context, session types.SessionID, resource types.ResourceID, req types.LockRequest) (types.Index, error) {
	var reply server.LockAck
	call := server.LockCallRequest{Session: session, Resource: resource, Request: req}
	if err := c.invoke(ctx, "/quorumlock.Lock/Lock", &call, &reply); err != nil {
		return 0, err
	}
	return reply.Index, nil
}

// Unlock releases resource on behalf of session.
func (c *Client) Unlock(ctx context.Context, session types.SessionID, resource types.ResourceID, req types.UnlockRequest) (types.UnlockResponse, error) {
	var reply types.UnlockResponse
	call := server.UnlockCallRequest{Session: session, Resource: resource, Request: req}
	if err := c.invoke(ctx, "/quorumlock.Lock/Unlock", &call, &reply); err != nil {
		return types.UnlockResponse{}, err
	}
	return reply, nil
}

// IsLocked queries whether resource is currently held.
func (c *Client) IsLocked(ctx context.Context, resource types.ResourceID, req types.IsLockedRequest) (types.IsLockedResponse, error) {
	var reply types.IsLockedResponse
	call := server.IsLockedCallRequest{Resource: resource, Request: req}
	if err := c.invoke(ctx, "/quorumlock.Lock/IsLocked", &call, &reply); err != nil {
		return types.IsLockedResponse{}, err
	}
	return reply, nil
}

// GetStatus asks the server for a diagnostic summary of resource.
func (c *Client) GetStatus(ctx context.Context, resource types.ResourceID) (server.StatusReply, error) {
	var reply server.StatusReply
	call := server.StatusRequest{Resource: resource}
	if err := c.invoke(ctx, "/quorumlock.Lock/GetStatus", &call, &reply); err != nil {
		return server.StatusReply{}, err
	}
	return reply, nil
}

// Watch subscribes to session's lock resolution events and streams them
// onto the returned channel until ctx is done or the server closes the
// stream. The channel is closed once the stream ends or ctx is done.
func (c *Client) Watch(ctx context.Context, session types.SessionID) (<-chan types.LockResponse, error) {
	stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{StreamName: "Events", ServerStreams: true}, "/quorumlock.Lock/Events")
	if err != nil {
		return nil, fmt.Errorf("client: open events stream: %w", err)
	}
	if err := stream.SendMsg(&server.EventsRequest{Session: session}); err != nil {
		return nil, fmt.Errorf("client: subscribe: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("client: close send: %w", err)
	}

	out := make(chan types.LockResponse, 16)
	go func() {
		defer close(out)
		for {
			var resp types.LockResponse
			if err := stream.RecvMsg(&resp); err != nil {
				return
			}
			select {
			case out <- resp:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
