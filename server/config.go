package server

import (
	"time"

	"google.golang.org/grpc"
)

// Config holds server options.
type Config struct {
	// MaxRequestsPerWindow and Window configure the request rate limiter;
	// MaxRequestsPerWindow <= 0 disables rate limiting entirely.
	MaxRequestsPerWindow int
	Window               time.Duration
	Burst                int
}

// Option configures a Config.
type Option func(*Config)

// DefaultConfig returns a Config with no rate limiting.
func DefaultConfig() Config {
	return Config{}
}

// WithRateLimit enables the token-bucket rate limiter.
func WithRateLimit(maxRequests, burst int, window time.Duration) Option {
	return func(c *Config) {
		c.MaxRequestsPerWindow = maxRequests
		c.Burst = burst
		c.Window = window
	}
}

// NewGRPCTransport returns a *grpc.Server forced onto the JSON codec, with
// extraOpts applied after the codec option so callers may still add TLS,
// interceptors, or keepalive policy.
func NewGRPCTransport(extraOpts ...grpc.ServerOption) *grpc.Server {
	opts := append([]grpc.ServerOption{grpc.ForceServerCodec(jsonCodec{})}, extraOpts...)
	return grpc.NewServer(opts...)
}
