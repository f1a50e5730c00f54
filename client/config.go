// Package client is a thin, typed wrapper around a gRPC connection to a
// quorumlock server, using the same hand-registered JSON codec the
// server speaks (see server/codec.go) since there are no
// protoc-generated bindings in this repository.
package client

import "time"

// Config holds the options for Dial.
type Config struct {
	// Endpoint is the server address to dial, e.g. "localhost:8080".
	Endpoint string

	// DialTimeout is stored with the other options but is not read by
	// Dial, which never blocks; the wait for the connection falls under
	// the first RPC's RequestTimeout or the caller's own deadline.
	DialTimeout time.Duration

	// RequestTimeout bounds each unary call when the caller supplies a
	// context.Context without its own deadline.
	RequestTimeout time.Duration
}

// DefaultConfig returns reasonable client defaults.
func DefaultConfig() Config {
	return Config{
		DialTimeout:    5 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

// Option configures a Config via ClientBuilder.
type Option func(*Config)

// WithEndpoint sets the server address to dial. Required.
func WithEndpoint(endpoint string) Option {
	return func(c *Config) { c.Endpoint = endpoint }
}

// WithTimeouts overrides the dial and request timeouts.
func WithTimeouts(dial, request time.Duration) Option {
	return func(c *Config) {
		if dial > 0 {
			c.DialTimeout = dial
		}
		if request > 0 {
			c.RequestTimeout = request
		}
	}
}

// ClientBuilder provides a fluent API for constructing a Client.
type ClientBuilder struct {
	config      Config
	hasEndpoint bool
}

// NewClientBuilder returns a builder initialized with endpoint.
func NewClientBuilder(endpoint string) *ClientBuilder {
	b := &ClientBuilder{config: DefaultConfig()}
	if endpoint != "" {
		b.config.Endpoint = endpoint
		b.hasEndpoint = true
	}
	return b
}

// WithTimeouts sets the dial and request timeouts.
func (b *ClientBuilder) WithTimeouts(dial, request time.Duration) *ClientBuilder {
	WithTimeouts(dial, request)(&b.config)
	return b
}

// Build dials the server and returns a ready Client.
func (b *ClientBuilder) Build() (*Client, error) {
	if !b.hasEndpoint {
		return nil, errBuilderMissingEndpoint
	}
	return Dial(b.config)
}
