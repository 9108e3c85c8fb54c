package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/surrealkit/keeper/internal/rpc"
)

// Client represents a single connection to a SurrealDB-compatible
// endpoint, regardless of transport.
type Client interface {
	// Connect establishes the transport and signs in.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection.
	Close() error

	// Call performs one RPC round trip and returns the response.
	Call(ctx context.Context, method string, params []any) (*rpc.Response, error)

	// Notifications returns a channel of server-pushed frames.
	Notifications() <-chan Notification

	// Errors returns a channel of connection errors.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// DialFunc opens and signs in a fresh client. Holders call it on every
// connect and reconnect attempt.
type DialFunc func(ctx context.Context) (Client, error)

// NewClient creates a transport client matching the URL's scheme:
// ws/wss use the WebSocket RPC transport, http/https the HTTP surface.
func NewClient(cfg ClientConfig, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = withClientDefaults(cfg)

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse connection url: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		return newWSClient(cfg, logger), nil
	case "http", "https":
		return newHTTPClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// Dial creates a client for cfg and connects it. The client is closed
// again if the connect fails.
func Dial(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (Client, error) {
	c, err := NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Dialer binds cfg into a DialFunc for a holder.
func Dialer(cfg ClientConfig, logger *slog.Logger) DialFunc {
	return func(ctx context.Context) (Client, error) {
		return Dial(ctx, cfg, logger)
	}
}

// withClientDefaults fills zero-valued fields from DefaultClientConfig.
func withClientDefaults(cfg ClientConfig) ClientConfig {
	def := DefaultClientConfig()
	if cfg.Codec == nil {
		cfg.Codec = def.Codec
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	return cfg
}
