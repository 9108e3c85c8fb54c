package connection

import (
	"errors"
	"time"

	"github.com/surrealkit/keeper/internal/auth"
	"github.com/surrealkit/keeper/internal/rpc"
)

// Errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrStaleConnection    = errors.New("connection stale (no heartbeat)")
	ErrAlreadyClosed      = errors.New("already closed")
	ErrUnsupportedScheme  = errors.New("unsupported connection scheme")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// Status is a holder's position in the connection lifecycle.
type Status uint8

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusExhausted
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusExhausted:
		return "exhausted"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventType identifies a lifecycle transition on a holder.
type EventType string

const (
	EventConnected          EventType = "connected"
	EventConnectFailed      EventType = "connect_failed"
	EventDisconnected       EventType = "disconnected"
	EventReconnecting       EventType = "reconnecting"
	EventReconnected        EventType = "reconnected"
	EventReconnectExhausted EventType = "reconnect_exhausted"
)

// Event is one lifecycle transition as seen on a holder's event
// channel. Attempt and Delay are set for reconnect events, Err for
// failures.
type Event struct {
	Endpoint string        // Holder name the event belongs to
	Type     EventType     // What happened
	Attempt  int           // Reconnect attempt number (0 outside a retry sequence)
	Delay    time.Duration // Wait before the attempt (reconnecting only)
	Err      error         // Cause, for failure events
	At       time.Time     // Local timestamp the transition was observed
}

// Notification is a server-pushed frame that answers no pending
// request, e.g. a live query update.
type Notification struct {
	Payload    rpc.Response // Decoded frame
	ReceivedAt time.Time    // Local timestamp when the frame arrived
}

// ClientConfig configures a single transport client.
type ClientConfig struct {
	URL          string           // Endpoint URL (ws://, wss://, http:// or https://)
	Namespace    string           // Namespace selected after signin (optional)
	Database     string           // Database selected after signin (optional)
	Credentials  auth.Credentials // Signin identity (nil = anonymous)
	Codec        rpc.Codec        // Wire codec (nil = JSON)
	PingInterval time.Duration    // How often to probe the server
	PingTimeout  time.Duration    // Max time without a server answer before stale
	WriteTimeout time.Duration    // Write deadline for sends
	BufferSize   int              // Notification channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Codec:        rpc.JSON,
		PingInterval: 30 * time.Second,
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   256,
	}
}

// HolderConfig configures a connection holder.
type HolderConfig struct {
	Endpoint             string        // Name the holder reports in logs and events
	Identity             string        // Loggable signin identity (optional)
	Level                string        // Access level of the identity (optional)
	AutoReconnect        bool          // Retry automatically after a lost connection
	ReconnectBaseDelay   time.Duration // First retry delay; doubles each failure
	MaxReconnectAttempts int           // Attempts before the holder gives up
	ConnectTimeout       time.Duration // Per-attempt dial deadline
	EventBuffer          int           // Event channel buffer size
}

// DefaultHolderConfig returns sensible defaults. AutoReconnect is on;
// callers wanting manual recovery must switch it off explicitly.
func DefaultHolderConfig() HolderConfig {
	return HolderConfig{
		AutoReconnect:        true,
		ReconnectBaseDelay:   1 * time.Second,
		MaxReconnectAttempts: 8,
		ConnectTimeout:       10 * time.Second,
		EventBuffer:          64,
	}
}

// HolderStats is a point-in-time snapshot of a holder's counters.
type HolderStats struct {
	Endpoint        string
	Status          Status
	Attempt         int   // Current reconnect attempt (0 when not retrying)
	Connects        int64 // Successful connects since creation
	Disconnects     int64 // Disconnect notifications handled
	LastConnectedAt time.Time
}
