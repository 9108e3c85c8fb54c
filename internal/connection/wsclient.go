package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/surrealkit/keeper/internal/rpc"
)

// wsClient implements Client over the WebSocket RPC transport.
type wsClient struct {
	cfg     ClientConfig
	logger  *slog.Logger
	msgType int // websocket frame type matching the codec

	conn *websocket.Conn

	// Output channels
	notifications chan Notification
	errors        chan error
	done          chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	pending    map[string]chan *rpc.Response
	connected  bool
	lastBeatAt time.Time
	closed     bool
}

func newWSClient(cfg ClientConfig, logger *slog.Logger) *wsClient {
	msgType := websocket.TextMessage
	if cfg.Codec.Name() != "json" {
		msgType = websocket.BinaryMessage
	}

	return &wsClient{
		cfg:           cfg,
		logger:        logger,
		msgType:       msgType,
		notifications: make(chan Notification, cfg.BufferSize),
		errors:        make(chan error, 1),
		pending:       make(map[string]chan *rpc.Response),
	}
}

// Connect dials the RPC endpoint, starts the read and heartbeat loops
// and performs the signin handshake.
func (c *wsClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	target, err := rpcURL(c.cfg.URL)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{c.cfg.Codec.Subprotocol()},
	}

	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastBeatAt = time.Now()
	c.done = make(chan struct{})
	c.mu.Unlock()

	// Server pings and pong answers both count as signs of life.
	conn.SetPingHandler(func(data string) error {
		c.markAlive()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})
	conn.SetPongHandler(func(string) error {
		c.markAlive()
		return nil
	})

	go c.readLoop()
	go c.heartbeatLoop()

	if err := c.handshake(ctx); err != nil {
		c.markDisconnected()
		conn.Close()
		return err
	}

	c.logger.Debug("websocket connected",
		"url", target,
		"codec", c.cfg.Codec.Name(),
	)

	return nil
}

// handshake signs in and selects the configured namespace and
// database.
func (c *wsClient) handshake(ctx context.Context) error {
	if creds := c.cfg.Credentials; creds != nil {
		if _, err := c.Call(ctx, "signin", []any{creds.SigninVars()}); err != nil {
			return fmt.Errorf("signin as %s: %w", creds.Identity(), err)
		}
	}

	if c.cfg.Namespace == "" && c.cfg.Database == "" {
		return nil
	}

	params := []any{nullable(c.cfg.Namespace), nullable(c.cfg.Database)}
	if _, err := c.Call(ctx, "use", params); err != nil {
		return fmt.Errorf("use %s/%s: %w", c.cfg.Namespace, c.cfg.Database, err)
	}
	return nil
}

// Close gracefully closes the connection.
func (c *wsClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	c.markDisconnected()

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}

	return nil
}

// Call sends one request frame and waits for the matching response.
// A response carrying an error object is returned as *rpc.Error.
func (c *wsClient) Call(ctx context.Context, method string, params []any) (*rpc.Response, error) {
	req := rpc.NewRequest(method, params)
	data, err := c.cfg.Codec.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}

	ch := make(chan *rpc.Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrAlreadyClosed
	}
	if !c.connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	done := c.done
	c.pending[req.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	if err := c.write(data); err != nil {
		return nil, fmt.Errorf("send %s request: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
		return nil, ErrNotConnected
	}
}

// write serializes frame writes; gorilla connections allow only one
// concurrent writer.
func (c *wsClient) write(data []byte) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(c.msgType, data)
}

// Notifications returns the notifications channel.
func (c *wsClient) Notifications() <-chan Notification {
	return c.notifications
}

// Errors returns the errors channel.
func (c *wsClient) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current connection state.
func (c *wsClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *wsClient) markAlive() {
	c.mu.Lock()
	c.lastBeatAt = time.Now()
	c.mu.Unlock()
}

// markDisconnected flips the client to disconnected exactly once,
// releasing every waiter blocked on the done channel.
func (c *wsClient) markDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return
	}
	c.connected = false
	close(c.done)
}

// pushError reports one connection error without blocking.
func (c *wsClient) pushError(err error) {
	select {
	case c.errors <- err:
	default:
	}
}

// readLoop decodes incoming frames and routes them to the pending call
// they answer, or to the notifications channel when they answer none.
func (c *wsClient) readLoop() {
	for {
		_, data, err := c.readNext()
		receivedAt := time.Now()

		if err != nil {
			// Ignore errors after Close() is called
			c.mu.RLock()
			closed := c.closed
			c.mu.RUnlock()
			if !closed {
				c.pushError(err)
			}
			c.markDisconnected()
			return
		}

		var resp rpc.Response
		if err := c.cfg.Codec.Unmarshal(data, &resp); err != nil {
			c.logger.Warn("dropping undecodable frame", "error", err)
			continue
		}

		c.dispatch(&resp, receivedAt)
	}
}

func (c *wsClient) readNext() (int, []byte, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	return conn.ReadMessage()
}

// dispatch hands a decoded frame to its waiting caller, or publishes
// it as a notification when no call claims it.
func (c *wsClient) dispatch(resp *rpc.Response, receivedAt time.Time) {
	if resp.ID != "" {
		c.mu.RLock()
		ch, ok := c.pending[resp.ID]
		c.mu.RUnlock()

		if ok {
			select {
			case ch <- resp:
			default:
			}
			return
		}
		c.logger.Debug("response for unknown request", "id", resp.ID)
		return
	}

	n := Notification{Payload: *resp, ReceivedAt: receivedAt}
	select {
	case c.notifications <- n:
	default:
		c.logger.Warn("notification buffer full, dropping frame")
	}
}

// heartbeatLoop pings the server and reports a stale connection when
// nothing answers within the ping timeout.
func (c *wsClient) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	c.mu.RLock()
	done := c.done
	c.mu.RUnlock()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			lastBeat := c.lastBeatAt
			c.mu.RUnlock()

			if conn != nil {
				deadline := time.Now().Add(c.cfg.WriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
					c.logger.Debug("failed to send ping", "error", err)
				}
			}

			if time.Since(lastBeat) > c.cfg.PingTimeout {
				c.logger.Warn("no heartbeat answer, connection stale",
					"last_beat", lastBeat,
					"timeout", c.cfg.PingTimeout,
				)
				c.pushError(ErrStaleConnection)
				c.markDisconnected()
				return
			}
		}
	}
}

// rpcURL normalizes an endpoint URL to the server's RPC path.
func rpcURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse connection url: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/rpc") {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/rpc"
	}
	return u.String(), nil
}

// nullable maps an unset string to an explicit null parameter.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
