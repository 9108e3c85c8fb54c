package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/surrealkit/keeper/internal/rpc"
)

// httpClient implements Client over the server's HTTP surface. The
// HTTP surface speaks JSON regardless of the configured codec and
// supports only a subset of RPC methods; liveness comes from polling
// the health endpoint instead of transport keepalives.
type httpClient struct {
	cfg    ClientConfig
	logger *slog.Logger
	hc     *http.Client
	base   *url.URL

	// Output channels
	notifications chan Notification
	errors        chan error
	done          chan struct{}

	// State
	mu        sync.RWMutex
	token     string
	namespace string
	database  string
	connected bool
	lastOKAt  time.Time
	closed    bool
}

func newHTTPClient(cfg ClientConfig, logger *slog.Logger) *httpClient {
	return &httpClient{
		cfg:           cfg,
		logger:        logger,
		hc:            &http.Client{},
		notifications: make(chan Notification, cfg.BufferSize),
		errors:        make(chan error, 1),
	}
}

// Connect verifies the endpoint is reachable, signs in and starts the
// health poll loop.
func (c *httpClient) Connect(ctx context.Context) error {
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

	base, err := url.Parse(strings.TrimSuffix(c.cfg.URL, "/"))
	if err != nil {
		return fmt.Errorf("parse connection url: %w", err)
	}
	c.base = base

	c.mu.Lock()
	c.namespace = c.cfg.Namespace
	c.database = c.cfg.Database
	c.mu.Unlock()

	if c.cfg.Credentials != nil {
		if err := c.signin(ctx); err != nil {
			return err
		}
	} else if err := c.checkHealth(ctx); err != nil {
		return fmt.Errorf("health check %s: %w", base, err)
	}

	c.mu.Lock()
	c.connected = true
	c.lastOKAt = time.Now()
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.healthLoop()

	c.logger.Debug("http endpoint connected", "url", base.String())

	return nil
}

// signin exchanges credentials for a bearer token.
func (c *httpClient) signin(ctx context.Context) error {
	creds := c.cfg.Credentials

	body, err := json.Marshal(creds.SigninVars())
	if err != nil {
		return fmt.Errorf("encode signin request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/signin", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("signin as %s: %w", creds.Identity(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("signin as %s: status %d", creds.Identity(), resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode signin response: %w", err)
	}

	c.mu.Lock()
	c.token = result.Token
	c.mu.Unlock()

	return nil
}

// Close stops the health loop. Safe to call more than once.
func (c *httpClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.markDisconnected()
	c.hc.CloseIdleConnections()

	return nil
}

// Call maps a subset of RPC methods onto the HTTP surface: ping,
// query, use and signin. Anything else needs the WebSocket transport.
func (c *httpClient) Call(ctx context.Context, method string, params []any) (*rpc.Response, error) {
	c.mu.RLock()
	closed, connected := c.closed, c.connected
	c.mu.RUnlock()

	if closed {
		return nil, ErrAlreadyClosed
	}
	if !connected {
		return nil, ErrNotConnected
	}

	switch method {
	case "ping":
		if err := c.checkHealth(ctx); err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}
		return &rpc.Response{}, nil

	case "query":
		if len(params) == 0 {
			return nil, fmt.Errorf("query: missing statement")
		}
		stmt, ok := params[0].(string)
		if !ok {
			return nil, fmt.Errorf("query: statement must be a string, got %T", params[0])
		}
		return c.query(ctx, stmt)

	case "use":
		ns, db := useParams(params)
		c.mu.Lock()
		if ns != "" {
			c.namespace = ns
		}
		if db != "" {
			c.database = db
		}
		c.mu.Unlock()
		return &rpc.Response{}, nil

	case "signin":
		if c.cfg.Credentials == nil {
			return nil, fmt.Errorf("signin: no credentials configured")
		}
		if err := c.signin(ctx); err != nil {
			return nil, err
		}
		return &rpc.Response{}, nil

	default:
		return nil, fmt.Errorf("method %q not supported over http transport", method)
	}
}

// query posts one SurrealQL statement to the sql endpoint.
func (c *httpClient) query(ctx context.Context, stmt string) (*rpc.Response, error) {
	resp, err := c.do(ctx, http.MethodPost, "/sql", strings.NewReader(stmt))
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("query: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query: status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var result any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("query: decode response: %w", err)
	}

	return &rpc.Response{Result: result}, nil
}

// Notifications returns the notifications channel. The HTTP surface
// has no server push, so nothing is ever delivered on it.
func (c *httpClient) Notifications() <-chan Notification {
	return c.notifications
}

// Errors returns the errors channel.
func (c *httpClient) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current connection state.
func (c *httpClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *httpClient) markDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return
	}
	c.connected = false
	close(c.done)
}

func (c *httpClient) pushError(err error) {
	select {
	case c.errors <- err:
	default:
	}
}

// healthLoop polls the health endpoint and reports a stale connection
// when it stops answering.
func (c *httpClient) healthLoop() {
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
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
			err := c.checkHealth(ctx)
			cancel()

			if err == nil {
				c.mu.Lock()
				c.lastOKAt = time.Now()
				c.mu.Unlock()
				continue
			}

			c.logger.Debug("health poll failed", "error", err)

			c.mu.RLock()
			lastOK := c.lastOKAt
			c.mu.RUnlock()

			if time.Since(lastOK) > c.cfg.PingTimeout {
				c.logger.Warn("health endpoint unresponsive, connection stale",
					"last_ok", lastOK,
					"timeout", c.cfg.PingTimeout,
				)
				c.pushError(ErrStaleConnection)
				c.markDisconnected()
				return
			}
		}
	}
}

// checkHealth performs one probe of the health endpoint.
func (c *httpClient) checkHealth(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health status %d", resp.StatusCode)
	}
	return nil
}

// do issues one request with the namespace, database and auth headers
// the server expects.
func (c *httpClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	ns, db, token := c.namespace, c.database, c.token
	c.mu.RUnlock()

	req.Header.Set("Accept", "application/json")
	if ns != "" {
		req.Header.Set("NS", ns)
	}
	if db != "" {
		req.Header.Set("DB", db)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.hc.Do(req)
}

// useParams pulls the namespace and database strings out of a use
// call's parameter list.
func useParams(params []any) (ns, db string) {
	if len(params) > 0 {
		ns, _ = params[0].(string)
	}
	if len(params) > 1 {
		db, _ = params[1].(string)
	}
	return ns, db
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
