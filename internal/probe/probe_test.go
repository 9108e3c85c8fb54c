package probe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/surrealkit/keeper/internal/connection"
	"github.com/surrealkit/keeper/internal/rpc"
)

// gauge tracks the peak number of concurrent calls.
type gauge struct {
	inFlight atomic.Int32
	max      atomic.Int32
}

func (g *gauge) enter() {
	current := g.inFlight.Add(1)
	for {
		old := g.max.Load()
		if current <= old || g.max.CompareAndSwap(old, current) {
			break
		}
	}
}

func (g *gauge) exit() {
	g.inFlight.Add(-1)
}

// pingClient is a minimal connection.Client for probing.
type pingClient struct {
	delay    time.Duration
	failPing bool
	calls    atomic.Int32
	gauge    *gauge
}

func (c *pingClient) Connect(ctx context.Context) error { return nil }
func (c *pingClient) Close() error                      { return nil }
func (c *pingClient) IsConnected() bool                 { return true }

func (c *pingClient) Call(ctx context.Context, method string, params []any) (*rpc.Response, error) {
	c.calls.Add(1)
	if c.gauge != nil {
		c.gauge.enter()
		defer c.gauge.exit()
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.failPing {
		return nil, errors.New("ping failed")
	}
	return &rpc.Response{Result: "pong"}, nil
}

func (c *pingClient) Notifications() <-chan connection.Notification { return nil }
func (c *pingClient) Errors() <-chan error                          { return nil }

// staticSource returns a fixed list of holders.
type staticSource struct {
	holders []*connection.Holder
}

func (s *staticSource) Holders() []*connection.Holder {
	return s.holders
}

func newTestHolder(t *testing.T, name string, client *pingClient, dialErr error) *connection.Holder {
	t.Helper()

	cfg := connection.DefaultHolderConfig()
	cfg.Endpoint = name

	dial := func(ctx context.Context) (connection.Client, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return client, nil
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := connection.NewHolder(cfg, dial, logger)
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestProber_ProbeAll(t *testing.T) {
	source := &staticSource{holders: []*connection.Holder{
		newTestHolder(t, "a", &pingClient{}, nil),
		newTestHolder(t, "b", &pingClient{}, nil),
		newTestHolder(t, "c", &pingClient{}, nil),
	}}

	var mu sync.Mutex
	results := make(map[string]Result)
	handler := ResultHandlerFunc(func(res Result) error {
		mu.Lock()
		defer mu.Unlock()
		results[res.Endpoint] = res
		return nil
	})

	cfg := Config{
		Interval:    time.Hour, // Long interval, we'll trigger manually.
		Concurrency: 10,
		Timeout:     5 * time.Second,
	}

	p := New(cfg, source, handler, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.ctx = ctx

	p.probeAll()

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for _, name := range []string{"a", "b", "c"} {
		res, ok := results[name]
		if !ok {
			t.Fatalf("no result for endpoint %q", name)
		}
		if !res.Healthy {
			t.Errorf("endpoint %q unhealthy: %v", name, res.Err)
		}
		if res.CheckedAt.IsZero() {
			t.Errorf("endpoint %q has zero CheckedAt", name)
		}
	}
}

func TestProber_UnhealthyEndpoints(t *testing.T) {
	dialErr := errors.New("connection refused")
	source := &staticSource{holders: []*connection.Holder{
		newTestHolder(t, "up", &pingClient{}, nil),
		newTestHolder(t, "unreachable", nil, dialErr),
		newTestHolder(t, "broken", &pingClient{failPing: true}, nil),
	}}

	var mu sync.Mutex
	results := make(map[string]Result)
	handler := ResultHandlerFunc(func(res Result) error {
		mu.Lock()
		defer mu.Unlock()
		results[res.Endpoint] = res
		return nil
	})

	cfg := Config{
		Interval:    time.Hour,
		Concurrency: 10,
		Timeout:     5 * time.Second,
	}

	p := New(cfg, source, handler, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.ctx = context.Background()

	p.probeAll()

	mu.Lock()
	defer mu.Unlock()

	if !results["up"].Healthy {
		t.Errorf("up: unhealthy, err = %v", results["up"].Err)
	}

	res := results["unreachable"]
	if res.Healthy {
		t.Error("unreachable: reported healthy")
	}
	if !errors.Is(res.Err, dialErr) {
		t.Errorf("unreachable: err = %v, want dial error", res.Err)
	}

	res = results["broken"]
	if res.Healthy {
		t.Error("broken: reported healthy")
	}
	if res.Err == nil {
		t.Error("broken: err is nil")
	}
}

func TestProber_StartStop(t *testing.T) {
	client := &pingClient{}
	source := &staticSource{holders: []*connection.Holder{
		newTestHolder(t, "a", client, nil),
	}}

	var called atomic.Bool
	handler := ResultHandlerFunc(func(res Result) error {
		called.Store(true)
		return nil
	})

	cfg := Config{
		Interval:    50 * time.Millisecond,
		Concurrency: 10,
		Timeout:     5 * time.Second,
	}

	p := New(cfg, source, handler, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Wait for at least one probe cycle.
	time.Sleep(80 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if !called.Load() {
		t.Error("handler was never called")
	}
	if client.calls.Load() == 0 {
		t.Error("endpoint was never pinged")
	}
}

func TestProber_Concurrency(t *testing.T) {
	g := &gauge{}

	holders := make([]*connection.Holder, 0, 20)
	for i := 0; i < 20; i++ {
		client := &pingClient{delay: 30 * time.Millisecond, gauge: g}
		holders = append(holders, newTestHolder(t, "ep-"+string(rune('a'+i)), client, nil))
	}
	source := &staticSource{holders: holders}

	cfg := Config{
		Interval:    time.Hour,
		Concurrency: 5, // Limit to 5 concurrent.
		Timeout:     5 * time.Second,
	}

	p := New(cfg, source, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	p.ctx = ctx

	p.probeAll()

	if got := g.max.Load(); got > 5 {
		t.Errorf("max concurrent probes = %d, want <= 5", got)
	}
}
