package probe

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/surrealkit/keeper/internal/connection"
)

// HolderSource provides the connection holders to probe.
type HolderSource interface {
	Holders() []*connection.Holder
}

// Result is the outcome of probing a single endpoint.
type Result struct {
	Endpoint  string
	Healthy   bool
	Latency   time.Duration // Round trip for acquire plus ping, zero when unhealthy
	Err       error         // Cause, when unhealthy
	CheckedAt time.Time
}

// ResultHandler receives probe results.
type ResultHandler interface {
	HandleResult(res Result) error
}

// ResultHandlerFunc is a function adapter for ResultHandler.
type ResultHandlerFunc func(Result) error

func (f ResultHandlerFunc) HandleResult(res Result) error {
	return f(res)
}

// Config holds prober configuration.
type Config struct {
	Interval    time.Duration // Probe interval (default: 30s)
	Concurrency int           // Max concurrent probes (default: 4)
	Timeout     time.Duration // Per-probe timeout (default: 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		Concurrency: 4,
		Timeout:     5 * time.Second,
	}
}

// Prober periodically pings every managed endpoint. Each probe asks
// the holder for its connection first, so probing a downed endpoint
// also retriggers connecting to it.
type Prober struct {
	cfg     Config
	source  HolderSource
	handler ResultHandler
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Prober. handler may be nil.
func New(cfg Config, source HolderSource, handler ResultHandler, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		cfg:     cfg,
		source:  source,
		handler: handler,
		logger:  logger,
	}
}

// Start begins the probe loop.
func (p *Prober) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("prober started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the prober.
func (p *Prober) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("prober stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main probe loop.
func (p *Prober) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Probe immediately on start.
	p.probeAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.probeAll()
		}
	}
}

// probeAll pings all endpoints concurrently.
func (p *Prober) probeAll() {
	start := time.Now()

	holders := p.source.Holders()
	if len(holders) == 0 {
		p.logger.Debug("no endpoints to probe")
		return
	}

	// Semaphore for bounded concurrency.
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var healthy, unhealthy atomic.Int64

	for _, holder := range holders {
		wg.Add(1)
		go func(h *connection.Holder) {
			defer wg.Done()

			// Acquire semaphore slot.
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			res := p.probeOne(h)
			if res.Healthy {
				healthy.Add(1)
			} else {
				p.logger.Warn("endpoint probe failed",
					"endpoint", res.Endpoint,
					"err", res.Err,
				)
				unhealthy.Add(1)
			}

			if p.handler != nil {
				if err := p.handler.HandleResult(res); err != nil {
					p.logger.Warn("probe handler failed",
						"endpoint", res.Endpoint,
						"err", err,
					)
				}
			}
		}(holder)
	}

	wg.Wait()

	p.logger.Info("probe cycle complete",
		"endpoints", len(holders),
		"healthy", healthy.Load(),
		"unhealthy", unhealthy.Load(),
		"duration", time.Since(start),
	)
}

// probeOne acquires the holder's connection and pings over it.
func (p *Prober) probeOne(h *connection.Holder) Result {
	res := Result{Endpoint: h.Endpoint(), CheckedAt: time.Now()}

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	start := time.Now()

	client, err := h.Get(ctx)
	if err != nil {
		res.Err = err
		return res
	}

	if _, err := client.Call(ctx, "ping", nil); err != nil {
		res.Err = err
		return res
	}

	res.Healthy = true
	res.Latency = time.Since(start)
	return res
}
