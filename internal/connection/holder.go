package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Holder owns at most one live connection to a single endpoint. It
// hands the connection out on demand, dials lazily on first use and,
// when the connection drops, runs a bounded retry sequence whose delay
// doubles after every failed attempt. Target and credentials are fixed
// at construction; only the handle itself changes over the holder's
// lifetime.
type Holder struct {
	cfg    HolderConfig
	dial   DialFunc
	clock  Clock
	logger *slog.Logger

	// flight collapses concurrent connect attempts into one dial.
	flight singleflight.Group

	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu              sync.Mutex
	handle          Client
	status          Status
	attempt         int
	connects        int64
	disconnects     int64
	lastConnectedAt time.Time
	closed          bool
	eventsClosed    bool
}

// NewHolder creates a holder for one endpoint. The dial function is
// called for the initial connect and for every retry.
func NewHolder(cfg HolderConfig, dial DialFunc, logger *slog.Logger) (*Holder, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint name is required")
	}
	if dial == nil {
		return nil, errors.New("dial function is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = withHolderDefaults(cfg)

	ctx, cancel := context.WithCancel(context.Background())

	return &Holder{
		cfg:    cfg,
		dial:   dial,
		clock:  systemClock{},
		logger: logger.With("endpoint", cfg.Endpoint),
		events: make(chan Event, cfg.EventBuffer),
		ctx:    ctx,
		cancel: cancel,
		status: StatusDisconnected,
	}, nil
}

// withHolderDefaults fills zero-valued fields from DefaultHolderConfig.
// AutoReconnect is taken as given; DefaultHolderConfig turns it on.
func withHolderDefaults(cfg HolderConfig) HolderConfig {
	def := DefaultHolderConfig()
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}
	return cfg
}

// Get returns the live connection, dialing one if needed. Repeated
// calls while connected return the same handle without touching the
// network. Concurrent calls share a single connect attempt, and a
// failed attempt's error reaches every caller unchanged.
func (h *Holder) Get(ctx context.Context) (Client, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrAlreadyClosed
	}
	if h.status == StatusConnected && h.handle != nil {
		c := h.handle
		h.mu.Unlock()
		h.debugState("reusing live connection")
		return c, nil
	}
	h.mu.Unlock()

	v, err, _ := h.flight.Do("connect", func() (any, error) {
		return h.establish(ctx, false)
	})
	if err != nil {
		return nil, err
	}

	h.debugState("connection established")
	return v.(Client), nil
}

// Status returns the holder's current lifecycle status.
func (h *Holder) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Stats returns a snapshot of the holder's counters.
func (h *Holder) Stats() HolderStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HolderStats{
		Endpoint:        h.cfg.Endpoint,
		Status:          h.status,
		Attempt:         h.attempt,
		Connects:        h.connects,
		Disconnects:     h.disconnects,
		LastConnectedAt: h.lastConnectedAt,
	}
}

// Events returns the lifecycle event channel. The channel is closed
// when the holder closes; events are dropped rather than block the
// holder when the buffer is full.
func (h *Holder) Events() <-chan Event {
	return h.events
}

// Endpoint returns the holder's endpoint name.
func (h *Holder) Endpoint() string {
	return h.cfg.Endpoint
}

// Close tears the holder down: pending retries are abandoned, the live
// handle is closed and the event channel is closed. Safe to call more
// than once.
func (h *Holder) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.status = StatusClosed
	handle := h.handle
	h.handle = nil
	h.mu.Unlock()

	h.cancel()
	if handle != nil {
		handle.Close()
	}
	h.wg.Wait()

	h.mu.Lock()
	h.eventsClosed = true
	h.mu.Unlock()
	close(h.events)

	return nil
}

// establish performs one connect attempt and installs the resulting
// handle. Only one establish runs at a time; Get and the retry loop
// both funnel through the singleflight group.
func (h *Holder) establish(ctx context.Context, retry bool) (Client, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrAlreadyClosed
	}
	if h.status == StatusConnected && h.handle != nil {
		c := h.handle
		h.mu.Unlock()
		return c, nil
	}
	prev := h.status
	if retry {
		h.status = StatusReconnecting
	} else {
		h.status = StatusConnecting
	}
	attempt := h.attempt
	h.mu.Unlock()

	dctx := ctx
	if h.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, h.cfg.ConnectTimeout)
		defer cancel()
	}

	c, err := h.dial(dctx)
	if err != nil {
		h.mu.Lock()
		if !h.closed && h.status != StatusConnected {
			h.status = prev
		}
		h.mu.Unlock()

		h.logger.Debug("connect failed", "attempt", attempt, "error", err)
		h.emit(Event{Type: EventConnectFailed, Attempt: attempt, Err: err})
		return nil, err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.Close()
		return nil, ErrAlreadyClosed
	}
	old := h.handle
	h.handle = c
	h.status = StatusConnected
	h.attempt = 0
	h.connects++
	h.lastConnectedAt = h.clock.Now()
	h.wg.Add(1)
	h.mu.Unlock()

	if old != nil {
		old.Close()
	}
	go h.watch(c)

	if !retry {
		h.emit(Event{Type: EventConnected})
	}
	return c, nil
}

// watch waits for the handle to report a connection error and feeds it
// into the disconnect transition. Each installed handle gets its own
// watcher.
func (h *Holder) watch(c Client) {
	defer h.wg.Done()

	select {
	case <-h.ctx.Done():
		return
	case err, ok := <-c.Errors():
		if !ok {
			return
		}
		h.handleDisconnect(c, err)
	}
}

// handleDisconnect reacts to a lost connection. Notices from handles
// that have already been replaced are ignored. In automatic mode the
// retry loop is started; in manual mode the holder rests until the
// next Get.
func (h *Holder) handleDisconnect(c Client, cause error) {
	h.mu.Lock()
	if h.closed || c != h.handle {
		h.mu.Unlock()
		return
	}
	h.disconnects++
	h.attempt = 0
	next := nextStatus(h.cfg.AutoReconnect)
	h.status = next
	if next == StatusReconnecting {
		h.wg.Add(1)
	}
	h.mu.Unlock()

	c.Close()

	h.logger.Warn("connection lost",
		"error", cause,
		"auto_reconnect", h.cfg.AutoReconnect,
	)
	h.emit(Event{Type: EventDisconnected, Err: cause})

	if next == StatusReconnecting {
		go h.reconnectLoop()
	}
}

// nextStatus is the disconnect transition: automatic holders move to
// reconnecting, manual holders rest at disconnected.
func nextStatus(autoReconnect bool) Status {
	if autoReconnect {
		return StatusReconnecting
	}
	return StatusDisconnected
}

// reconnectLoop runs the bounded retry sequence. The wait before
// attempt n is base * 2^(n-1); after the last failed attempt the
// holder parks at exhausted and reports it as an event, leaving later
// Get calls free to try again.
func (h *Holder) reconnectLoop() {
	defer h.wg.Done()

	bo := newBackoff(h.cfg.ReconnectBaseDelay)

	for attempt := 1; attempt <= h.cfg.MaxReconnectAttempts; attempt++ {
		delay := bo.Next()

		h.mu.Lock()
		if h.closed || h.status == StatusConnected {
			h.mu.Unlock()
			return
		}
		h.attempt = attempt
		h.mu.Unlock()

		h.logger.Info("scheduling reconnect", "attempt", attempt, "delay", delay)
		h.emit(Event{Type: EventReconnecting, Attempt: attempt, Delay: delay})

		select {
		case <-h.ctx.Done():
			return
		case <-h.clock.After(delay):
		}

		h.mu.Lock()
		if h.closed || h.status == StatusConnected {
			h.mu.Unlock()
			return
		}
		h.mu.Unlock()

		_, err, _ := h.flight.Do("connect", func() (any, error) {
			return h.establish(h.ctx, true)
		})
		if err == nil {
			h.logger.Info("reconnected", "attempt", attempt)
			h.emit(Event{Type: EventReconnected, Attempt: attempt})
			return
		}

		h.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.status = StatusExhausted
	h.mu.Unlock()

	h.logger.Error("reconnect attempts exhausted",
		"attempts", h.cfg.MaxReconnectAttempts,
	)
	h.emit(Event{
		Type:    EventReconnectExhausted,
		Attempt: h.cfg.MaxReconnectAttempts,
		Err:     ErrReconnectExhausted,
	})
}

// emit publishes a lifecycle event without blocking the holder.
func (h *Holder) emit(ev Event) {
	ev.Endpoint = h.cfg.Endpoint
	if ev.At.IsZero() {
		ev.At = h.clock.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.eventsClosed {
		return
	}
	select {
	case h.events <- ev:
	default:
		h.logger.Debug("event buffer full, dropping event", "type", ev.Type)
	}
}

// debugState logs the holder's current state line. Visible only at
// debug level.
func (h *Holder) debugState(msg string) {
	h.logger.Debug(msg,
		"status", h.Status().String(),
		"identity", h.cfg.Identity,
		"level", h.cfg.Level,
	)
}
