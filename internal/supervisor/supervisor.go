package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/surrealkit/keeper/internal/auth"
	"github.com/surrealkit/keeper/internal/connection"
	"github.com/surrealkit/keeper/internal/rpc"
)

// Endpoint describes one server the supervisor keeps a connection to.
type Endpoint struct {
	Name          string
	URL           string
	Namespace     string
	Database      string
	Username      string
	Password      string
	Scope         string
	Codec         string // "json" or "cbor", empty selects JSON
	AutoReconnect bool
}

// Config holds tuning applied to every endpoint's holder. Zero fields
// keep the holder defaults.
type Config struct {
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
	ConnectTimeout       time.Duration
	PingInterval         time.Duration
	PingTimeout          time.Duration
	EventBuffer          int
}

// EventSink receives connection lifecycle events from all holders.
type EventSink interface {
	HandleEvent(ev connection.Event)
}

// EventSinkFunc is a function adapter for EventSink.
type EventSinkFunc func(connection.Event)

func (f EventSinkFunc) HandleEvent(ev connection.Event) {
	f(ev)
}

// Supervisor owns one connection holder per configured endpoint and
// fans their lifecycle events in to the registered sinks.
type Supervisor struct {
	cfg    Config
	logger *slog.Logger

	holders map[string]*connection.Holder
	order   []string // endpoint names in configuration order

	sinks []EventSink

	wg sync.WaitGroup
}

// New resolves every endpoint's credentials and builds its holder. A
// credential combination matching no known shape fails construction.
func New(cfg Config, endpoints []Endpoint, logger *slog.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(endpoints) == 0 {
		return nil, errors.New("at least one endpoint is required")
	}

	s := &Supervisor{
		cfg:     cfg,
		logger:  logger,
		holders: make(map[string]*connection.Holder, len(endpoints)),
	}

	for _, ep := range endpoints {
		if _, ok := s.holders[ep.Name]; ok {
			s.closeHolders()
			return nil, fmt.Errorf("endpoint %q: duplicate name", ep.Name)
		}

		h, err := s.buildHolder(ep)
		if err != nil {
			s.closeHolders()
			return nil, fmt.Errorf("endpoint %q: %w", ep.Name, err)
		}

		s.holders[ep.Name] = h
		s.order = append(s.order, ep.Name)
	}

	return s, nil
}

// AddSink registers a sink for lifecycle events. Must be called
// before Start.
func (s *Supervisor) AddSink(sink EventSink) {
	s.sinks = append(s.sinks, sink)
}

// Start launches an event watcher per holder. Connections themselves
// are established lazily, on the first Get against each holder.
func (s *Supervisor) Start(ctx context.Context) error {
	for _, name := range s.order {
		h := s.holders[name]
		s.wg.Add(1)
		go s.watchEvents(h)
	}

	s.logger.Info("supervisor started", "endpoints", len(s.order))
	return nil
}

// Stop closes every holder and waits for the event watchers to drain.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.closeHolders()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("supervisor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Holders returns the managed holders in configuration order.
func (s *Supervisor) Holders() []*connection.Holder {
	out := make([]*connection.Holder, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.holders[name])
	}
	return out
}

// Holder returns the holder for the named endpoint.
func (s *Supervisor) Holder(name string) (*connection.Holder, bool) {
	h, ok := s.holders[name]
	return h, ok
}

// Stats returns a per-endpoint snapshot, in configuration order.
func (s *Supervisor) Stats() []connection.HolderStats {
	stats := make([]connection.HolderStats, 0, len(s.order))
	for _, name := range s.order {
		stats = append(stats, s.holders[name].Stats())
	}
	return stats
}

// watchEvents forwards one holder's events until its channel closes.
func (s *Supervisor) watchEvents(h *connection.Holder) {
	defer s.wg.Done()

	for ev := range h.Events() {
		s.dispatch(ev)
	}
}

func (s *Supervisor) dispatch(ev connection.Event) {
	s.logger.Debug("connection event",
		"endpoint", ev.Endpoint,
		"type", ev.Type,
		"attempt", ev.Attempt,
	)

	for _, sink := range s.sinks {
		sink.HandleEvent(ev)
	}
}

func (s *Supervisor) closeHolders() {
	for _, name := range s.order {
		if err := s.holders[name].Close(); err != nil {
			s.logger.Warn("closing holder", "endpoint", name, "err", err)
		}
	}
}

// buildHolder wires one endpoint: credentials, transport dialer, holder.
func (s *Supervisor) buildHolder(ep Endpoint) (*connection.Holder, error) {
	var creds auth.Credentials
	if ep.Username != "" || ep.Password != "" || ep.Scope != "" {
		resolved, err := auth.Resolve(auth.Fields{
			Username:  ep.Username,
			Password:  ep.Password,
			Namespace: ep.Namespace,
			Database:  ep.Database,
			Scope:     ep.Scope,
		})
		if err != nil {
			return nil, err
		}
		creds = resolved
	}

	codec, err := rpc.ByName(ep.Codec)
	if err != nil {
		return nil, err
	}

	clientCfg := connection.DefaultClientConfig()
	clientCfg.URL = ep.URL
	clientCfg.Namespace = ep.Namespace
	clientCfg.Database = ep.Database
	clientCfg.Credentials = creds
	clientCfg.Codec = codec
	if s.cfg.PingInterval > 0 {
		clientCfg.PingInterval = s.cfg.PingInterval
	}
	if s.cfg.PingTimeout > 0 {
		clientCfg.PingTimeout = s.cfg.PingTimeout
	}

	holderCfg := connection.DefaultHolderConfig()
	holderCfg.Endpoint = ep.Name
	holderCfg.AutoReconnect = ep.AutoReconnect
	if creds != nil {
		holderCfg.Identity = creds.Identity()
		holderCfg.Level = string(creds.Level())
	}
	if s.cfg.ReconnectBaseDelay > 0 {
		holderCfg.ReconnectBaseDelay = s.cfg.ReconnectBaseDelay
	}
	if s.cfg.MaxReconnectAttempts > 0 {
		holderCfg.MaxReconnectAttempts = s.cfg.MaxReconnectAttempts
	}
	if s.cfg.ConnectTimeout > 0 {
		holderCfg.ConnectTimeout = s.cfg.ConnectTimeout
	}
	if s.cfg.EventBuffer > 0 {
		holderCfg.EventBuffer = s.cfg.EventBuffer
	}

	dial := connection.Dialer(clientCfg, s.logger.With("endpoint", ep.Name))
	return connection.NewHolder(holderCfg, dial, s.logger)
}
