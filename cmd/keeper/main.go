package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/surrealkit/keeper/internal/config"
	"github.com/surrealkit/keeper/internal/connection"
	"github.com/surrealkit/keeper/internal/database"
	"github.com/surrealkit/keeper/internal/journal"
	"github.com/surrealkit/keeper/internal/probe"
	"github.com/surrealkit/keeper/internal/supervisor"
	"github.com/surrealkit/keeper/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/keeper.yaml", "path to config file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting keeper",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"environment", cfg.Instance.Environment,
		"endpoints", len(cfg.Endpoints),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Build the supervisor with one holder per endpoint
	sup, err := supervisor.New(supervisorConfig(cfg.Holder), endpoints(cfg.Endpoints), logger)
	if err != nil {
		logger.Error("failed to build supervisor", "error", err)
		os.Exit(1)
	}

	// Connect the event journal when a database is configured
	var jr *journal.Journal
	if cfg.Journal.Enabled() {
		logger.Info("connecting to journal database",
			"host", cfg.Journal.Database.Host,
			"port", cfg.Journal.Database.Port,
			"database", cfg.Journal.Database.Name,
		)

		pool, err := database.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			logger.Error("failed to connect to journal database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		jr = journal.New(journal.Config{
			Instance:      cfg.Instance.ID,
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			BufferSize:    cfg.Journal.BufferSize,
		}, pool, logger)

		if err := jr.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare journal schema", "error", err)
			os.Exit(1)
		}

		sup.AddSink(supervisor.EventSinkFunc(jr.Record))
		logger.Info("journal database connected")
	} else {
		logger.Info("journal disabled (no database configured)")
	}

	// Latest probe results feed the health endpoint
	probes := newProbeState()

	prober := probe.New(probe.Config{
		Interval:    cfg.Probe.Interval,
		Concurrency: cfg.Probe.Concurrency,
		Timeout:     cfg.Probe.Timeout,
	}, sup, probes, logger)

	// Start health server early so endpoints can be watched during startup
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(sup, jr, probes),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Start components
	if jr != nil {
		if err := jr.Start(ctx); err != nil {
			logger.Error("failed to start journal", "error", err)
			os.Exit(1)
		}
	}
	if err := sup.Start(ctx); err != nil {
		logger.Error("failed to start supervisor", "error", err)
		os.Exit(1)
	}
	if err := prober.Start(ctx); err != nil {
		logger.Error("failed to start prober", "error", err)
		os.Exit(1)
	}

	logger.Info("keeper running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Reverse of start order: prober first, then holders, then the
	// journal so it flushes the final events.
	if err := prober.Stop(shutdownCtx); err != nil {
		logger.Warn("prober stop", "error", err)
	}
	if err := sup.Stop(shutdownCtx); err != nil {
		logger.Warn("supervisor stop", "error", err)
	}
	if jr != nil {
		if err := jr.Stop(shutdownCtx); err != nil {
			logger.Warn("journal stop", "error", err)
		}
	}
	healthServer.Shutdown(shutdownCtx)

	logger.Info("keeper stopped")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// endpoints maps endpoint configs to supervisor endpoints.
func endpoints(eps []config.EndpointConfig) []supervisor.Endpoint {
	out := make([]supervisor.Endpoint, 0, len(eps))
	for _, ep := range eps {
		out = append(out, supervisor.Endpoint{
			Name:          ep.Name,
			URL:           ep.URL,
			Namespace:     ep.Namespace,
			Database:      ep.Database,
			Username:      ep.Username,
			Password:      ep.Password,
			Scope:         ep.Scope,
			Codec:         ep.Codec,
			AutoReconnect: ep.AutoReconnectEnabled(),
		})
	}
	return out
}

func supervisorConfig(h config.HolderConfig) supervisor.Config {
	return supervisor.Config{
		ReconnectBaseDelay:   h.ReconnectBaseDelay,
		MaxReconnectAttempts: h.MaxReconnectAttempts,
		ConnectTimeout:       h.ConnectTimeout,
		PingInterval:         h.PingInterval,
		PingTimeout:          h.PingTimeout,
		EventBuffer:          h.EventBuffer,
	}
}

// probeState remembers the latest probe result per endpoint.
type probeState struct {
	mu      sync.Mutex
	results map[string]probe.Result
}

func newProbeState() *probeState {
	return &probeState{results: make(map[string]probe.Result)}
}

func (s *probeState) HandleResult(res probe.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[res.Endpoint] = res
	return nil
}

func (s *probeState) get(endpoint string) (probe.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[endpoint]
	return res, ok
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(sup *supervisor.Supervisor, jr *journal.Journal, probes *probeState) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status    string         `json:"status"`
			Endpoints map[string]any `json:"endpoints"`
			Journal   map[string]any `json:"journal,omitempty"`
		}{
			Status:    "healthy",
			Endpoints: make(map[string]any),
		}

		stats := sup.Stats()
		connected := 0
		for _, st := range stats {
			entry := map[string]any{
				"status":      st.Status.String(),
				"connects":    st.Connects,
				"disconnects": st.Disconnects,
			}
			if st.Attempt > 0 {
				entry["attempt"] = st.Attempt
			}
			if res, ok := probes.get(st.Endpoint); ok {
				entry["probe"] = map[string]any{
					"healthy":    res.Healthy,
					"latency_ms": res.Latency.Milliseconds(),
					"checked_at": res.CheckedAt.UTC().Format(time.RFC3339),
				}
			}
			health.Endpoints[st.Endpoint] = entry

			if st.Status == connection.StatusConnected {
				connected++
			}
		}

		if connected == 0 {
			health.Status = "unhealthy"
		} else if connected < len(stats) {
			health.Status = "degraded"
		}

		if jr != nil {
			js := jr.Stats()
			health.Journal = map[string]any{
				"inserts":   js.Inserts,
				"conflicts": js.Conflicts,
				"errors":    js.Errors,
				"queued":    js.Queued,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"endpoints": sup.Stats(),
		})
	})

	return mux
}
