// conntest dials a single endpoint, verifies signin and ping, and
// optionally watches the connection lifecycle from the console.
// Usage: go run ./cmd/conntest -url ws://localhost:8000 -user root -pass root -watch
//
// Flags left unset fall back to the environment:
//
//	SDB_URL        - endpoint URL (ws://, wss://, http:// or https://)
//	SDB_NAMESPACE  - namespace to use
//	SDB_DATABASE   - database to use
//	SDB_USERNAME   - signin username
//	SDB_PASSWORD   - signin password
//	SDB_SCOPE      - scope for scoped access
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/surrealkit/keeper/internal/auth"
	"github.com/surrealkit/keeper/internal/config"
	"github.com/surrealkit/keeper/internal/connection"
	"github.com/surrealkit/keeper/internal/rpc"
)

func main() {
	url := flag.String("url", "", "endpoint URL")
	namespace := flag.String("namespace", "", "namespace to use")
	db := flag.String("db", "", "database to use")
	user := flag.String("user", "", "signin username")
	pass := flag.String("pass", "", "signin password")
	scope := flag.String("scope", "", "scope for scoped access")
	codecName := flag.String("codec", "", "wire codec (json or cbor)")
	watch := flag.Bool("watch", false, "keep running and print lifecycle events")
	timeout := flag.Duration("timeout", 10*time.Second, "connect timeout")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Environment supplies whatever the flags leave unset
	ep, _ := config.FromEnv()
	override(&ep.URL, *url)
	override(&ep.Namespace, *namespace)
	override(&ep.Database, *db)
	override(&ep.Username, *user)
	override(&ep.Password, *pass)
	override(&ep.Scope, *scope)
	override(&ep.Codec, *codecName)

	if ep.URL == "" {
		fmt.Fprintln(os.Stderr, "no endpoint: pass -url or set SDB_URL")
		os.Exit(2)
	}

	// Resolve the credential shape up front so misconfigurations fail
	// loudly instead of at signin
	var creds auth.Credentials
	if ep.Username != "" || ep.Password != "" || ep.Scope != "" {
		var err error
		creds, err = auth.Resolve(auth.Fields{
			Username:  ep.Username,
			Password:  ep.Password,
			Namespace: ep.Namespace,
			Database:  ep.Database,
			Scope:     ep.Scope,
		})
		if err != nil {
			logger.Error("cannot resolve credentials", "error", err)
			os.Exit(1)
		}
	}

	codec, err := rpc.ByName(ep.Codec)
	if err != nil {
		logger.Error("unknown codec", "error", err)
		os.Exit(1)
	}

	clientCfg := connection.DefaultClientConfig()
	clientCfg.URL = ep.URL
	clientCfg.Namespace = ep.Namespace
	clientCfg.Database = ep.Database
	clientCfg.Credentials = creds
	clientCfg.Codec = codec

	identity, level := "anonymous", "none"
	if creds != nil {
		identity, level = creds.Identity(), string(creds.Level())
	}

	holderCfg := connection.DefaultHolderConfig()
	holderCfg.Endpoint = "conntest"
	holderCfg.Identity = identity
	holderCfg.Level = level
	holderCfg.ConnectTimeout = *timeout

	holder, err := connection.NewHolder(holderCfg, connection.Dialer(clientCfg, logger), logger)
	if err != nil {
		logger.Error("cannot build holder", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	// Connect and ping
	start := time.Now()

	dialCtx, dialCancel := context.WithTimeout(ctx, *timeout)
	client, err := holder.Get(dialCtx)
	if err != nil {
		dialCancel()
		logger.Error("connect failed", "url", ep.URL, "error", err)
		os.Exit(1)
	}

	if _, err := client.Call(dialCtx, "ping", nil); err != nil {
		dialCancel()
		logger.Error("ping failed", "error", err)
		os.Exit(1)
	}
	dialCancel()

	fmt.Printf("[OK] url=%s identity=%s level=%s latency=%s\n",
		ep.URL, identity, level, time.Since(start).Round(time.Millisecond))

	if !*watch {
		holder.Close()
		return
	}

	// Print lifecycle events as they happen
	go func() {
		for ev := range holder.Events() {
			switch {
			case ev.Err != nil:
				fmt.Printf("[EVENT] %s attempt=%d err=%v\n", ev.Type, ev.Attempt, ev.Err)
			case ev.Delay > 0:
				fmt.Printf("[EVENT] %s attempt=%d delay=%s\n", ev.Type, ev.Attempt, ev.Delay)
			default:
				fmt.Printf("[EVENT] %s\n", ev.Type)
			}
		}
	}()

	// Print server-pushed notifications, re-acquiring the connection
	// whenever it is replaced
	go printNotifications(ctx, holder)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := holder.Stats()
				logger.Info("stats",
					"status", st.Status.String(),
					"connects", st.Connects,
					"disconnects", st.Disconnects,
					"attempt", st.Attempt,
				)
			}
		}
	}()

	logger.Info("watching - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	holder.Close()
	logger.Info("shutdown complete")
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// printNotifications follows the holder's current connection and dumps
// whatever the server pushes.
func printNotifications(ctx context.Context, holder *connection.Holder) {
	for {
		client, err := holder.Get(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

	watch:
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-client.Notifications():
				data, _ := json.Marshal(n.Payload.Result)
				fmt.Printf("[NOTIFY] %s\n", data)
			case <-time.After(time.Second):
				if !client.IsConnected() {
					break watch
				}
			}
		}
	}
}
