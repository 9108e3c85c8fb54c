package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/surrealkit/keeper/internal/connection"
)

func TestTransform(t *testing.T) {
	j := New(Config{Instance: "keeper-1"}, nil, nil)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ev := connection.Event{
		Endpoint: "primary",
		Type:     connection.EventReconnecting,
		Attempt:  3,
		Delay:    4 * time.Second,
		Err:      errors.New("connection refused"),
		At:       at,
	}

	row := j.transform(ev)

	if row.OccurredAt != at.UnixMicro() {
		t.Errorf("OccurredAt = %d, want %d", row.OccurredAt, at.UnixMicro())
	}
	if row.Instance != "keeper-1" {
		t.Errorf("Instance = %q, want keeper-1", row.Instance)
	}
	if row.Endpoint != "primary" {
		t.Errorf("Endpoint = %q, want primary", row.Endpoint)
	}
	if row.Event != "reconnecting" {
		t.Errorf("Event = %q, want reconnecting", row.Event)
	}
	if row.Attempt != 3 {
		t.Errorf("Attempt = %d, want 3", row.Attempt)
	}
	if row.DelayMs != 4000 {
		t.Errorf("DelayMs = %d, want 4000", row.DelayMs)
	}
	if row.Detail != "connection refused" {
		t.Errorf("Detail = %q, want connection refused", row.Detail)
	}
}

func TestTransform_Defaults(t *testing.T) {
	j := New(Config{}, nil, nil)

	before := time.Now().UnixMicro()
	row := j.transform(connection.Event{
		Endpoint: "primary",
		Type:     connection.EventConnected,
	})
	after := time.Now().UnixMicro()

	if row.OccurredAt < before || row.OccurredAt > after {
		t.Errorf("OccurredAt = %d, want within [%d, %d]", row.OccurredAt, before, after)
	}
	if row.Detail != "" {
		t.Errorf("Detail = %q, want empty for event without error", row.Detail)
	}
	if row.DelayMs != 0 {
		t.Errorf("DelayMs = %d, want 0", row.DelayMs)
	}
}

func TestHandleEvent_AddsToBatch(t *testing.T) {
	j := New(Config{BatchSize: 100, FlushInterval: time.Hour}, nil, nil)

	j.handleEvent(connection.Event{
		Endpoint: "primary",
		Type:     connection.EventConnected,
		At:       time.Now(),
	})

	j.batchMu.Lock()
	batchLen := len(j.batch)
	j.batchMu.Unlock()

	if batchLen != 1 {
		t.Errorf("batch length = %d, want 1", batchLen)
	}
}

func TestRecord_QueuesEvent(t *testing.T) {
	j := New(Config{}, nil, nil)

	j.Record(connection.Event{Endpoint: "primary", Type: connection.EventConnected})

	if got := j.Stats().Queued; got != 1 {
		t.Errorf("Queued = %d, want 1", got)
	}
}

func TestLifecycle(t *testing.T) {
	cfg := Config{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
	}
	j := New(cfg, nil, nil)

	if err := j.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := j.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}

	// Events recorded after Stop are dropped
	j.Record(connection.Event{Endpoint: "primary", Type: connection.EventConnected})
	if got := j.Stats().Queued; got != 0 {
		t.Errorf("Queued after Stop = %d, want 0", got)
	}
}

func TestStats_InitiallyZero(t *testing.T) {
	j := New(Config{}, nil, nil)

	stats := j.Stats()
	if stats.Inserts != 0 || stats.Conflicts != 0 || stats.Errors != 0 || stats.Flushes != 0 {
		t.Errorf("initial stats = %+v, want all zero", stats)
	}
	if stats.Queued != 0 {
		t.Errorf("initial Queued = %d, want 0", stats.Queued)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BatchSize != 256 {
		t.Errorf("BatchSize = %d, want 256", cfg.BatchSize)
	}
	if cfg.FlushInterval != time.Second {
		t.Errorf("FlushInterval = %v, want 1s", cfg.FlushInterval)
	}
	if cfg.BufferSize != 1024 {
		t.Errorf("BufferSize = %d, want 1024", cfg.BufferSize)
	}
}
