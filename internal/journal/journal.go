package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/surrealkit/keeper/internal/connection"
)

const createEventsTable = `
CREATE TABLE IF NOT EXISTS connection_events (
	occurred_at BIGINT NOT NULL,
	instance    TEXT   NOT NULL,
	endpoint    TEXT   NOT NULL,
	event       TEXT   NOT NULL,
	attempt     INT    NOT NULL DEFAULT 0,
	delay_ms    BIGINT NOT NULL DEFAULT 0,
	detail      TEXT   NOT NULL DEFAULT '',
	PRIMARY KEY (occurred_at, instance, endpoint, event)
)`

// Journal batches connection lifecycle events into PostgreSQL.
type Journal struct {
	cfg    Config
	logger *slog.Logger

	input *buffer[connection.Event]
	db    *pgxpool.Pool

	// Batch accumulation
	batch   []eventRow
	batchMu sync.Mutex

	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// New creates a Journal writing to db. Zero cfg fields fall back to
// DefaultConfig values.
func New(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	return &Journal{
		cfg:    cfg,
		logger: logger,
		input:  newBuffer[connection.Event](cfg.BufferSize),
		db:     db,
		batch:  make([]eventRow, 0, cfg.BatchSize),
	}
}

// EnsureSchema creates the events table if it does not exist.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, createEventsTable); err != nil {
		return fmt.Errorf("create connection_events table: %w", err)
	}
	return nil
}

// Record queues ev for persistence. It never blocks; events recorded
// after Stop are dropped.
func (j *Journal) Record(ev connection.Event) {
	j.input.Send(ev)
}

// Start launches the consume and flush loops.
func (j *Journal) Start(ctx context.Context) error {
	j.ctx, j.cancel = context.WithCancel(ctx)
	j.flushTicker = time.NewTicker(j.cfg.FlushInterval)

	j.wg.Add(2)
	go j.consumeLoop()
	go j.flushLoop()

	j.logger.Info("journal started",
		"batch_size", j.cfg.BatchSize,
		"flush_interval", j.cfg.FlushInterval,
	)
	return nil
}

// Stop halts the loops, drains the input queue and flushes what
// remains. Waiting for the loops is bounded by ctx.
func (j *Journal) Stop(ctx context.Context) error {
	j.cancel()
	j.flushTicker.Stop()
	j.input.Close()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		j.logger.Warn("journal stop timed out")
		return ctx.Err()
	}

	for _, ev := range j.input.DrainTo(0) {
		j.append(j.transform(ev))
	}
	j.flush(ctx)

	stats := j.Stats()
	j.logger.Info("journal stopped",
		"inserts", stats.Inserts,
		"conflicts", stats.Conflicts,
		"errors", stats.Errors,
	)
	return nil
}

// Stats returns a snapshot of writer activity.
func (j *Journal) Stats() Metrics {
	j.batchMu.Lock()
	defer j.batchMu.Unlock()
	m := j.metrics
	m.Queued = j.input.Len() + len(j.batch)
	return m
}

// consumeLoop reads from the input queue and accumulates batches.
func (j *Journal) consumeLoop() {
	defer j.wg.Done()

	for {
		select {
		case <-j.ctx.Done():
			return
		default:
		}

		ev, ok := j.input.TryReceive()
		if !ok {
			select {
			case <-j.ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		j.handleEvent(ev)
	}
}

// flushLoop flushes the batch on every tick.
func (j *Journal) flushLoop() {
	defer j.wg.Done()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-j.flushTicker.C:
			j.flush(j.ctx)
		}
	}
}

// handleEvent appends the transformed event, flushing a full batch.
func (j *Journal) handleEvent(ev connection.Event) {
	if j.append(j.transform(ev)) {
		j.flush(j.ctx)
	}
}

// append adds row to the batch, reporting whether a flush is due.
func (j *Journal) append(row eventRow) bool {
	j.batchMu.Lock()
	defer j.batchMu.Unlock()
	j.batch = append(j.batch, row)
	return len(j.batch) >= j.cfg.BatchSize
}

// transform converts a lifecycle event to its table row.
func (j *Journal) transform(ev connection.Event) eventRow {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	row := eventRow{
		OccurredAt: at.UnixMicro(),
		Instance:   j.cfg.Instance,
		Endpoint:   ev.Endpoint,
		Event:      string(ev.Type),
		Attempt:    ev.Attempt,
		DelayMs:    ev.Delay.Milliseconds(),
	}
	if ev.Err != nil {
		row.Detail = ev.Err.Error()
	}
	return row
}

// flush writes the current batch to the database.
func (j *Journal) flush(ctx context.Context) {
	j.batchMu.Lock()
	if len(j.batch) == 0 {
		j.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := j.batch
	j.batch = make([]eventRow, 0, j.cfg.BatchSize)
	j.batchMu.Unlock()

	start := time.Now()

	conflicts, err := j.insertBatch(ctx, batch)
	if err != nil {
		j.logger.Error("batch insert failed", "error", err, "count", len(batch))
		j.batchMu.Lock()
		j.metrics.Errors++
		j.batchMu.Unlock()
		return
	}

	j.batchMu.Lock()
	j.metrics.Inserts += int64(len(batch) - conflicts)
	j.metrics.Conflicts += int64(conflicts)
	j.metrics.Flushes++
	j.batchMu.Unlock()

	j.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// insertBatch inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (j *Journal) insertBatch(ctx context.Context, rows []eventRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO connection_events (occurred_at, instance, endpoint, event, attempt, delay_ms, detail)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (occurred_at, instance, endpoint, event) DO NOTHING
		`, r.OccurredAt, r.Instance, r.Endpoint, r.Event, r.Attempt, r.DelayMs, r.Detail)
	}

	results := j.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
