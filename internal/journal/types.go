package journal

import (
	"time"
)

// Config controls batching and buffering for the journal writer.
type Config struct {
	// Instance tags every row with the recording process, so several
	// keepers can share one events table.
	Instance string

	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// BufferSize is the initial capacity of the input queue.
	BufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     256,
		FlushInterval: time.Second,
		BufferSize:    1024,
	}
}

// eventRow represents a row to be inserted into the connection_events table.
type eventRow struct {
	OccurredAt int64 // Microseconds
	Instance   string
	Endpoint   string
	Event      string
	Attempt    int
	DelayMs    int64
	Detail     string // Error text, empty for clean transitions
}

// Metrics counts journal writer activity.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Queued    int // events waiting in the input queue or current batch
}
