package recorder

import (
	"time"
)

// Config contains configuration for batch recorders.
type Config struct {
	// InstanceID tags archived rows with the relay instance that wrote them.
	InstanceID string

	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// BufferSize caps the rows retained across failed flushes. Beyond
	// this the oldest rows are dropped.
	BufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    4096,
	}
}

// Metrics holds metrics for a recorder.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Dropped   int64
	Flushes   int64
}
