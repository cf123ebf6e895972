package storage

import (
	"runtime"
	"time"
)

// EngineConfig configures the tile-group store, index builder, and GC,
// mirroring the teacher's small literal XxxConfig + DefaultXxxConfig
// pattern (the teacher's ConcurrencyConfig/DefaultConcurrencyConfig)
// instead of a sprawling options struct.
type EngineConfig struct {
	// TileGroupCapacity is C, the max slot count per tile group (spec §3).
	TileGroupCapacity int

	// MaxTileGroups bounds total table size; 0 means unbounded. Exceeding
	// it turns AllocateSlot failures into ErrStorageFull (spec §4.1).
	MaxTileGroups int

	// BuilderPollInterval is how long the online index builder sleeps
	// when it has caught up with the table (spec §4.4 step 1).
	BuilderPollInterval time.Duration

	// BuilderWorkers bounds how many indexes may be built concurrently by
	// a single Engine's background supervisor.
	BuilderWorkers int

	// GCSweepInterval is how often the background recycler drains queued
	// slots (spec §4.6).
	GCSweepInterval time.Duration

	// GCQueueSize bounds the recycler's pending-slot channel.
	GCQueueSize int
}

// DefaultEngineConfig returns sensible defaults scaled to CPU count, in
// the same spirit as the teacher's DefaultConcurrencyConfig.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TileGroupCapacity:   1000,
		MaxTileGroups:       0,
		BuilderPollInterval: 10 * time.Millisecond,
		BuilderWorkers:      runtime.NumCPU(),
		GCSweepInterval:     50 * time.Millisecond,
		GCQueueSize:         4096,
	}
}
