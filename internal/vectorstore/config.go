package vectorstore

import (
	"runtime"
)

// IngestConfig holds configuration for catalog ingestion
type IngestConfig struct {
	MaxWorkers int // Concurrent batch writers
	BatchSize  int // Items per store write
}

// DefaultIngestConfig returns sensible defaults based on available resources
func DefaultIngestConfig() IngestConfig {
	workers := runtime.NumCPU() / 2
	if workers < 2 {
		workers = 2
	}
	if workers > 8 {
		workers = 8
	}

	return IngestConfig{
		MaxWorkers: workers,
		BatchSize:  64,
	}
}

func (c IngestConfig) normalized() IngestConfig {
	def := DefaultIngestConfig()
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = def.MaxWorkers
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	return c
}
