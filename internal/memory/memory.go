// Package memory sizes trajectory batches against the memory available on
// the host.
package memory

import (
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	// MaxBatch caps the number of configurations held at once.
	MaxBatch = 1000
	// Fraction of available memory a single batch may occupy.
	Fraction = 0.1
	// fallback used when the host cannot report available memory.
	fallbackAvailable = 1 << 30
)

// Available returns the bytes of memory the OS reports as available.
func Available() uint64 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Available == 0 {
		return fallbackAvailable
	}
	return vm.Available
}

// BatchSize returns how many configurations of bytesPerConfig fit in the
// memory budget, between 1 and min(MaxBatch, nConfigs).
func BatchSize(bytesPerConfig, nConfigs int) int {
	return batchSize(Available(), bytesPerConfig, nConfigs)
}

func batchSize(available uint64, bytesPerConfig, nConfigs int) int {
	if bytesPerConfig <= 0 {
		bytesPerConfig = 1
	}
	n := int(float64(available) * Fraction / float64(bytesPerConfig))
	if n > MaxBatch {
		n = MaxBatch
	}
	if nConfigs > 0 && n > nConfigs {
		n = nConfigs
	}
	if n < 1 {
		n = 1
	}
	return n
}

// EnsembleLoop counts the correlation windows of width dataRange, spaced by
// correlationTime, that fit into a batch.
func EnsembleLoop(batch, dataRange, correlationTime int) int {
	if correlationTime < 1 {
		correlationTime = 1
	}
	if dataRange > batch || dataRange < 1 {
		return 0
	}
	return (batch-dataRange)/correlationTime + 1
}
