package collector

import (
	"context"
	"errors"
)

// ErrCounterUnavailable reports that a counter could not be read, either because it
// failed to initialize or because the current read failed.
var ErrCounterUnavailable = errors.New("counter unavailable")

// MetricSource supplies instantaneous readings of the system counters.
// Implementations must be safe to call from the sampler goroutine while
// other goroutines use the same source.
type MetricSource interface {
	ReadCPUPercent(ctx context.Context) (float64, error)
	ReadRAMPercent(ctx context.Context) (float64, error)
	ReadDiskReadBytesPerSec(ctx context.Context) (float64, error)
	ReadDiskWriteBytesPerSec(ctx context.Context) (float64, error)
	ReadDiskQueueLength(ctx context.Context) (float64, error)
}

// ProcessEntry is one enumerated process. Err is set when the process could
// not be inspected (exited, access denied); callers skip such entries.
type ProcessEntry struct {
	Name            string
	PID             int
	WorkingSetBytes uint64
	ThreadCount     int
	Err             error
}

// ProcessSource enumerates live processes. A returned error means the
// enumeration itself failed; per-process failures are reported via ProcessEntry.Err.
type ProcessSource interface {
	Processes(ctx context.Context) ([]ProcessEntry, error)
}
