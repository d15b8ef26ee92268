package collector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

type reader interface {
	Name() string
	Read(ctx context.Context) (float64, error)
}

// SystemSource is the MetricSource backed by the host's counters.
// Counters that fail their first read are disabled and report
// ErrCounterUnavailable for the lifetime of the source.
type SystemSource struct {
	cpu      reader
	mem      reader
	disk     *DiskCounter
	disabled map[string]error
}

// NewSystemSource probes every counter once. A failing probe is logged and
// degrades that counter; it never prevents construction.
func NewSystemSource(ctx context.Context, logger *slog.Logger) *SystemSource {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &SystemSource{
		cpu:      NewCPUCounter(),
		mem:      NewMemoryCounter(),
		disk:     NewDiskCounter(),
		disabled: make(map[string]error),
	}
	for _, r := range []reader{s.cpu, s.mem} {
		if _, err := r.Read(ctx); err != nil {
			s.disabled[r.Name()] = err
			logger.Warn("counter disabled", "counter", r.Name(), "err", err)
		}
	}
	// The first disk reads also seed the rate baselines.
	if _, err := s.disk.ReadBytesPerSec(ctx); err != nil {
		s.disabled[s.disk.Name()] = err
		logger.Warn("counter disabled", "counter", s.disk.Name(), "err", err)
	} else {
		_, _ = s.disk.WriteBytesPerSec(ctx)
	}
	return s
}

// Disabled returns the counters that failed to initialize, with their errors.
func (s *SystemSource) Disabled() map[string]error {
	out := make(map[string]error, len(s.disabled))
	for k, v := range s.disabled {
		out[k] = v
	}
	return out
}

func (s *SystemSource) check(name string) error {
	if err, ok := s.disabled[name]; ok {
		return fmt.Errorf("%w: %s disabled at startup: %v", ErrCounterUnavailable, name, err)
	}
	return nil
}

func (s *SystemSource) ReadCPUPercent(ctx context.Context) (float64, error) {
	if err := s.check(s.cpu.Name()); err != nil {
		return 0, err
	}
	return s.cpu.Read(ctx)
}

func (s *SystemSource) ReadRAMPercent(ctx context.Context) (float64, error) {
	if err := s.check(s.mem.Name()); err != nil {
		return 0, err
	}
	return s.mem.Read(ctx)
}

func (s *SystemSource) ReadDiskReadBytesPerSec(ctx context.Context) (float64, error) {
	if err := s.check(s.disk.Name()); err != nil {
		return 0, err
	}
	return s.disk.ReadBytesPerSec(ctx)
}

func (s *SystemSource) ReadDiskWriteBytesPerSec(ctx context.Context) (float64, error) {
	if err := s.check(s.disk.Name()); err != nil {
		return 0, err
	}
	return s.disk.WriteBytesPerSec(ctx)
}

func (s *SystemSource) ReadDiskQueueLength(ctx context.Context) (float64, error) {
	if err := s.check(s.disk.Name()); err != nil {
		return 0, err
	}
	return s.disk.QueueLength(ctx)
}
