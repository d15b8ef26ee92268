package engine

import (
	"context"
	"sync"
	"time"

	"github.com/ftahirops/perfwatch/collector"
	"github.com/ftahirops/perfwatch/model"
)

// fakeSource is a scriptable MetricSource.
type fakeSource struct {
	mu                       sync.Mutex
	cpu, ram, rd, wr, queue  float64
	cpuErr, ramErr, queueErr error

	// seq makes every counter return the tick sequence number.
	seq     bool
	counter float64

	// block, when set, makes ReadCPUPercent wait for it to close, ignoring ctx.
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeSource) ReadCPUPercent(ctx context.Context) (float64, error) {
	f.mu.Lock()
	block, entered := f.block, f.entered
	f.mu.Unlock()
	if block != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seq {
		f.counter++
		return f.counter, nil
	}
	return f.cpu, f.cpuErr
}

func (f *fakeSource) ReadRAMPercent(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seq {
		return f.counter, nil
	}
	return f.ram, f.ramErr
}

func (f *fakeSource) ReadDiskReadBytesPerSec(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rd, nil
}

func (f *fakeSource) ReadDiskWriteBytesPerSec(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wr, nil
}

func (f *fakeSource) ReadDiskQueueLength(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue, f.queueErr
}

func (f *fakeSource) set(fn func(f *fakeSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// fakeProcs is a fixed ProcessSource.
type fakeProcs struct {
	entries []collector.ProcessEntry
	err     error
}

func (p *fakeProcs) Processes(ctx context.Context) ([]collector.ProcessEntry, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make([]collector.ProcessEntry, len(p.entries))
	copy(out, p.entries)
	return out, nil
}

// fakeState is a fixed StateSource for analyzer tests.
type fakeState struct {
	st    State
	procs []model.ProcessSample
}

func (f *fakeState) State() State { return f.st }

func (f *fakeState) TopProcesses(ctx context.Context, n int) []model.ProcessSample {
	if len(f.procs) > n {
		return f.procs[:n]
	}
	return f.procs
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now int64 // seconds
}

func (c *fakeClock) advance(sec int64) {
	c.mu.Lock()
	c.now += sec
	c.mu.Unlock()
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.now, 0)
}
