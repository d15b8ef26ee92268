package engine

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ftahirops/perfwatch/collector"
	"github.com/ftahirops/perfwatch/model"
	"github.com/ftahirops/perfwatch/util"
)

// DefaultInterval is the sampling period.
const DefaultInterval = time.Second

// State is a consistent copy of the sampler's data at one instant.
type State struct {
	Snapshot    model.MetricSnapshot
	HasSnapshot bool
	CPU         []float64 // oldest first
	RAM         []float64
	Disk        []float64
}

// Sampler reads the metric source on a fixed period, keeps bounded per-metric
// history and publishes every tick to subscribers.
//
// Delivery order within one tick: inline issues first, then the tick's snapshot.
// Subscribers receive values over buffered channels; a subscriber whose
// buffer is full misses that value, the loop never waits for a consumer.
type Sampler struct {
	metrics  collector.MetricSource
	procs    collector.ProcessSource
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.RWMutex // guards rings and latest
	cpu       *Ring
	ram       *Ring
	disk      *Ring
	latest    model.MetricSnapshot
	hasLatest bool

	tickMu  sync.Mutex // serializes tick bodies; guards last and failing
	last    map[string]float64
	failing map[string]bool

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	ticks atomic.Uint64

	subMu     sync.Mutex
	nextSub   int
	snapSubs  map[int]chan model.MetricSnapshot
	issueSubs map[int]chan model.Issue
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithInterval sets the sampling period (default 1s).
func WithInterval(d time.Duration) SamplerOption {
	return func(s *Sampler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the logger used for read failures.
func WithLogger(l *slog.Logger) SamplerOption {
	return func(s *Sampler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock injects the source of snapshot timestamps.
func WithClock(now func() time.Time) SamplerOption {
	return func(s *Sampler) { s.now = now }
}

// NewSampler creates a stopped sampler. procs may be nil, in which case
// TopProcesses always returns an empty list.
func NewSampler(metrics collector.MetricSource, procs collector.ProcessSource, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		metrics:   metrics,
		procs:     procs,
		interval:  DefaultInterval,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		cpu:       NewRing(HistorySize),
		ram:       NewRing(HistorySize),
		disk:      NewRing(HistorySize),
		last:      make(map[string]float64),
		failing:   make(map[string]bool),
		snapSubs:  make(map[int]chan model.MetricSnapshot),
		issueSubs: make(map[int]chan model.Issue),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Interval returns the sampling period.
func (s *Sampler) Interval() time.Duration { return s.interval }

// Start launches the sampling goroutine. Calling Start while the loop is
// running does nothing. The loop also ends when ctx is cancelled.
func (s *Sampler) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.done != nil {
		select {
		case <-s.done:
			// previous loop ended on its own (parent ctx cancelled)
		default:
			return
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go func() {
		defer close(done)
		s.loop(ctx)
	}()
	s.logger.Debug("sampler started", "interval", s.interval)
}

// Running reports whether the sampling goroutine is alive.
func (s *Sampler) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Stop asks the loop to exit and waits at most timeout for it. It returns
// true if the loop exited in time. Stopping a stopped sampler returns true.
//
// If the loop is stuck in a read and the timeout expires, the sampler keeps
// tracking it: Running stays true and Start does nothing until that loop
// exits. A later Stop waits for it again.
func (s *Sampler) Stop(timeout time.Duration) bool {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.runMu.Unlock()

	if cancel == nil {
		return true
	}
	cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.logger.Warn("sampler did not stop in time", "timeout", timeout)
		return false
	}

	s.runMu.Lock()
	if s.done == done {
		s.cancel, s.done = nil, nil
	}
	s.runMu.Unlock()
	s.logger.Debug("sampler stopped")
	return true
}

// Ticks returns how many ticks have completed.
func (s *Sampler) Ticks() uint64 { return s.ticks.Load() }

func (s *Sampler) loop(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	next := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}

		s.tick(ctx)

		// Keep a fixed cadence; after an overrun start right away and re-anchor
		// instead of trying to catch up.
		next = next.Add(s.interval)
		wait := time.Until(next)
		if wait < 0 {
			next = time.Now()
			wait = 0
		}
		timer.Reset(wait)
	}
}

func (s *Sampler) tick(ctx context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sampler tick panicked", "panic", r)
		}
	}()

	snap := model.MetricSnapshot{
		CPUPercent:      s.read(ctx, "cpu", s.metrics.ReadCPUPercent),
		RAMPercent:      s.read(ctx, "ram", s.metrics.ReadRAMPercent),
		DiskReadMBps:    util.MB(s.read(ctx, "disk_read", s.metrics.ReadDiskReadBytesPerSec)),
		DiskWriteMBps:   util.MB(s.read(ctx, "disk_write", s.metrics.ReadDiskWriteBytesPerSec)),
		DiskQueueLength: s.read(ctx, "disk_queue", s.metrics.ReadDiskQueueLength),
		Timestamp:       s.now(),
	}

	s.mu.Lock()
	s.cpu.Push(snap.CPUPercent)
	s.ram.Push(snap.RAMPercent)
	s.disk.Push(snap.DiskTotalMBps())
	s.latest = snap
	s.hasLatest = true
	cpuRecent := s.cpu.Last(WindowSize)
	s.mu.Unlock()

	for _, iss := range InstantIssues(snap, cpuRecent, snap.Timestamp) {
		s.publishIssue(iss)
	}
	s.publishSnapshot(snap)
	s.ticks.Add(1)
}

// read returns a fresh counter value, or the previous one (0 if none) when
// the read fails. The first failure of a run is logged at warn level.
func (s *Sampler) read(ctx context.Context, name string, fn func(context.Context) (float64, error)) float64 {
	v, err := fn(ctx)
	if err != nil {
		prev := s.last[name]
		if s.failing[name] {
			s.logger.Debug("counter still failing", "counter", name, "err", err)
		} else {
			s.logger.Warn("counter read failed, reusing previous value", "counter", name, "value", prev, "err", err)
			s.failing[name] = true
		}
		return prev
	}
	if s.failing[name] {
		s.logger.Info("counter recovered", "counter", name)
		delete(s.failing, name)
	}
	s.last[name] = v
	return v
}

// Latest returns the most recent snapshot; ok is false before the first tick.
func (s *Sampler) Latest() (model.MetricSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.hasLatest
}

// History returns a copy of one metric's series, oldest first.
func (s *Sampler) History(m model.Metric) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch m {
	case model.MetricCPU:
		return s.cpu.Values()
	case model.MetricRAM:
		return s.ram.Values()
	case model.MetricDisk:
		return s.disk.Values()
	}
	return []float64{}
}

// State returns the latest snapshot and all series, copied under one lock.
func (s *Sampler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Snapshot:    s.latest,
		HasSnapshot: s.hasLatest,
		CPU:         s.cpu.Values(),
		RAM:         s.ram.Values(),
		Disk:        s.disk.Values(),
	}
}

// TopProcesses returns at most n processes ordered by memory, largest first;
// equal memory is ordered by ascending PID. Processes that cannot be
// inspected are skipped. An enumeration failure yields an empty list.
func (s *Sampler) TopProcesses(ctx context.Context, n int) []model.ProcessSample {
	if n <= 0 || s.procs == nil {
		return []model.ProcessSample{}
	}
	entries, err := s.procs.Processes(ctx)
	if err != nil {
		s.logger.Warn("process enumeration failed", "err", err)
		return []model.ProcessSample{}
	}

	samples := make([]model.ProcessSample, 0, len(entries))
	skipped := 0
	for _, e := range entries {
		if e.Err != nil {
			skipped++
			continue
		}
		samples = append(samples, model.ProcessSample{
			Name:        e.Name,
			PID:         e.PID,
			MemoryMB:    util.MB(float64(e.WorkingSetBytes)),
			ThreadCount: e.ThreadCount,
		})
	}
	if skipped > 0 {
		s.logger.Debug("skipped inaccessible processes", "count", skipped)
	}

	sort.Slice(samples, func(i, j int) bool {
		if samples[i].MemoryMB != samples[j].MemoryMB {
			return samples[i].MemoryMB > samples[j].MemoryMB
		}
		return samples[i].PID < samples[j].PID
	})
	if len(samples) > n {
		samples = samples[:n]
	}
	return samples
}

// SubscribeSnapshots registers a snapshot listener with the given buffer.
// The returned func unsubscribes and closes the channel.
func (s *Sampler) SubscribeSnapshots(buf int) (<-chan model.MetricSnapshot, func()) {
	ch := make(chan model.MetricSnapshot, buf)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.snapSubs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.snapSubs, id)
			close(ch)
			s.subMu.Unlock()
		})
	}
}

// SubscribeIssues registers a listener for issues raised by the per-tick
// rules. These issues bypass deduplication.
func (s *Sampler) SubscribeIssues(buf int) (<-chan model.Issue, func()) {
	ch := make(chan model.Issue, buf)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.issueSubs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.issueSubs, id)
			close(ch)
			s.subMu.Unlock()
		})
	}
}

func (s *Sampler) publishSnapshot(snap model.MetricSnapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.snapSubs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *Sampler) publishIssue(iss model.Issue) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.issueSubs {
		// Each subscriber gets its own metrics map.
		cp := iss
		cp.Metrics = make(map[string]float64, len(iss.Metrics))
		for k, v := range iss.Metrics {
			cp.Metrics[k] = v
		}
		select {
		case ch <- cp:
		default:
			s.logger.Debug("issue subscriber full, dropping", "title", iss.Title)
		}
	}
}
