package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/perfwatch/collector"
	"github.com/ftahirops/perfwatch/model"
)

func TestStartTwiceRunsOneLoop(t *testing.T) {
	src := &fakeSource{}
	s := NewSampler(src, nil, WithInterval(20*time.Millisecond))

	s.Start(context.Background())
	s.Start(context.Background())
	require.True(t, s.Running())

	time.Sleep(210 * time.Millisecond)
	require.True(t, s.Stop(time.Second))

	// One loop at 20ms produces about 11 ticks; two loops would double that.
	ticks := s.Ticks()
	assert.GreaterOrEqual(t, ticks, uint64(3))
	assert.LessOrEqual(t, ticks, uint64(14))
	assert.False(t, s.Running())
}

func TestStopReturnsWithinTimeoutMidTick(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{}, 1)
	src := &fakeSource{block: block, entered: entered}
	s := NewSampler(src, nil, WithInterval(10*time.Millisecond))

	s.Start(context.Background())
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("tick never started")
	}

	start := time.Now()
	ok := s.Stop(50 * time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ok, "loop is stuck in a read, Stop must report the timeout")
	assert.Less(t, elapsed, 500*time.Millisecond)
	close(block)
}

func TestStuckLoopStaysTrackedAfterStopTimeout(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{}, 1)
	src := &fakeSource{block: block, entered: entered}
	s := NewSampler(src, nil, WithInterval(10*time.Millisecond))

	s.Start(context.Background())
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("tick never started")
	}
	require.False(t, s.Stop(20*time.Millisecond))

	assert.True(t, s.Running(), "the stuck loop is still alive")
	before := s.Ticks()
	s.Start(context.Background()) // no second loop while the first is alive

	close(block)
	require.True(t, s.Stop(time.Second), "the old loop exits once the read returns")
	assert.False(t, s.Running())
	assert.LessOrEqual(t, s.Ticks(), before+1, "only the stuck tick completed")

	s.Start(context.Background())
	defer s.Stop(time.Second)
	assert.Eventually(t, func() bool { return s.Ticks() > before+1 }, time.Second, 5*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	s := NewSampler(&fakeSource{}, nil, WithInterval(10*time.Millisecond))
	assert.True(t, s.Stop(time.Millisecond), "stopping a never-started sampler")

	s.Start(context.Background())
	assert.True(t, s.Stop(time.Second))
	assert.True(t, s.Stop(time.Second))
	assert.False(t, s.Running())
}

func TestRestartAfterParentCancel(t *testing.T) {
	s := NewSampler(&fakeSource{}, nil, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()
	require.Eventually(t, func() bool { return !s.Running() }, time.Second, 5*time.Millisecond)

	s.Start(context.Background())
	defer s.Stop(time.Second)
	assert.True(t, s.Running())
	before := s.Ticks()
	assert.Eventually(t, func() bool { return s.Ticks() > before }, time.Second, 5*time.Millisecond)
}

func TestFailedReadReusesPreviousValue(t *testing.T) {
	src := &fakeSource{cpu: 40, ram: 50, queue: 1}
	s := NewSampler(src, nil)
	ctx := context.Background()

	s.tick(ctx)
	src.set(func(f *fakeSource) {
		f.cpuErr = collector.ErrCounterUnavailable
		f.ramErr = errors.New("boom")
		f.cpu, f.ram = 99, 99
	})
	s.tick(ctx)

	snap, ok := s.Latest()
	require.True(t, ok)
	assert.InDelta(t, 40, snap.CPUPercent, 1e-9)
	assert.InDelta(t, 50, snap.RAMPercent, 1e-9)
	assert.Equal(t, []float64{40, 40}, s.History(model.MetricCPU))

	src.set(func(f *fakeSource) { f.cpuErr, f.ramErr = nil, nil })
	s.tick(ctx)
	snap, _ = s.Latest()
	assert.InDelta(t, 99, snap.CPUPercent, 1e-9)
}

func TestFailingCounterWithoutHistoryReadsZero(t *testing.T) {
	src := &fakeSource{queueErr: collector.ErrCounterUnavailable, cpu: 10}
	s := NewSampler(src, nil)
	s.tick(context.Background())

	snap, _ := s.Latest()
	assert.Zero(t, snap.DiskQueueLength)
	assert.InDelta(t, 10, snap.CPUPercent, 1e-9)
}

func TestDiskBytesConvertedToMB(t *testing.T) {
	src := &fakeSource{rd: 3 * 1024 * 1024, wr: 1024 * 1024}
	s := NewSampler(src, nil)
	s.tick(context.Background())

	snap, _ := s.Latest()
	assert.InDelta(t, 3, snap.DiskReadMBps, 1e-9)
	assert.InDelta(t, 1, snap.DiskWriteMBps, 1e-9)
	assert.Equal(t, []float64{4}, s.History(model.MetricDisk))
}

func TestHistoryBounded(t *testing.T) {
	src := &fakeSource{seq: true}
	s := NewSampler(src, nil)
	for i := 0; i < HistorySize+10; i++ {
		s.tick(context.Background())
	}

	for _, m := range []model.Metric{model.MetricCPU, model.MetricRAM, model.MetricDisk} {
		assert.Len(t, s.History(m), HistorySize, m.String())
	}
	cpu := s.History(model.MetricCPU)
	assert.InDelta(t, 11, cpu[0], 1e-9, "oldest retained sample")
	assert.InDelta(t, float64(HistorySize+10), cpu[len(cpu)-1], 1e-9)
}

func TestHistoryIsACopy(t *testing.T) {
	s := NewSampler(&fakeSource{cpu: 5}, nil)
	s.tick(context.Background())

	h := s.History(model.MetricCPU)
	h[0] = 1000
	assert.Equal(t, []float64{5}, s.History(model.MetricCPU))
}

func TestLatestBeforeFirstTick(t *testing.T) {
	s := NewSampler(&fakeSource{}, nil)
	_, ok := s.Latest()
	assert.False(t, ok)
	assert.Empty(t, s.History(model.MetricCPU))
	assert.False(t, s.State().HasSnapshot)
}

func TestInlineIssuesNotDeduplicated(t *testing.T) {
	src := &fakeSource{ram: 96}
	s := NewSampler(src, nil)
	issues, cancel := s.SubscribeIssues(16)
	defer cancel()

	for i := 0; i < 3; i++ {
		s.tick(context.Background())
	}

	var got []model.Issue
	for len(issues) > 0 {
		got = append(got, <-issues)
	}
	require.Len(t, got, 3)
	for _, iss := range got {
		assert.Equal(t, TitleInstantRAM, iss.Title)
	}
	assert.NotEqual(t, got[0].ID, got[1].ID)
}

func TestFullSubscriberDoesNotBlockTick(t *testing.T) {
	s := NewSampler(&fakeSource{cpu: 1}, nil)
	snaps, cancel := s.SubscribeSnapshots(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			s.tick(context.Background())
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tick blocked on a full subscriber")
	}
	assert.Len(t, snaps, 1)
	assert.Equal(t, uint64(5), s.Ticks())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s := NewSampler(&fakeSource{}, nil)
	snaps, cancel := s.SubscribeSnapshots(1)
	cancel()
	cancel()

	_, open := <-snaps
	assert.False(t, open)
	s.tick(context.Background()) // must not send on the closed channel
}

func TestStateConsistentUnderConcurrentReads(t *testing.T) {
	src := &fakeSource{seq: true}
	s := NewSampler(src, nil, WithInterval(time.Millisecond))
	s.Start(context.Background())
	defer s.Stop(time.Second)

	var wg sync.WaitGroup
	errs := make(chan string, 8)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				st := s.State()
				if len(st.CPU) != len(st.RAM) {
					errs <- "series lengths differ"
					return
				}
				for j := range st.CPU {
					if st.CPU[j] != st.RAM[j] {
						errs <- "cpu and ram from different ticks"
						return
					}
				}
				if st.HasSnapshot && st.Snapshot.CPUPercent != st.CPU[len(st.CPU)-1] {
					errs <- "snapshot does not match newest sample"
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func TestTopProcesses(t *testing.T) {
	mb := uint64(1024 * 1024)
	procs := &fakeProcs{entries: []collector.ProcessEntry{
		{Name: "a", PID: 10, WorkingSetBytes: 100 * mb, ThreadCount: 1},
		{Name: "b", PID: 11, WorkingSetBytes: 300 * mb},
		{Name: "c", PID: 12, WorkingSetBytes: 200 * mb},
		{Name: "d", PID: 5, WorkingSetBytes: 200 * mb},
		{Name: "e", PID: 13, WorkingSetBytes: 50 * mb},
		{Name: "f", PID: 14, WorkingSetBytes: 900 * mb},
		{Name: "g", PID: 15, WorkingSetBytes: 10 * mb},
		{Name: "h", PID: 16, WorkingSetBytes: 20 * mb},
		{Name: "denied", PID: 1, WorkingSetBytes: 5000 * mb, Err: errors.New("access denied")},
	}}
	s := NewSampler(&fakeSource{}, procs)

	top := s.TopProcesses(context.Background(), 5)
	require.Len(t, top, 5)

	names := make([]string, len(top))
	for i, p := range top {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"f", "b", "d", "c", "a"}, names, "equal memory orders by pid")
	assert.InDelta(t, 900, top[0].MemoryMB, 1e-9)
	assert.Equal(t, 1, top[4].ThreadCount)

	assert.Len(t, s.TopProcesses(context.Background(), 100), 8)
	assert.Empty(t, s.TopProcesses(context.Background(), 0))
}

func TestTopProcessesEnumerationFailure(t *testing.T) {
	s := NewSampler(&fakeSource{}, &fakeProcs{err: errors.New("no procfs")})
	top := s.TopProcesses(context.Background(), 5)
	assert.NotNil(t, top)
	assert.Empty(t, top)

	assert.Empty(t, NewSampler(&fakeSource{}, nil).TopProcesses(context.Background(), 5))
}
