package collector

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/ftahirops/perfwatch/util"
)

// DiskCounter derives read/write byte rates and the in-flight queue length
// from cumulative per-device I/O counters, summed over whole disks.
type DiskCounter struct {
	ioCounters func(ctx context.Context, names ...string) (map[string]disk.IOCountersStat, error)
	now        func() time.Time
	goos       string

	mu        sync.Mutex
	prevRead  counterSample
	prevWrite counterSample
}

type counterSample struct {
	value uint64
	at    time.Time
	valid bool
}

// NewDiskCounter returns a counter backed by gopsutil.
func NewDiskCounter() *DiskCounter {
	return &DiskCounter{
		ioCounters: disk.IOCountersWithContext,
		now:        time.Now,
		goos:       runtime.GOOS,
	}
}

func (d *DiskCounter) Name() string { return "disk" }

type diskTotals struct {
	readBytes  uint64
	writeBytes uint64
	inFlight   uint64
}

func (d *DiskCounter) totals(ctx context.Context) (diskTotals, error) {
	stats, err := d.ioCounters(ctx)
	if err != nil {
		return diskTotals{}, fmt.Errorf("%w: disk io counters: %w", ErrCounterUnavailable, err)
	}
	if len(stats) == 0 {
		return diskTotals{}, fmt.Errorf("%w: disk io counters: no devices", ErrCounterUnavailable)
	}
	var t diskTotals
	for name, s := range stats {
		if !isWholeDisk(d.goos, name) {
			continue
		}
		t.readBytes += s.ReadBytes
		t.writeBytes += s.WriteBytes
		t.inFlight += s.IopsInProgress
	}
	return t, nil
}

// ReadBytesPerSec returns the read rate since the previous call; the first
// call establishes a baseline and returns 0.
func (d *DiskCounter) ReadBytesPerSec(ctx context.Context) (float64, error) {
	t, err := d.totals(ctx)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.advance(&d.prevRead, t.readBytes), nil
}

// WriteBytesPerSec mirrors ReadBytesPerSec for writes.
func (d *DiskCounter) WriteBytesPerSec(ctx context.Context) (float64, error) {
	t, err := d.totals(ctx)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.advance(&d.prevWrite, t.writeBytes), nil
}

// QueueLength returns the number of I/Os currently in flight across whole disks.
func (d *DiskCounter) QueueLength(ctx context.Context) (float64, error) {
	t, err := d.totals(ctx)
	if err != nil {
		return 0, err
	}
	return float64(t.inFlight), nil
}

func (d *DiskCounter) advance(prev *counterSample, value uint64) float64 {
	now := d.now()
	var rate float64
	if prev.valid {
		rate = util.Rate(prev.value, value, now.Sub(prev.at))
	}
	*prev = counterSample{value: value, at: now, valid: true}
	return rate
}

// isWholeDisk filters out partitions and virtual devices so that bytes are
// not counted twice. Outside Linux, device names are already per-disk.
func isWholeDisk(goos, name string) bool {
	if goos != "linux" {
		return true
	}
	for _, prefix := range []string{"loop", "ram", "zram", "dm-", "md", "sr"} {
		if strings.HasPrefix(name, prefix) {
			return false
		}
	}
	// nvme0n1 is a disk, nvme0n1p1 is a partition; same for mmcblk0 / mmcblk0p1
	if strings.HasPrefix(name, "nvme") || strings.HasPrefix(name, "mmcblk") {
		return !strings.Contains(strings.TrimPrefix(strings.TrimPrefix(name, "nvme"), "mmcblk"), "p")
	}
	for _, prefix := range []string{"sd", "vd", "xvd", "hd"} {
		if strings.HasPrefix(name, prefix) {
			suffix := name[len(prefix):]
			if suffix == "" {
				return false
			}
			for _, r := range suffix {
				if r < 'a' || r > 'z' {
					return false
				}
			}
			return true
		}
	}
	return false
}
