package collector

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ftahirops/perfwatch/util"
)

// MemoryCounter reads the share of physical memory in use.
type MemoryCounter struct {
	virtual func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

// NewMemoryCounter returns a counter backed by gopsutil.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{virtual: mem.VirtualMemoryWithContext}
}

func (m *MemoryCounter) Name() string { return "memory" }

func (m *MemoryCounter) Read(ctx context.Context) (float64, error) {
	vm, err := m.virtual(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: virtual memory: %w", ErrCounterUnavailable, err)
	}
	if vm == nil || vm.Total == 0 {
		return 0, fmt.Errorf("%w: virtual memory: no data", ErrCounterUnavailable)
	}
	return util.ClampPct(vm.UsedPercent), nil
}
