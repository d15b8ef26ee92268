package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/ftahirops/perfwatch/util"
)

// CPUCounter reads total CPU busy percent.
type CPUCounter struct {
	percent func(ctx context.Context, interval time.Duration, perCPU bool) ([]float64, error)
}

// NewCPUCounter returns a counter backed by gopsutil.
func NewCPUCounter() *CPUCounter {
	return &CPUCounter{percent: cpu.PercentWithContext}
}

func (c *CPUCounter) Name() string { return "cpu" }

// Read returns busy % since the previous call. A zero interval makes gopsutil
// diff against its last stored times instead of sleeping.
func (c *CPUCounter) Read(ctx context.Context) (float64, error) {
	vals, err := c.percent(ctx, 0, false)
	if err != nil {
		return 0, fmt.Errorf("%w: cpu percent: %w", ErrCounterUnavailable, err)
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("%w: cpu percent: no data", ErrCounterUnavailable)
	}
	return util.ClampPct(vals[0]), nil
}
