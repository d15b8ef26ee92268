package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessTable enumerates live processes through gopsutil.
type ProcessTable struct{}

// NewProcessTable returns the host process source.
func NewProcessTable() *ProcessTable { return &ProcessTable{} }

// Processes lists every visible process. Processes that exit or deny access
// mid-enumeration are returned with Err set instead of failing the batch.
func (p *ProcessTable) Processes(ctx context.Context) ([]ProcessEntry, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	entries := make([]ProcessEntry, 0, len(procs))
	for _, proc := range procs {
		entries = append(entries, inspect(ctx, proc))
	}
	return entries, nil
}

func inspect(ctx context.Context, proc *process.Process) ProcessEntry {
	e := ProcessEntry{PID: int(proc.Pid)}

	name, err := proc.NameWithContext(ctx)
	if err != nil {
		e.Err = fmt.Errorf("pid %d name: %w", proc.Pid, err)
		return e
	}
	e.Name = name

	mi, err := proc.MemoryInfoWithContext(ctx)
	if err == nil && mi == nil {
		err = errors.New("no data")
	}
	if err != nil {
		e.Err = fmt.Errorf("pid %d memory: %w", proc.Pid, err)
		return e
	}
	e.WorkingSetBytes = mi.RSS

	threads, err := proc.NumThreadsWithContext(ctx)
	if err != nil {
		e.Err = fmt.Errorf("pid %d threads: %w", proc.Pid, err)
		return e
	}
	e.ThreadCount = int(threads)
	return e
}
