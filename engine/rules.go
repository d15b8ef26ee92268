package engine

import (
	"fmt"
	"time"

	"github.com/ftahirops/perfwatch/model"
)

// Rule thresholds. These are fixed properties of the rule set.
const (
	WindowSize = 10 // samples inspected by windowed rules

	instantCPUPct      = 90.0
	instantCPUAvgPct   = 80.0
	instantCPUCritPct  = 95.0
	instantRAMPct      = 85.0
	instantRAMCritPct  = 95.0
	diskQueueThreshold = 2.0
	diskQueueSevere    = 5.0

	sustainedCPUAvgPct  = 80.0
	sustainedCPUCritPct = 90.0
	spikeCPUMaxPct      = 95.0
	spikeCPUAvgCeilPct  = 70.0
	highRAMAvgPct       = 85.0
	highRAMCritPct      = 95.0
	leakTrendPct        = 10.0
	leakRAMAvgPct       = 70.0
	highDiskTotalMBps   = 100.0

	processTopN        = 5
	processMemMB       = 1024.0
	processMemSevereMB = 2048.0
)

// Affected components for system-wide issues.
const (
	ComponentCPU  = "System CPU"
	ComponentRAM  = "System RAM"
	ComponentDisk = "Physical Disk"
)

// Issue titles.
const (
	TitleInstantCPU   = "High CPU Usage Detected"
	TitleInstantRAM   = "High Memory Usage Detected"
	TitleInstantDisk  = "Disk Bottleneck Detected"
	TitleSustainedCPU = "Sustained High CPU Usage"
	TitleCPUSpike     = "CPU Spike Detected (Potential Freeze)"
	TitleHighRAM      = "High Memory Usage"
	TitleMemoryLeak   = "Potential Memory Leak"
	TitleDiskIO       = "Disk I/O Bottleneck"
	TitleDiskActivity = "High Disk Activity"
	TitleProcessMem   = "High Memory Process Detected"
)

// RuleInput is everything the windowed rules look at.
type RuleInput struct {
	Snapshot  model.MetricSnapshot
	CPU       []float64 // oldest first
	RAM       []float64 // oldest first
	Processes []model.ProcessSample
}

// InstantIssues evaluates the cheap per-tick rules against the current
// snapshot. cpuHistory should already include the current CPU sample.
func InstantIssues(snap model.MetricSnapshot, cpuHistory []float64, now time.Time) []model.Issue {
	var issues []model.Issue

	if snap.CPUPercent > instantCPUPct {
		avg, _ := avgMax(tail(cpuHistory, WindowSize))
		if avg > instantCPUAvgPct {
			iss := model.NewIssue(TitleInstantCPU, model.CategoryCPU,
				pick(snap.CPUPercent > instantCPUCritPct, model.SeverityCritical, model.SeverityHigh),
				ComponentCPU, now)
			iss.Description = fmt.Sprintf("CPU usage is at %.1f%% (avg: %.1f%%)", snap.CPUPercent, avg)
			iss.Metrics["CPU"] = snap.CPUPercent
			iss.Metrics["AverageCPU"] = avg
			issues = append(issues, iss)
		}
	}

	if snap.RAMPercent > instantRAMPct {
		iss := model.NewIssue(TitleInstantRAM, model.CategoryMemory,
			pick(snap.RAMPercent > instantRAMCritPct, model.SeverityCritical, model.SeverityHigh),
			ComponentRAM, now)
		iss.Description = fmt.Sprintf("Memory usage is at %.1f%%", snap.RAMPercent)
		iss.Metrics["RAM"] = snap.RAMPercent
		issues = append(issues, iss)
	}

	if snap.DiskQueueLength > diskQueueThreshold {
		iss := model.NewIssue(TitleInstantDisk, model.CategoryDisk,
			pick(snap.DiskQueueLength > diskQueueSevere, model.SeverityHigh, model.SeverityMedium),
			ComponentDisk, now)
		iss.Description = fmt.Sprintf("Disk queue length is %.1f (high I/O wait)", snap.DiskQueueLength)
		iss.Metrics["QueueLength"] = snap.DiskQueueLength
		issues = append(issues, iss)
	}

	return issues
}

// WindowedIssues evaluates the trend rules. CPU and memory rules are skipped
// until WindowSize samples exist. The result order is CPU, memory, disk, processes.
func WindowedIssues(in RuleInput, now time.Time) []model.Issue {
	var issues []model.Issue
	issues = append(issues, cpuIssues(in.CPU, now)...)
	issues = append(issues, memoryIssues(in.RAM, now)...)
	issues = append(issues, diskIssues(in.Snapshot, now)...)
	issues = append(issues, processIssues(in.Processes, now)...)
	return issues
}

func cpuIssues(history []float64, now time.Time) []model.Issue {
	if len(history) < WindowSize {
		return nil
	}
	avg, peak := avgMax(tail(history, WindowSize))

	var issues []model.Issue
	if avg > sustainedCPUAvgPct {
		iss := model.NewIssue(TitleSustainedCPU, model.CategoryCPU,
			pick(avg > sustainedCPUCritPct, model.SeverityCritical, model.SeverityHigh),
			ComponentCPU, now)
		iss.Description = fmt.Sprintf("CPU has been averaging %.1f%% over the last %d samples", avg, WindowSize)
		iss.Metrics["AverageCPU"] = avg
		iss.Metrics["MaxCPU"] = peak
		issues = append(issues, iss)
	}
	// A spike has a high peak but a low average; it cannot co-fire with sustained load.
	if peak > spikeCPUMaxPct && avg < spikeCPUAvgCeilPct {
		iss := model.NewIssue(TitleCPUSpike, model.CategoryCPU, model.SeverityHigh, ComponentCPU, now)
		iss.Description = fmt.Sprintf("CPU spiked to %.1f%% causing potential system freeze", peak)
		iss.Metrics["SpikeCPU"] = peak
		issues = append(issues, iss)
	}
	return issues
}

func memoryIssues(history []float64, now time.Time) []model.Issue {
	if len(history) < WindowSize {
		return nil
	}
	recent := tail(history, WindowSize)
	avg, _ := avgMax(recent)
	trend := recent[len(recent)-1] - recent[0]

	var issues []model.Issue
	if avg > highRAMAvgPct {
		iss := model.NewIssue(TitleHighRAM, model.CategoryMemory,
			pick(avg > highRAMCritPct, model.SeverityCritical, model.SeverityHigh),
			ComponentRAM, now)
		iss.Description = fmt.Sprintf("Memory usage is at %.1f%%", avg)
		iss.Metrics["AverageRAM"] = avg
		issues = append(issues, iss)
	}
	if trend > leakTrendPct && avg > leakRAMAvgPct {
		iss := model.NewIssue(TitleMemoryLeak, model.CategoryMemory, model.SeverityHigh, ComponentRAM, now)
		iss.Description = fmt.Sprintf("Memory usage increased by %.1f%% over the last %d samples", trend, WindowSize)
		iss.Metrics["MemoryTrend"] = trend
		issues = append(issues, iss)
	}
	return issues
}

func diskIssues(snap model.MetricSnapshot, now time.Time) []model.Issue {
	var issues []model.Issue
	if snap.DiskQueueLength > diskQueueThreshold {
		iss := model.NewIssue(TitleDiskIO, model.CategoryDisk,
			pick(snap.DiskQueueLength > diskQueueSevere, model.SeverityCritical, model.SeverityHigh),
			ComponentDisk, now)
		iss.Description = fmt.Sprintf("Disk queue length is %.1f, causing system slowdown", snap.DiskQueueLength)
		iss.Metrics["QueueLength"] = snap.DiskQueueLength
		iss.Metrics["ReadSpeed"] = snap.DiskReadMBps
		iss.Metrics["WriteSpeed"] = snap.DiskWriteMBps
		issues = append(issues, iss)
	}
	if total := snap.DiskTotalMBps(); total > highDiskTotalMBps {
		iss := model.NewIssue(TitleDiskActivity, model.CategoryDisk, model.SeverityMedium, ComponentDisk, now)
		iss.Description = fmt.Sprintf("Disk I/O is at %.1f MB/s", total)
		iss.Metrics["TotalIO"] = total
		issues = append(issues, iss)
	}
	return issues
}

func processIssues(procs []model.ProcessSample, now time.Time) []model.Issue {
	if len(procs) > processTopN {
		procs = procs[:processTopN]
	}
	var issues []model.Issue
	for _, p := range procs {
		if p.MemoryMB <= processMemMB {
			continue
		}
		iss := model.NewIssue(TitleProcessMem, model.CategoryProcess,
			pick(p.MemoryMB > processMemSevereMB, model.SeverityHigh, model.SeverityMedium),
			p.Name, now)
		iss.Description = fmt.Sprintf("%s is using %.0f MB of memory", p.Name, p.MemoryMB)
		iss.Metrics["ProcessMemory"] = p.MemoryMB
		iss.Metrics["ProcessID"] = float64(p.PID)
		issues = append(issues, iss)
	}
	return issues
}

// tail returns the newest n values (all of them if fewer).
func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

// avgMax returns mean and maximum; both are 0 for an empty slice.
func avgMax(values []float64) (avg, peak float64) {
	if len(values) == 0 {
		return 0, 0
	}
	peak = values[0]
	var sum float64
	for _, v := range values {
		sum += v
		if v > peak {
			peak = v
		}
	}
	return sum / float64(len(values)), peak
}

func pick(cond bool, a, b model.Severity) model.Severity {
	if cond {
		return a
	}
	return b
}
