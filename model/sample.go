package model

import "time"

// MetricSnapshot holds the counter readings taken on one sampler tick.
type MetricSnapshot struct {
	CPUPercent      float64   `json:"cpu_percent"`
	RAMPercent      float64   `json:"ram_percent"`
	DiskReadMBps    float64   `json:"disk_read_mbps"`
	DiskWriteMBps   float64   `json:"disk_write_mbps"`
	DiskQueueLength float64   `json:"disk_queue_length"`
	Timestamp       time.Time `json:"timestamp"`
}

// DiskTotalMBps returns combined read+write throughput.
func (s MetricSnapshot) DiskTotalMBps() float64 {
	return s.DiskReadMBps + s.DiskWriteMBps
}

// ProcessSample is one entry of a process enumeration. It is not retained.
type ProcessSample struct {
	Name        string  `json:"name"`
	PID         int     `json:"pid"`
	MemoryMB    float64 `json:"memory_mb"`
	ThreadCount int     `json:"threads"`
}

// Metric names one of the sampled time series.
type Metric int

const (
	MetricCPU  Metric = iota // CPU busy %
	MetricRAM                // memory in use %
	MetricDisk               // disk read+write MB/s
)

func (m Metric) String() string {
	switch m {
	case MetricCPU:
		return "cpu"
	case MetricRAM:
		return "ram"
	case MetricDisk:
		return "disk"
	}
	return "unknown"
}

// ParseMetric maps "cpu", "ram"/"mem" and "disk" to a Metric.
func ParseMetric(s string) (Metric, bool) {
	switch s {
	case "cpu":
		return MetricCPU, true
	case "ram", "mem", "memory":
		return MetricRAM, true
	case "disk", "io":
		return MetricDisk, true
	}
	return 0, false
}
