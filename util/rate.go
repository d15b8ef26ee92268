package util

import "time"

const bytesPerMB = 1024 * 1024

// Rate computes the per-second rate between two counter values.
// Counter resets (curr < prev) yield 0.
func Rate(prev, curr uint64, dt time.Duration) float64 {
	if dt <= 0 || curr < prev {
		return 0
	}
	return float64(curr-prev) / dt.Seconds()
}

// MB converts bytes (or bytes/sec) to MiB (or MiB/sec).
func MB(bytes float64) float64 {
	return bytes / bytesPerMB
}

// ClampPct bounds a percentage to [0, 100].
func ClampPct(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
