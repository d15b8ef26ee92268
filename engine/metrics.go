package engine

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/ftahirops/perfwatch/model"
)

type issueCounterKey struct {
	category model.Category
	severity model.Severity
}

// MetricsStore holds the latest snapshot and issue counters for exporters.
type MetricsStore struct {
	mu       sync.RWMutex
	snap     model.MetricSnapshot
	hasSnap  bool
	issues   map[issueCounterKey]uint64
	inline   map[model.Category]uint64
	analyzed time.Time
}

// NewMetricsStore creates a new store.
func NewMetricsStore() *MetricsStore {
	return &MetricsStore{
		issues: make(map[issueCounterKey]uint64),
		inline: make(map[model.Category]uint64),
	}
}

// UpdateSnapshot stores the latest snapshot.
func (s *MetricsStore) UpdateSnapshot(snap model.MetricSnapshot) {
	s.mu.Lock()
	s.snap = snap
	s.hasSnap = true
	s.mu.Unlock()
}

// RecordIssues counts issues reported by an analysis pass.
func (s *MetricsStore) RecordIssues(issues []model.Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, iss := range issues {
		s.issues[issueCounterKey{iss.Category, iss.Severity}]++
	}
	s.analyzed = time.Now()
}

// RecordInline counts an issue raised by the per-tick rules.
func (s *MetricsStore) RecordInline(iss model.Issue) {
	s.mu.Lock()
	s.inline[iss.Category]++
	s.mu.Unlock()
}

// Snapshot returns the latest stored snapshot.
func (s *MetricsStore) Snapshot() (model.MetricSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.hasSnap
}

// Handler exposes Prometheus metrics for the latest sample.
func (s *MetricsStore) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.Snapshot(); !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("# no data yet\n"))
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		s.WritePrometheus(w)
	})
}

// WritePrometheus renders the store in the Prometheus text format.
func (s *MetricsStore) WritePrometheus(w io.Writer) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	write := func(format string, args ...interface{}) {
		_, _ = fmt.Fprintf(w, format, args...)
	}
	gauge := func(name string, v float64) {
		write("# TYPE %s gauge\n", name)
		write("%s %f\n", name, v)
	}

	gauge("perfwatch_up", 1)
	gauge("perfwatch_cpu_percent", s.snap.CPUPercent)
	gauge("perfwatch_ram_percent", s.snap.RAMPercent)
	gauge("perfwatch_disk_read_mbps", s.snap.DiskReadMBps)
	gauge("perfwatch_disk_write_mbps", s.snap.DiskWriteMBps)
	gauge("perfwatch_disk_queue_length", s.snap.DiskQueueLength)
	gauge("perfwatch_last_sample_timestamp_seconds", float64(s.snap.Timestamp.Unix()))

	keys := make([]issueCounterKey, 0, len(s.issues))
	for k := range s.issues {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].category != keys[j].category {
			return keys[i].category < keys[j].category
		}
		return keys[i].severity < keys[j].severity
	})
	write("# TYPE perfwatch_issues_total counter\n")
	for _, k := range keys {
		write("perfwatch_issues_total{category=%q,severity=%q} %d\n", k.category, k.severity, s.issues[k])
	}

	cats := make([]model.Category, 0, len(s.inline))
	for c := range s.inline {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	write("# TYPE perfwatch_inline_issues_total counter\n")
	for _, c := range cats {
		write("perfwatch_inline_issues_total{category=%q} %d\n", c, s.inline[c])
	}

	if !s.analyzed.IsZero() {
		gauge("perfwatch_last_analysis_timestamp_seconds", float64(s.analyzed.Unix()))
	}
}
