package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/perfwatch/engine"
	"github.com/ftahirops/perfwatch/model"
)

type fakeSource struct {
	mu      sync.Mutex
	snap    model.MetricSnapshot
	hasSnap bool
	hist    map[model.Metric][]float64
	procs   []model.ProcessSample
	snaps   chan model.MetricSnapshot
	issues  chan model.Issue
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		hist:   map[model.Metric][]float64{},
		snaps:  make(chan model.MetricSnapshot, 8),
		issues: make(chan model.Issue, 8),
	}
}

func (f *fakeSource) Latest() (model.MetricSnapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.hasSnap
}

func (f *fakeSource) History(m model.Metric) []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64{}, f.hist[m]...)
}

func (f *fakeSource) TopProcesses(ctx context.Context, n int) []model.ProcessSample {
	if n > len(f.procs) {
		n = len(f.procs)
	}
	return f.procs[:n]
}

func (f *fakeSource) SubscribeSnapshots(buf int) (<-chan model.MetricSnapshot, func()) {
	return f.snaps, func() {}
}

func (f *fakeSource) SubscribeIssues(buf int) (<-chan model.Issue, func()) {
	return f.issues, func() {}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestSnapshotEndpoint(t *testing.T) {
	src := newFakeSource()
	h := New(src, nil).Handler()

	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/api/snapshot").Code)

	src.snap = model.MetricSnapshot{CPUPercent: 12.5, RAMPercent: 40, Timestamp: time.Unix(10, 0).UTC()}
	src.hasSnap = true
	rec := get(t, h, "/api/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got model.MetricSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.InDelta(t, 12.5, got.CPUPercent, 1e-9)
}

func TestHistoryEndpoint(t *testing.T) {
	src := newFakeSource()
	src.hist[model.MetricCPU] = []float64{1, 2, 3}
	src.hist[model.MetricDisk] = []float64{9}
	h := New(src, nil).Handler()

	rec := get(t, h, "/api/history?metric=cpu")
	require.Equal(t, http.StatusOK, rec.Code)
	var one struct {
		Metric string    `json:"metric"`
		Values []float64 `json:"values"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, "cpu", one.Metric)
	assert.Equal(t, []float64{1, 2, 3}, one.Values)

	rec = get(t, h, "/api/history")
	var all map[string][]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Equal(t, []float64{9}, all["disk"])
	assert.Empty(t, all["ram"])

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/history?metric=gpu").Code)
}

func TestProcessesEndpoint(t *testing.T) {
	src := newFakeSource()
	for i := 0; i < 15; i++ {
		src.procs = append(src.procs, model.ProcessSample{Name: "p", PID: i, MemoryMB: float64(100 - i)})
	}
	h := New(src, nil).Handler()

	var procs []model.ProcessSample
	require.NoError(t, json.Unmarshal(get(t, h, "/api/processes").Body.Bytes(), &procs))
	assert.Len(t, procs, 10)

	require.NoError(t, json.Unmarshal(get(t, h, "/api/processes?n=3").Body.Bytes(), &procs))
	assert.Len(t, procs, 3)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/processes?n=abc").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/processes?n=-1").Code)
}

func TestPublishKeepsNewestFirstBounded(t *testing.T) {
	store := engine.NewMetricsStore()
	s := New(newFakeSource(), store)
	now := time.Now()

	for i := 0; i < MaxRecentIssues+20; i++ {
		s.Publish([]model.Issue{model.NewIssue(engine.TitleHighRAM, model.CategoryMemory, model.SeverityHigh, engine.ComponentRAM, now.Add(time.Duration(i)*time.Second))})
	}
	recent := s.Recent()
	require.Len(t, recent, MaxRecentIssues)
	assert.True(t, recent[0].DetectedAt.After(recent[1].DetectedAt))

	var listed []model.Issue
	require.NoError(t, json.Unmarshal(get(t, s.Handler(), "/api/issues").Body.Bytes(), &listed))
	assert.Len(t, listed, MaxRecentIssues)
	assert.Equal(t, recent[0].ID, listed[0].ID)

	s.Publish(nil)
	assert.Len(t, s.Recent(), MaxRecentIssues)
}

func TestMetricsRoute(t *testing.T) {
	store := engine.NewMetricsStore()
	h := New(newFakeSource(), store).Handler()
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/metrics").Code)

	store.UpdateSnapshot(model.MetricSnapshot{CPUPercent: 3})
	rec := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "perfwatch_cpu_percent 3.000000")

	assert.Equal(t, http.StatusNotFound, get(t, New(newFakeSource(), nil).Handler(), "/metrics").Code)
}

func readFrame(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&f))
	return f.Type, f.Data
}

func TestWebsocketStream(t *testing.T) {
	src := newFakeSource()
	src.snap = model.MetricSnapshot{CPUPercent: 7}
	src.hasSnap = true
	store := engine.NewMetricsStore()
	s := New(src, store)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	typ, data := readFrame(t, conn)
	require.Equal(t, "snapshot", typ, "latest snapshot is sent on connect")
	var snap model.MetricSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.InDelta(t, 7, snap.CPUPercent, 1e-9)
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Stream(ctx) }()

	src.issues <- model.NewIssue(engine.TitleInstantRAM, model.CategoryMemory, model.SeverityCritical, engine.ComponentRAM, time.Now())
	typ, data = readFrame(t, conn)
	require.Equal(t, "issue", typ)
	var iss model.Issue
	require.NoError(t, json.Unmarshal(data, &iss))
	assert.Equal(t, model.SeverityCritical, iss.Severity)

	src.snaps <- model.MetricSnapshot{CPUPercent: 55}
	typ, _ = readFrame(t, conn)
	require.Equal(t, "snapshot", typ)
	got, ok := store.Snapshot()
	require.True(t, ok)
	assert.InDelta(t, 55, got.CPUPercent, 1e-9)

	s.Publish([]model.Issue{model.NewIssue(engine.TitleDiskIO, model.CategoryDisk, model.SeverityHigh, engine.ComponentDisk, time.Now())})
	typ, data = readFrame(t, conn)
	require.Equal(t, "analysis", typ)
	var batch []model.Issue
	require.NoError(t, json.Unmarshal(data, &batch))
	require.Len(t, batch, 1)
	assert.Equal(t, engine.TitleDiskIO, batch[0].Title)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(newFakeSource(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Zero(t, s.ClientCount())

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "server closes websocket on shutdown")
}
