// Package server exposes sampler state over HTTP and streams snapshots and
// issues to websocket clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ftahirops/perfwatch/engine"
	"github.com/ftahirops/perfwatch/model"
)

const (
	// MaxRecentIssues bounds the /api/issues list.
	MaxRecentIssues = 100

	defaultProcessCount = 10
	maxProcessCount     = 100
	clientBuffer        = 64
	writeWait           = 5 * time.Second
	pingPeriod          = 30 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// Frame is the websocket message envelope.
type Frame struct {
	Type string `json:"type"` // snapshot, issue or analysis
	Data any    `json:"data"`
}

// Source is the sampler surface the server reads. *engine.Sampler implements it.
type Source interface {
	Latest() (model.MetricSnapshot, bool)
	History(m model.Metric) []float64
	TopProcesses(ctx context.Context, n int) []model.ProcessSample
	SubscribeSnapshots(buf int) (<-chan model.MetricSnapshot, func())
	SubscribeIssues(buf int) (<-chan model.Issue, func())
}

// Server serves the HTTP API and the websocket stream.
type Server struct {
	src      Source
	store    *engine.MetricsStore
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	recent  []model.Issue // newest first
	clients map[*wsClient]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a server reading from src. store may be nil, in which case
// /metrics is not served.
func New(src Source, store *engine.MetricsStore, opts ...Option) *Server {
	s := &Server{
		src:     src,
		store:   store,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/processes", s.handleProcesses)
	mux.HandleFunc("GET /api/issues", s.handleIssues)
	mux.HandleFunc("GET /ws", s.handleWS)
	if s.store != nil {
		mux.Handle("GET /metrics", s.store.Handler())
	}
	return mux
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully and disconnects websocket clients.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.closeClients()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// Stream forwards sampler snapshots and per-tick issues to websocket
// clients and the metrics store until ctx is cancelled.
func (s *Server) Stream(ctx context.Context) error {
	snaps, unsubSnaps := s.src.SubscribeSnapshots(clientBuffer)
	defer unsubSnaps()
	issues, unsubIssues := s.src.SubscribeIssues(clientBuffer)
	defer unsubIssues()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if s.store != nil {
				s.store.UpdateSnapshot(snap)
			}
			s.broadcast(Frame{Type: "snapshot", Data: snap})
		case iss, ok := <-issues:
			if !ok {
				return nil
			}
			if s.store != nil {
				s.store.RecordInline(iss)
			}
			s.broadcast(Frame{Type: "issue", Data: iss})
		}
	}
}

// Publish records analysis results and pushes them to websocket clients.
func (s *Server) Publish(issues []model.Issue) {
	if len(issues) == 0 {
		return
	}
	if s.store != nil {
		s.store.RecordIssues(issues)
	}

	s.mu.Lock()
	merged := make([]model.Issue, 0, len(issues)+len(s.recent))
	for i := len(issues) - 1; i >= 0; i-- {
		merged = append(merged, issues[i])
	}
	merged = append(merged, s.recent...)
	if len(merged) > MaxRecentIssues {
		merged = merged[:MaxRecentIssues]
	}
	s.recent = merged
	s.mu.Unlock()

	s.broadcast(Frame{Type: "analysis", Data: issues})
}

// Recent returns the retained analysis issues, newest first.
func (s *Server) Recent() []model.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Issue, len(s.recent))
	copy(out, s.recent)
	return out
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.src.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no sample yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("metric")
	if name == "" {
		writeJSON(w, http.StatusOK, map[string][]float64{
			model.MetricCPU.String():  s.src.History(model.MetricCPU),
			model.MetricRAM.String():  s.src.History(model.MetricRAM),
			model.MetricDisk.String(): s.src.History(model.MetricDisk),
		})
		return
	}
	m, ok := model.ParseMetric(name)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown metric %q", name))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"metric": m.String(),
		"values": s.src.History(m),
	})
}

func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	n := defaultProcessCount
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "n must be a non-negative integer")
			return
		}
		n = min(v, maxProcessCount)
	}
	writeJSON(w, http.StatusOK, s.src.TopProcesses(r.Context(), n))
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Recent())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
