// Package feed serves the live progress snapshot over HTTP for dashboards
// outside the terminal.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dennishermann/evaepic-sub000/internal/journal"
	"github.com/dennishermann/evaepic-sub000/internal/session"
)

var errFeedDisabled = errors.New("feed: server disabled")

// Source is the session surface the feed reads from.
type Source interface {
	Snapshot() session.Snapshot
	Subscribe() session.Subscription
}

// RunLister lists journaled runs.
type RunLister interface {
	Runs(ctx context.Context, limit int) ([]journal.Run, error)
}

// Logger records feed diagnostics.
type Logger interface {
	Printf(format string, args ...any)
}

// Server exposes /health, /progress, /progress/stream and /runs.
type Server struct {
	settings Settings
	source   Source
	runs     RunLister
	logger   Logger
	clock    func() time.Time

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithRuns enables the /runs listing.
func WithRuns(runs RunLister) Option {
	return func(s *Server) {
		s.runs = runs
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a feed over source.
func NewServer(settings Settings, source Source, opts ...Option) *Server {
	s := &Server{
		settings: settings,
		source:   source,
		logger:   nopLogger{},
		clock:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the feed routes without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/progress", s.handleProgress)
	mux.HandleFunc("/progress/stream", s.handleStream)
	mux.HandleFunc("/runs", s.handleRuns)
	return mux
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("feed: server is nil")
	}
	if !s.settings.Enabled {
		return errFeedDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("feed: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("feed: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = s.clock()
	// No write timeout: /progress/stream holds the response open.
	server := &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: s.settings.ReadTimeout,
		IdleTimeout: s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("feed: serve error: %v", err)
		}
	}()
	s.logger.Printf("feed: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// BaseURL returns the HTTP base URL for the running server.
func (s *Server) BaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return s.settings.URL()
	}
	return "http://" + s.listener.Addr().String()
}

// IsDisabled reports whether err came from starting a disabled feed.
func IsDisabled(err error) bool {
	return errors.Is(err, errFeedDisabled)
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(s.clock().Sub(s.startTime).Seconds())
}

type healthResponse struct {
	Status        string `json:"status"`
	RunID         string `json:"run_id,omitempty"`
	RunStatus     string `json:"run_status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	snap := s.source.Snapshot()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		RunID:         snap.RunID,
		RunStatus:     string(snap.Status),
		UptimeSeconds: s.uptimeSeconds(),
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.source.Snapshot())
}

// handleStream writes every published snapshot as a server-sent event until
// the client goes away or the session closes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}
	sub := s.source.Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-sub.Snapshots:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				s.logger.Printf("feed: encode snapshot: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", snap.Seq, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.runs == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "journal disabled"})
		return
	}
	runs, err := s.runs.Runs(r.Context(), s.settings.RunsLimit)
	if err != nil {
		s.logger.Printf("feed: list runs: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing runs failed"})
		return
	}
	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, newRunResponse(run))
	}
	writeJSON(w, http.StatusOK, out)
}

type runResponse struct {
	ID          string     `json:"id"`
	Input       string     `json:"input"`
	Attribution string     `json:"attribution,omitempty"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Frames      int        `json:"frames"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

func newRunResponse(run journal.Run) runResponse {
	resp := runResponse{
		ID:          run.ID,
		Input:       run.Input,
		Attribution: run.Attribution,
		Status:      string(run.Status),
		Error:       run.Err,
		Frames:      run.Frames,
		StartedAt:   run.StartedAt,
	}
	if !run.FinishedAt.IsZero() {
		finished := run.FinishedAt
		resp.FinishedAt = &finished
	}
	return resp
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", fmt.Sprintf("%s, %s", http.MethodGet, http.MethodHead))
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
