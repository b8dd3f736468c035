// Package mockbackend is a scripted negotiation backend speaking the
// websocket progress protocol. It backs local demos and integration tests.
package mockbackend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dennishermann/evaepic-sub000/internal/stream"
)

// Path is where the negotiation websocket is served.
const Path = "/api/negotiate/ws"

// Logger records server diagnostics.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Server plays a Script to every client that starts a negotiation.
type Server struct {
	addr     string
	script   Script
	delay    time.Duration
	logger   Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Option customizes a Server.
type Option func(*Server)

// WithScript replaces DefaultScript.
func WithScript(script Script) Option {
	return func(s *Server) {
		s.script = script
	}
}

// WithDelay pauses between frames.
func WithDelay(d time.Duration) Option {
	return func(s *Server) {
		if d >= 0 {
			s.delay = d
		}
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

// NewServer prepares a mock backend bound to addr on Start.
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		script: DefaultScript(),
		logger: nopLogger{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the websocket route without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleNegotiate)
	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("mockbackend: server already started")
	}
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("mockbackend: listen %s: %w", s.addr, err)
	}
	server := &http.Server{Handler: s.Handler()}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.listener = listener
	s.server = server
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("mockbackend: serve error: %v", err)
		}
	}()
	s.logger.Printf("mockbackend: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops the listener. Open negotiation streams end with their
// request contexts.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	return err
}

// URL returns the websocket URL clients should dial.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr := s.addr
	if s.listener != nil {
		addr = s.listener.Addr().String()
	}
	return "ws://" + addr + Path
}

func (s *Server) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("mockbackend: upgrade: %v", err)
		return
	}
	defer conn.Close()

	var start stream.Outbound
	if err := conn.ReadJSON(&start); err != nil {
		s.logger.Printf("mockbackend: read start: %v", err)
		return
	}
	if start.Type != stream.TypeStartNegotiation {
		_ = conn.WriteJSON(Frame{"type": "error", "payload": map[string]any{"message": fmt.Sprintf("unexpected message type %q", start.Type)}})
		return
	}
	s.logger.Printf("mockbackend: negotiation started: %q (max_rounds=%d)", start.UserInput, start.MaxRounds)

	// Watch for the client going away while frames are still being sent.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := r.Context()
	for _, frame := range s.script.Frames(start) {
		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-gone:
				return
			case <-ctx.Done():
				return
			}
		}
		if err := conn.WriteJSON(frame); err != nil {
			s.logger.Printf("mockbackend: write: %v", err)
			return
		}
		if frame["type"] == "error" {
			return
		}
	}

	// The client closes once it has read the complete frame.
	select {
	case <-gone:
	case <-ctx.Done():
	}
}
