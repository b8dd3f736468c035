package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketDialer opens streams over a gorilla websocket connection.
type WebsocketDialer struct {
	settings Settings
	dialer   *websocket.Dialer
	logger   Logger
}

// DialerOption customizes a WebsocketDialer.
type DialerOption func(*WebsocketDialer)

// WithLogger routes transport diagnostics to logger.
func WithLogger(logger Logger) DialerOption {
	return func(d *WebsocketDialer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewWebsocketDialer returns a dialer for settings.URL.
func NewWebsocketDialer(settings Settings, opts ...DialerOption) *WebsocketDialer {
	settings.normalize()
	d := &WebsocketDialer{
		settings: settings,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: settings.HandshakeTimeout,
		},
		logger: nopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Settings returns the dialer configuration.
func (d *WebsocketDialer) Settings() Settings {
	return d.settings
}

// Dial implements Dialer.
func (d *WebsocketDialer) Dial(ctx context.Context) (Stream, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.settings.URL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("stream: dial %s: %w (status %d)", d.settings.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("stream: dial %s: %w", d.settings.URL, err)
	}
	conn.SetReadLimit(d.settings.ReadLimit)
	d.logger.Printf("stream: connected to %s", d.settings.URL)
	return &wsStream{conn: conn, writeTimeout: d.settings.WriteTimeout, logger: d.logger}, nil
}

type wsStream struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (s *wsStream) Send(ctx context.Context, msg Outbound) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(s.writeTimeout)
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("stream: set write deadline: %w", err)
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("stream: send %s: %w", msg.Type, err)
	}
	return nil
}

func (s *wsStream) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Unblock the pending read when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("stream: receive: %w", err)
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.writeMu.Unlock()
		s.closeErr = s.conn.Close()
		s.logger.Printf("stream: closed")
	})
	return s.closeErr
}
