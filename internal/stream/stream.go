// Package stream carries the negotiation backend's event stream: the wire
// protocol, the transport interfaces the session depends on, and a gorilla
// websocket implementation of them.
package stream

import (
	"context"
	"errors"
)

// ErrClosed reports that the peer closed the stream cleanly.
var ErrClosed = errors.New("stream: closed")

// Stream is one open connection to the negotiation backend.
type Stream interface {
	// Send writes one outbound message.
	Send(ctx context.Context, msg Outbound) error
	// Receive blocks until the next raw frame arrives. A clean close by the
	// peer returns ErrClosed.
	Receive(ctx context.Context) ([]byte, error)
	// Close tears the connection down. It is safe to call more than once.
	Close() error
}

// Dialer opens streams.
type Dialer interface {
	Dial(ctx context.Context) (Stream, error)
}

// DialerFunc adapts a function into a Dialer.
type DialerFunc func(ctx context.Context) (Stream, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context) (Stream, error) {
	return f(ctx)
}

// Logger records transport diagnostics. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
