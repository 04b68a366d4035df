// Package transport provides the byte-stream connection a session.Engine
// drives its codec over. spec.md §5 limits the engine to three suspension
// points — frame read, frame write, timer wait — so Transport stays a thin
// wrapper around a connection rather than the teacher's channel-fed
// readLoop/writeLoop goroutines: the engine itself owns the blocking calls.
package transport

import (
	"bufio"
	"context"
	"net"
	"time"
)

// Transport is a reliable, ordered byte stream plus the buffered reader a
// Codec decodes frames from.
type Transport interface {
	// Reader returns the buffered reader frames are decoded from. The
	// same reader must be returned on every call.
	Reader() *bufio.Reader

	// Write writes a complete encoded frame. Implementations must write
	// the entire frame or return an error; partial writes are not
	// surfaced to the caller.
	Write(frame []byte) error

	// SetReadDeadline arms or disarms (zero time) a deadline for the next
	// blocking read, letting the engine's timer-wait suspension point
	// double as a read timeout.
	SetReadDeadline(t time.Time) error

	// RemoteAddr identifies the peer, for logging.
	RemoteAddr() string

	// Close tears down the underlying connection.
	Close() error
}

// connTransport adapts a net.Conn to Transport.
type connTransport struct {
	conn net.Conn
	r    *bufio.Reader
}

// NewConnTransport wraps an already-established net.Conn.
func NewConnTransport(conn net.Conn) Transport {
	return &connTransport{conn: conn, r: bufio.NewReader(conn)}
}

func (t *connTransport) Reader() *bufio.Reader { return t.r }

func (t *connTransport) Write(frame []byte) error {
	_, err := t.conn.Write(frame)
	return err
}

func (t *connTransport) SetReadDeadline(d time.Time) error {
	return t.conn.SetReadDeadline(d)
}

func (t *connTransport) RemoteAddr() string {
	if a := t.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

func (t *connTransport) Close() error { return t.conn.Close() }

// Dial opens a TCP connection to address, grounded on the teacher's
// net.DialTimeout dial call in Session.Connect.
func Dial(ctx context.Context, address string, timeout time.Duration) (Transport, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return NewConnTransport(conn), nil
}
