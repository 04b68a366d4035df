package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fixengine/fixengine/internal/session"
	"github.com/fixengine/fixengine/internal/store"
	"github.com/fixengine/fixengine/internal/transport"
)

const peekMaxBytes = 4096

// AcceptorConfig resolves an incoming connection's (SenderCompID,
// TargetCompID as seen by the peer) pair to the session.Config this
// process should run for it, or ok=false if no configured session matches.
type AcceptorConfig func(peerSenderCompID, peerTargetCompID string) (session.Config, store.Store, session.Codec, session.Application, bool)

// Listener runs the acceptor side of the engine: it accepts raw TCP
// connections, peeks the first frame's SenderCompID/TargetCompID to
// recover which configured counterparty is dialing in (FIX has no
// connection-level handshake below the Logon itself), and hands matches
// off to Manager.StartAcceptor. Grounded on the teacher's accept-and-route
// shape in server.go, generalized from HTTP routing to raw-socket session
// identification.
type Listener struct {
	manager  *Manager
	resolve  AcceptorConfig
	listener net.Listener
}

// NewListener wraps an already-bound net.Listener (typically from
// net.Listen("tcp", addr)).
func NewListener(manager *Manager, ln net.Listener, resolve AcceptorConfig) *Listener {
	return &Listener{manager: manager, listener: ln, resolve: resolve}
}

// Serve accepts connections until ctx is canceled or the listener errors.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.listener.Close()
	}()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("engine: accept: %w", err)
			}
		}
		go l.handle(ctx, conn)
	}
}

func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	r := bufio.NewReader(conn)

	senderCompID, targetCompID, err := peekCompIDs(r)
	if err != nil {
		log.WithField("remote", conn.RemoteAddr()).Warnf("engine: could not identify incoming session: %v", err)
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	// The peer's SenderCompID is our TargetCompID and vice versa.
	cfg, st, codec, app, ok := l.resolve(senderCompID, targetCompID)
	if !ok {
		log.Warnf("engine: rejecting connection from %s: no configured session for %s->%s", conn.RemoteAddr(), senderCompID, targetCompID)
		conn.Close()
		return
	}

	tr := transport.NewConnTransport(&preReadConn{Conn: conn, pre: r})
	log.WithField("session", cfg.ID()).Infof("accepted connection from %s", conn.RemoteAddr())
	l.manager.StartAcceptor(ctx, cfg, tr, st, codec, app)
}

// peekCompIDs scans the buffered header without consuming it, looking for
// tag 49 (SenderCompID) and tag 56 (TargetCompID) in SOH-delimited
// tag=value form, growing the peek window until both are found or
// peekMaxBytes is exhausted.
func peekCompIDs(r *bufio.Reader) (senderCompID, targetCompID string, err error) {
	for n := 256; n <= peekMaxBytes; n *= 2 {
		buf, peekErr := r.Peek(n)
		sender, sOK := findTag(buf, "49=")
		target, tOK := findTag(buf, "56=")
		if sOK && tOK {
			return sender, target, nil
		}
		if peekErr != nil {
			return "", "", fmt.Errorf("engine: could not locate SenderCompID/TargetCompID within %d bytes: %w", len(buf), peekErr)
		}
	}
	return "", "", fmt.Errorf("engine: SenderCompID/TargetCompID not found within %d bytes", peekMaxBytes)
}

func findTag(buf []byte, prefix string) (string, bool) {
	idx := bytes.Index(buf, []byte("\x01"+prefix))
	start := 0
	if idx >= 0 {
		start = idx + 1 + len(prefix)
	} else if bytes.HasPrefix(buf, []byte(prefix)) {
		start = len(prefix)
	} else {
		return "", false
	}
	end := bytes.IndexByte(buf[start:], 0x01)
	if end < 0 {
		return "", false
	}
	return string(buf[start : start+end]), true
}

// preReadConn lets the engine keep reading through the same bufio.Reader
// that peeked the connection's opening bytes, while still satisfying
// net.Conn for deadline and close operations.
type preReadConn struct {
	net.Conn
	pre *bufio.Reader
}

func (c *preReadConn) Read(p []byte) (int, error) { return c.pre.Read(p) }
