package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fixengine/fixengine/internal/store"
	"github.com/fixengine/fixengine/internal/transport"
	"github.com/fixengine/fixengine/internal/wire"
)

// Named timers driven by the drive loop's single timer-wait suspension
// point (see timer.go).
const (
	timerLogon              = "logon"
	timerHeartbeat          = "heartbeat"
	timerPeerIdle           = "peer_idle"
	timerTestRequestTimeout = "test_request_timeout"
	timerShutdown           = "shutdown"
)

// ErrSessionClosed is returned by Send when the engine has already stopped.
var ErrSessionClosed = errors.New("session: closed")

// errSessionEnded is an internal sentinel for a clean logout exchange; Run
// translates it to a nil error.
var errSessionEnded = errors.New("session: ended")

type frameEvent struct {
	msg wire.Message
	err error
}

type outboundRequest struct {
	msg    wire.Message
	result chan error
}

// Engine is the role-parameterized FIX session state machine: one value
// drives either an initiator or an acceptor session, differing only in who
// sends the first Logon. Grounded on the teacher's Session type (sol.go) —
// per-direction sequence counters, a read/write/done channel trio, and a
// single goroutine (here, Run) consuming them — generalized from SOL
// console framing to FIX tag=value framing and session-layer semantics.
type Engine struct {
	role Role
	cfg  Config
	id   string

	transport transport.Transport
	store     store.Store
	codec     Codec
	app       Application

	readCh chan frameEvent
	outbox chan outboundRequest
	stopCh chan struct{}
	doneCh chan struct{}
	stopOnce sync.Once

	timers *timerSet

	mu             sync.Mutex
	state          State
	lastErr        string
	connectedSince time.Time
	pendingTestReqID string

	// pending buffers messages received with MsgSeqNum > incoming_seqnum
	// until a resend fills the gap; keyed by MsgSeqNum. Touched only from
	// the drive-loop goroutine (onFrame), so it needs no lock.
	pending map[int]wire.Message
}

// New constructs an Engine over an already-connected transport. The caller
// (engine.Manager or engine.Listener) owns connection establishment;
// Engine.Run owns everything from the first byte onward.
func New(role Role, cfg Config, tr transport.Transport, st store.Store, codec Codec, app Application) *Engine {
	cfg = cfg.withDefaults()
	if app == nil {
		app = NopApplication{}
	}
	return &Engine{
		role:      role,
		cfg:       cfg,
		id:        cfg.ID(),
		transport: tr,
		store:     st,
		codec:     codec,
		app:       app,
		readCh:    make(chan frameEvent, 1),
		outbox:    make(chan outboundRequest),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		timers:    newTimerSet(),
		state:     StateDisconnected,
		pending:   make(map[int]wire.Message),
	}
}

// ID returns the session identity this engine was configured for.
func (e *Engine) ID() string { return e.id }

// Status returns a snapshot for the admin/metrics surface.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	sender, _ := e.store.SenderSeqNum(e.id)
	target, _ := e.store.TargetSeqNum(e.id)
	return Status{
		SessionID:      e.id,
		Role:           e.role,
		State:          e.state,
		SenderSeqNum:   sender,
		TargetSeqNum:   target,
		LastError:      e.lastErr,
		ConnectedSince: e.connectedSince,
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.app.OnStateChange(e.id, s)
}

func (e *Engine) getState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Send submits an application-level message for transmission, blocking
// until the drive loop has assigned it a sequence number, persisted it, and
// written it to the wire. Safe to call from any goroutine — this is the
// one channel hop the teacher's Write-over-writeCh pattern becomes here.
func (e *Engine) Send(msg wire.Message) error {
	result := make(chan error, 1)
	select {
	case e.outbox <- outboundRequest{msg: msg, result: result}:
	case <-e.doneCh:
		return ErrSessionClosed
	}
	select {
	case err := <-result:
		return err
	case <-e.doneCh:
		return ErrSessionClosed
	}
}

// Stop requests a graceful logout. It returns once the logout exchange
// completes or ShutdownTimeout elapses, whichever is first, by waiting on
// doneCh (closed when Run returns).
func (e *Engine) Stop(ctx context.Context) error {
	e.stopOnce.Do(func() { close(e.stopCh) })
	select {
	case <-e.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the session until the transport fails, the peer logs out, or
// Stop is called. It blocks the calling goroutine; callers run it in its
// own goroutine (engine.Manager does this per session).
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.doneCh)
	defer e.transport.Close()
	defer e.timers.StopAll()

	e.mu.Lock()
	e.connectedSince = time.Now()
	e.mu.Unlock()

	go e.readLoop()

	if e.role == Initiator {
		if err := e.sendLogon(false); err != nil {
			return e.fail(err)
		}
	}
	e.setState(StateLogonPending)
	e.timers.Set(timerLogon, e.cfg.LogonTimeout)

	for {
		select {
		case <-ctx.Done():
			return e.runShutdown()

		case <-e.stopCh:
			e.stopCh = nil
			if err := e.beginLogout("session stop requested"); err != nil {
				return e.fail(err)
			}

		case evt := <-e.readCh:
			if errors.Is(evt.err, wire.ErrUnknownMsgType) {
				err := e.onUnknownMsgType(evt.msg)
				if errors.Is(err, errSessionEnded) {
					return nil
				}
				if err != nil {
					return e.fail(err)
				}
				continue
			}
			if evt.err != nil {
				return e.fail(evt.err)
			}
			err := e.onFrame(evt.msg)
			if errors.Is(err, errSessionEnded) {
				return nil
			}
			if err != nil {
				return e.fail(err)
			}

		case req := <-e.outbox:
			if e.getState() != StateActive {
				req.result <- fmt.Errorf("session: not active (state=%s)", e.getState())
				continue
			}
			err := e.writeApp(req.msg)
			req.result <- err
			if err != nil {
				return e.fail(err)
			}

		case <-e.timers.C():
			name := e.timers.Fired()
			err := e.onTimer(name)
			if errors.Is(err, errSessionEnded) {
				return nil
			}
			if err != nil {
				return e.fail(err)
			}
		}
	}
}

// runShutdown is used when the caller's context is canceled rather than
// Stop being called explicitly (process shutdown); it blocks briefly for a
// clean logout but never indefinitely.
func (e *Engine) runShutdown() error {
	if e.getState() == StateActive {
		deadline := time.After(e.cfg.ShutdownTimeout)
		if err := e.beginLogout("context canceled"); err == nil {
			for {
				select {
				case evt := <-e.readCh:
					if evt.err == nil {
						if err := e.onFrame(evt.msg); errors.Is(err, errSessionEnded) {
							return nil
						}
					}
				case <-deadline:
					return nil
				}
			}
		}
	}
	return nil
}

func (e *Engine) readLoop() {
	for {
		msg, err := e.codec.DecodeFrame(e.transport.Reader())
		select {
		case e.readCh <- frameEvent{msg: msg, err: err}:
		case <-e.doneCh:
			return
		}
		// ErrUnknownMsgType rejects one message (Run replies with a Reject)
		// but doesn't break framing — the next frame on the wire is still
		// readable, so keep going. Any other error means the transport or
		// the frame itself is no longer trustworthy.
		if err != nil && !errors.Is(err, wire.ErrUnknownMsgType) {
			return
		}
	}
}

func (e *Engine) fail(err error) error {
	e.mu.Lock()
	e.lastErr = err.Error()
	e.mu.Unlock()
	log.WithFields(log.Fields{"session": e.id, "role": e.role}).Errorf("session failed: %v", err)
	e.setState(StateDisconnected)
	return err
}

func (e *Engine) sendLogon(resetSeqNum bool) error {
	logon := wire.Logon{EncryptMethod: 0, HeartBtInt: e.cfg.HeartBtInt, ResetSeqNumFlag: resetSeqNum}
	if resetSeqNum {
		if err := e.store.Reset(e.id); err != nil {
			return err
		}
	}
	return e.writeAdmin(logon.ToMessage())
}

func (e *Engine) beginLogout(reason string) error {
	if e.getState() == StateLogoutPending {
		return nil
	}
	e.setState(StateLogoutPending)
	e.timers.Set(timerShutdown, e.cfg.ShutdownTimeout)
	log.WithField("session", e.id).Infof("logging out: %s", reason)
	return e.writeAdmin(wire.Logout{Text: reason}.ToMessage())
}
