// Package engine supervises FIX sessions end to end: establishing initiator
// connections with reconnect/backoff, accepting acceptor connections handed
// to it by a Listener, and exposing a live session table plus an event feed
// for the admin/metrics HTTP surface. Grounded on the teacher's sol.Manager
// (sol/manager.go) — runSession's reconnect-with-backoff loop, the
// subscriber fan-out for SSE, and the periodic healthCheck restart pattern
// carry over directly; BMC-specific details (Redfish stale-session
// clearing, go-sol wiring) have no FIX analog and are dropped.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fixengine/fixengine/internal/ring"
	"github.com/fixengine/fixengine/internal/session"
	"github.com/fixengine/fixengine/internal/sessionmetrics"
	"github.com/fixengine/fixengine/internal/store"
	"github.com/fixengine/fixengine/internal/transport"
	"github.com/fixengine/fixengine/internal/wire"
)

const (
	healthCheckInterval = 30 * time.Second
	staleThreshold       = 3 * time.Minute
	initialBackoff       = time.Second
	maxBackoff           = 60 * time.Second
)

// Dialer opens a fresh transport to a counterparty; StartInitiator calls it
// on every (re)connect attempt.
type Dialer func(ctx context.Context) (transport.Transport, error)

// managedSession tracks one supervised session plus its reconnect
// machinery. For acceptor sessions cancel stops the session outright
// (the Listener hands us one connection per accept); for initiator
// sessions cancel stops the whole reconnect loop.
type managedSession struct {
	id     string
	role   session.Role
	engine *session.Engine
	cancel context.CancelFunc
	dialer Dialer

	mu           sync.Mutex
	doneErr      error
	stopCurrent  context.CancelFunc // cancels only the in-flight connection, not the reconnect loop
}

// Manager is the multi-session supervisor. One Manager runs every session
// a process is configured for, whether initiator or acceptor.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*managedSession

	metrics *sessionmetrics.Store

	subMu       sync.RWMutex
	subscribers map[string][]chan wire.Message
	buffers     map[string]*ring.Buffer
}

// NewManager returns a Manager and starts its background health checker.
func NewManager(metrics *sessionmetrics.Store) *Manager {
	m := &Manager{
		sessions:    make(map[string]*managedSession),
		metrics:     metrics,
		subscribers: make(map[string][]chan wire.Message),
		buffers:     make(map[string]*ring.Buffer),
	}
	go m.healthCheck()
	return m
}

// recordingApp wraps the caller's Application to publish every inbound and
// outbound application message onto the Manager's subscriber feed and
// analytics counters, the FIX analog of the teacher's raw-byte broadcast.
// Outbound messages are published from ToApp, before the wrapped hook runs.
type recordingApp struct {
	session.Application
	m  *Manager
	id string
}

func (a recordingApp) OnLogon(id string) {
	a.m.broadcast(id, wire.NewMessage(wire.MsgTypeLogon))
	a.Application.OnLogon(id)
}

func (a recordingApp) OnLogout(id string) {
	a.m.broadcast(id, wire.NewMessage(wire.MsgTypeLogout))
	a.Application.OnLogout(id)
}

func (a recordingApp) FromApp(msg wire.Message, id string) error {
	a.m.metrics.RecordReceived(id)
	a.m.broadcast(id, msg)
	return a.Application.FromApp(msg, id)
}

func (a recordingApp) ToApp(msg *wire.Message, id string) error {
	a.m.metrics.RecordSent(id)
	a.m.broadcast(id, *msg)
	return a.Application.ToApp(msg, id)
}

// OnAdminMessage publishes every session-level message — Heartbeat,
// TestRequest, ResendRequest, SequenceReset, Reject, Logon, Logout — onto the
// same subscriber feed OnLogon/OnLogout/FromApp already use, so the SSE
// stream carries the full admin/state-transition picture spec.md §4.7 calls
// for, not just application traffic.
func (a recordingApp) OnAdminMessage(msg wire.Message, id string, outbound bool) {
	a.m.broadcast(id, msg)
	a.Application.OnAdminMessage(msg, id, outbound)
}

// OnStateChange publishes a synthetic message per lifecycle transition so
// subscribers see disconnected/logon_pending/active/logout_pending changes
// on the same feed.
func (a recordingApp) OnStateChange(id string, state session.State) {
	a.m.broadcast(id, wire.NewMessage("STATE:"+state.String()))
	a.Application.OnStateChange(id, state)
}

func (a recordingApp) OnHeartbeatSent(id string) {
	a.m.metrics.RecordHeartbeat(id)
	a.Application.OnHeartbeatSent(id)
}

func (a recordingApp) OnTestRequestSent(id string) {
	a.m.metrics.RecordTestRequest(id)
	a.Application.OnTestRequestSent(id)
}

func (a recordingApp) OnResendServiced(id string) {
	a.m.metrics.RecordResendServiced(id)
	a.Application.OnResendServiced(id)
}

func (a recordingApp) OnGapFillSent(id string) {
	a.m.metrics.RecordGapFill(id)
	a.Application.OnGapFillSent(id)
}

func (m *Manager) broadcast(id string, msg wire.Message) {
	buf := m.getOrCreateBuffer(id)
	m.subMu.RLock()
	subs := m.subscribers[id]
	m.subMu.RUnlock()
	buf.Write([]byte(fmt.Sprintf("%s\n", msg.Header.MsgType)))
	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (m *Manager) getOrCreateBuffer(id string) *ring.Buffer {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if m.buffers[id] == nil {
		m.buffers[id] = ring.New(0)
	}
	return m.buffers[id]
}

// Subscribe registers ch to receive every application message, admin
// message, and synthetic state-change message observed on session id, for
// the admin surface's SSE stream.
func (m *Manager) Subscribe(id string) chan wire.Message {
	ch := make(chan wire.Message, 64)
	m.subMu.Lock()
	m.subscribers[id] = append(m.subscribers[id], ch)
	m.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch.
func (m *Manager) Unsubscribe(id string, ch chan wire.Message) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	subs := m.subscribers[id]
	for i, s := range subs {
		if s == ch {
			m.subscribers[id] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Catchup returns the recent event history for id, used to prime a newly
// connected SSE client before live events start flowing.
func (m *Manager) Catchup(id string) []byte {
	m.subMu.RLock()
	buf := m.buffers[id]
	m.subMu.RUnlock()
	if buf == nil {
		return nil
	}
	return buf.Bytes()
}

// StartAcceptor drives a single already-accepted connection to completion;
// when it ends the session is removed from the table (the Listener will
// hand the Manager a new connection for the same identity on a fresh
// accept).
func (m *Manager) StartAcceptor(ctx context.Context, cfg session.Config, tr transport.Transport, st store.Store, codec session.Codec, app session.Application) {
	id := cfg.ID()
	sessCtx, cancel := context.WithCancel(ctx)
	eng := session.New(session.Acceptor, cfg, tr, st, codec, recordingApp{Application: app, m: m, id: id})

	ms := &managedSession{id: id, role: session.Acceptor, engine: eng, cancel: cancel}
	m.mu.Lock()
	if old, exists := m.sessions[id]; exists {
		old.cancel()
	}
	m.sessions[id] = ms
	m.mu.Unlock()

	go func() {
		err := eng.Run(sessCtx)
		ms.mu.Lock()
		ms.doneErr = err
		ms.mu.Unlock()
		if err != nil {
			log.WithField("session", id).Warnf("acceptor session ended: %v", err)
		}
		m.mu.Lock()
		if m.sessions[id] == ms {
			delete(m.sessions, id)
		}
		m.mu.Unlock()
	}()
}

// StartInitiator launches a supervised reconnect loop for cfg, grounded on
// runSession's exponential backoff: a fresh connection is dialed, driven
// until it ends, then redialed after a backoff that resets once a
// connection has stayed up for a while.
func (m *Manager) StartInitiator(ctx context.Context, cfg session.Config, dial Dialer, st store.Store, codec session.Codec, app session.Application) {
	id := cfg.ID()
	sessCtx, cancel := context.WithCancel(ctx)
	ms := &managedSession{id: id, role: session.Initiator, cancel: cancel, dialer: dial}

	m.mu.Lock()
	if old, exists := m.sessions[id]; exists {
		old.cancel()
	}
	m.sessions[id] = ms
	m.mu.Unlock()

	go m.runInitiatorLoop(sessCtx, ms, cfg, st, codec, app)
}

func (m *Manager) runInitiatorLoop(ctx context.Context, ms *managedSession, cfg session.Config, st store.Store, codec session.Codec, app session.Application) {
	backoff := initialBackoff
	id := ms.id

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		connectTime := time.Now()
		tr, err := ms.dialer(ctx)
		if err != nil {
			log.WithField("session", id).Errorf("dial failed: %v", err)
		} else {
			eng := session.New(session.Initiator, cfg, tr, st, codec, recordingApp{Application: app, m: m, id: id})
			connCtx, stopCurrent := context.WithCancel(ctx)
			ms.mu.Lock()
			ms.engine = eng
			ms.stopCurrent = stopCurrent
			ms.mu.Unlock()

			if err := eng.Run(connCtx); err != nil {
				log.WithField("session", id).Warnf("initiator session ended: %v", err)
				ms.mu.Lock()
				ms.doneErr = err
				ms.mu.Unlock()
			}
			stopCurrent()
			if time.Since(connectTime) > 30*time.Second {
				backoff = initialBackoff
				m.metrics.RecordReconnect(id)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// Stop cancels the session (or reconnect loop) identified by id.
func (m *Manager) Stop(id string) {
	m.mu.Lock()
	ms, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if exists {
		ms.cancel()
	}
}

// Status returns the live Status of session id, or ok=false if unknown.
func (m *Manager) Status(id string) (session.Status, bool) {
	m.mu.RLock()
	ms, exists := m.sessions[id]
	m.mu.RUnlock()
	if !exists {
		return session.Status{}, false
	}
	ms.mu.Lock()
	eng := ms.engine
	ms.mu.Unlock()
	if eng == nil {
		return session.Status{SessionID: id, Role: ms.role, State: session.StateDisconnected}, true
	}
	return eng.Status(), true
}

// AllStatuses returns a snapshot of every supervised session's Status.
func (m *Manager) AllStatuses() []session.Status {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	out := make([]session.Status, 0, len(ids))
	for _, id := range ids {
		if st, ok := m.Status(id); ok {
			out = append(out, st)
		}
	}
	return out
}

// healthCheck restarts initiator sessions whose engine has stayed in
// LogonPending for longer than staleThreshold since connecting; the
// reconnect loop itself normally handles this; this is a backstop for a
// session wedged in a non-terminal state (e.g. LogonPending forever because
// the peer never replies and its own timers somehow failed to fire).
func (m *Manager) healthCheck() {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.RLock()
		var stale []*managedSession
		for _, ms := range m.sessions {
			if ms.role != session.Initiator {
				continue
			}
			ms.mu.Lock()
			eng := ms.engine
			ms.mu.Unlock()
			if eng == nil {
				continue
			}
			st := eng.Status()
			if st.State == session.StateLogonPending && time.Since(st.ConnectedSince) > staleThreshold {
				stale = append(stale, ms)
			}
		}
		m.mu.RUnlock()

		for _, ms := range stale {
			log.WithField("session", ms.id).Warnf("health check: stuck in LogonPending past %s, cancelling current connection for reconnect", staleThreshold)
			ms.mu.Lock()
			stop := ms.stopCurrent
			ms.mu.Unlock()
			if stop != nil {
				stop()
			}
		}
	}
}
