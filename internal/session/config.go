// Package session implements the FIX session state machine: sequence
// number management and the admin (session-level) sub-protocols — logon,
// heartbeat/test-request, resend/gap-fill, sequence reset, and logout — for
// both initiator and acceptor roles, as a single role-parameterized Engine.
package session

import (
	"bufio"
	"fmt"
	"time"

	"github.com/fixengine/fixengine/internal/wire"
)

// Role distinguishes which side of the session this Engine plays.
// Initiators open the Logon; acceptors wait for one.
type Role int

const (
	Initiator Role = iota
	Acceptor
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "acceptor"
}

// Config carries the per-session parameters spec.md §4.1 names.
type Config struct {
	BeginString  string
	SenderCompID string
	TargetCompID string

	HeartBtInt int // seconds

	LogonTimeout        time.Duration
	ShutdownTimeout     time.Duration
	SendingTimeAccuracy time.Duration // max clock skew tolerated on SendingTime
}

// withDefaults fills in zero-value fields with the conventional FIX
// defaults, mirroring the teacher's config package pre-populating defaults
// before a YAML unmarshal.
func (c Config) withDefaults() Config {
	if c.HeartBtInt <= 0 {
		c.HeartBtInt = 30
	}
	if c.LogonTimeout <= 0 {
		c.LogonTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.SendingTimeAccuracy <= 0 {
		c.SendingTimeAccuracy = 120 * time.Second
	}
	return c
}

// ID returns the session identity triple as a single string, used as the
// key into Store and the registry/admin API.
func (c Config) ID() string {
	return fmt.Sprintf("%s:%s->%s", c.BeginString, c.SenderCompID, c.TargetCompID)
}

// Codec is the fixed interface between the session engine and a wire
// codec implementation — spec.md calls this out as the one externally
// pluggable seam, with wire.Codec as the concrete adapter shipped here.
type Codec interface {
	Encode(wire.Message) ([]byte, error)
	DecodeFrame(*bufio.Reader) (wire.Message, error)
}

// Application is the engine's L4 hook. FromApp delivers an inbound
// application message; ToApp is called on an outbound one just before it is
// encoded, so the hook may still mutate or reject it.
//
// The rest of the interface is observability-only, for the admin/metrics
// surface (spec.md §4.7): OnAdminMessage fires for every session-level
// message the engine sends or receives, OnStateChange for every lifecycle
// transition, and the four OnXSent hooks for the specific counters the
// analytics store tracks. None of these may block or reject anything — by
// the time they're called the corresponding action has already happened.
type Application interface {
	OnLogon(sessionID string)
	OnLogout(sessionID string)
	FromApp(msg wire.Message, sessionID string) error
	ToApp(msg *wire.Message, sessionID string) error

	OnAdminMessage(msg wire.Message, sessionID string, outbound bool)
	OnStateChange(sessionID string, state State)
	OnHeartbeatSent(sessionID string)
	OnTestRequestSent(sessionID string)
	OnResendServiced(sessionID string)
	OnGapFillSent(sessionID string)
}

// NopApplication is a zero-value Application for tests and sessions that
// carry no business messages.
type NopApplication struct{}

func (NopApplication) OnLogon(string)                     {}
func (NopApplication) OnLogout(string)                    {}
func (NopApplication) FromApp(wire.Message, string) error { return nil }
func (NopApplication) ToApp(*wire.Message, string) error  { return nil }

func (NopApplication) OnAdminMessage(wire.Message, string, bool) {}
func (NopApplication) OnStateChange(string, State)               {}
func (NopApplication) OnHeartbeatSent(string)                    {}
func (NopApplication) OnTestRequestSent(string)                  {}
func (NopApplication) OnResendServiced(string)                   {}
func (NopApplication) OnGapFillSent(string)                      {}

// State is the session's position in the lifecycle spec.md §4.1 describes.
type State int

const (
	StateDisconnected State = iota
	StateLogonPending        // acceptor: waiting for inbound Logon; initiator: Logon sent, awaiting reply
	StateActive
	StateLogoutPending
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateLogonPending:
		return "logon_pending"
	case StateActive:
		return "active"
	case StateLogoutPending:
		return "logout_pending"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot for the admin/metrics surface.
type Status struct {
	SessionID      string
	Role           Role
	State          State
	SenderSeqNum   int
	TargetSeqNum   int
	LastError      string
	ConnectedSince time.Time
}
