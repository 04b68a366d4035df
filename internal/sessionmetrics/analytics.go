// Package sessionmetrics tracks per-session admin-protocol counters for the
// admin/metrics HTTP surface, grounded on the teacher's sol.Analytics:
// a map guarded by a RWMutex, loaded from a JSON file on startup and saved
// back to it after every recorded event. The teacher's BIOS/OS text-classification logic has no FIX analog
// (our traffic is structured admin messages, not a console byte stream) and
// is replaced by simple event counters.
package sessionmetrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Counters holds the running totals for one session.
type Counters struct {
	SessionID       string    `json:"sessionID"`
	MessagesSent    int64     `json:"messagesSent"`
	MessagesRecv    int64     `json:"messagesReceived"`
	HeartbeatsSent  int64     `json:"heartbeatsSent"`
	TestRequests    int64     `json:"testRequestsSent"`
	ResendsServiced int64     `json:"resendsServiced"`
	GapFillsSent    int64     `json:"gapFillsSent"`
	Reconnects      int64     `json:"reconnects"`
	LastEvent       time.Time `json:"lastEvent"`
}

// Store is the in-memory, JSON-backed analytics registry.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Counters
	dataPath string
}

// NewStore returns a Store, loading any existing snapshot from dataPath
// (a directory; the snapshot file lives at dataPath/analytics.json).
func NewStore(dataPath string) *Store {
	s := &Store{sessions: make(map[string]*Counters), dataPath: dataPath}
	s.load()
	return s
}

func (s *Store) get(sessionID string) *Counters {
	c, ok := s.sessions[sessionID]
	if !ok {
		c = &Counters{SessionID: sessionID}
		s.sessions[sessionID] = c
	}
	return c
}

func (s *Store) record(sessionID string, f func(*Counters)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.get(sessionID)
	f(c)
	c.LastEvent = time.Now()
	s.save()
}

func (s *Store) RecordSent(sessionID string)          { s.record(sessionID, func(c *Counters) { c.MessagesSent++ }) }
func (s *Store) RecordReceived(sessionID string)       { s.record(sessionID, func(c *Counters) { c.MessagesRecv++ }) }
func (s *Store) RecordHeartbeat(sessionID string)      { s.record(sessionID, func(c *Counters) { c.HeartbeatsSent++ }) }
func (s *Store) RecordTestRequest(sessionID string)    { s.record(sessionID, func(c *Counters) { c.TestRequests++ }) }
func (s *Store) RecordResendServiced(sessionID string) { s.record(sessionID, func(c *Counters) { c.ResendsServiced++ }) }
func (s *Store) RecordGapFill(sessionID string)        { s.record(sessionID, func(c *Counters) { c.GapFillsSent++ }) }
func (s *Store) RecordReconnect(sessionID string)      { s.record(sessionID, func(c *Counters) { c.Reconnects++ }) }

// Get returns a copy of the counters for sessionID.
func (s *Store) Get(sessionID string) Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.sessions[sessionID]; ok {
		return *c
	}
	return Counters{SessionID: sessionID}
}

// All returns a copy of every session's counters.
func (s *Store) All() map[string]Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Counters, len(s.sessions))
	for k, v := range s.sessions {
		out[k] = *v
	}
	return out
}

func (s *Store) path() string {
	return filepath.Join(s.dataPath, "analytics.json")
}

func (s *Store) save() {
	if s.dataPath == "" {
		return
	}
	data, err := json.MarshalIndent(struct {
		Sessions map[string]*Counters `json:"sessions"`
	}{s.sessions}, "", "  ")
	if err != nil {
		log.Errorf("sessionmetrics: marshal: %v", err)
		return
	}
	if err := os.MkdirAll(s.dataPath, 0o755); err != nil {
		log.Errorf("sessionmetrics: mkdir: %v", err)
		return
	}
	if err := os.WriteFile(s.path(), data, 0o644); err != nil {
		log.Errorf("sessionmetrics: write: %v", err)
	}
}

func (s *Store) load() {
	if s.dataPath == "" {
		return
	}
	data, err := os.ReadFile(s.path())
	if err != nil {
		if !os.IsNotExist(err) {
			log.Errorf("sessionmetrics: read: %v", err)
		}
		return
	}
	var payload struct {
		Sessions map[string]*Counters `json:"sessions"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Errorf("sessionmetrics: unmarshal: %v", err)
		return
	}
	if payload.Sessions != nil {
		s.sessions = payload.Sessions
	}
}
