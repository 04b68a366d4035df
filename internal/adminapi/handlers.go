package adminapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fixengine/fixengine/internal/session"
)

// SessionInfo is the wire shape for /api/sessions and
// /api/sessions/{id}/status.
type SessionInfo struct {
	SessionID    string `json:"sessionID"`
	Role         string `json:"role"`
	State        string `json:"state"`
	SenderSeqNum int    `json:"senderSeqNum"`
	TargetSeqNum int    `json:"targetSeqNum"`
	LastError    string `json:"lastError,omitempty"`
}

func toSessionInfo(st session.Status) SessionInfo {
	return SessionInfo{
		SessionID:    st.SessionID,
		Role:         st.Role.String(),
		State:        st.State.String(),
		SenderSeqNum: st.SenderSeqNum,
		TargetSeqNum: st.TargetSeqNum,
		LastError:    st.LastError,
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	statuses := s.manager.AllStatuses()
	result := make([]SessionInfo, 0, len(statuses))
	for _, st := range statuses {
		result = append(result, toSessionInfo(st))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	st, ok := s.manager.Status(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toSessionInfo(st))
}

func (s *Server) handleSessionAnalytics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, ok := s.manager.Status(id); !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.metrics.Get(id))
}
