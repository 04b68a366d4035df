package adminapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fixengine/fixengine/internal/wire"
)

// messageEvent is the JSON payload pushed over SSE for each observed
// application message, admin message, or synthetic state-change message.
type messageEvent struct {
	MsgType   string            `json:"msgType"`
	MsgSeqNum int               `json:"msgSeqNum"`
	Fields    map[string]string `json:"fields"`
}

func toMessageEvent(msg wire.Message) messageEvent {
	fields := make(map[string]string, msg.Fields.Len())
	for _, tag := range msg.Fields.Tags() {
		v, _ := msg.Fields.Get(tag)
		fields[fmt.Sprintf("%d", tag)] = v
	}
	return messageEvent{
		MsgType:   msg.Header.MsgType,
		MsgSeqNum: msg.Header.MsgSeqNum,
		Fields:    fields,
	}
}

// handleSessionStream streams message and state-change activity for a session as
// server-sent events, replaying the ring.Buffer catch-up first so a client
// connecting mid-session sees recent history before live events, grounded
// on the teacher's handleStream (server/sse.go) — the base64-over-SSE
// framing and subscribe/unsubscribe lifecycle carry over directly; ANSI
// screen-redraw detection has no analog here and is dropped.
func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, ok := s.manager.Status(id); !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", id)
	flusher.Flush()

	if catchup := s.manager.Catchup(id); len(catchup) > 0 {
		encoded := base64.StdEncoding.EncodeToString(catchup)
		fmt.Fprintf(w, "event: catchup\ndata: %s\n\n", encoded)
		flusher.Flush()
	}

	ch := s.manager.Subscribe(id)
	defer s.manager.Unsubscribe(id, ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(toMessageEvent(msg))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
