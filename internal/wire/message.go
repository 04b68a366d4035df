package wire

import "time"

// Header holds the header fields every FIX message carries, per spec.md §3.
type Header struct {
	BeginString     string
	BodyLength      int
	MsgType         string
	SenderCompID    string
	TargetCompID    string
	MsgSeqNum       int
	SendingTime     time.Time
	PossDupFlag     bool
	PossResend      bool
	OrigSendingTime time.Time
}

// FieldMap is an ordered, finite mapping from tag number to raw string value,
// used for any field that is not part of the well-known header/trailer or a
// typed admin struct. This is the "generic field map for application
// messages" re-architecture called for in spec.md §9: application messages
// flow through the engine carrying a FieldMap unchanged, while admin
// messages are lifted into typed Go structs by the admin handler.
type FieldMap struct {
	order  []int
	values map[int]string
}

// NewFieldMap returns an empty, ready-to-use FieldMap.
func NewFieldMap() FieldMap {
	return FieldMap{values: make(map[int]string)}
}

// Set assigns value to tag, appending tag to the iteration order the first
// time it is set.
func (f *FieldMap) Set(tag int, value string) {
	if f.values == nil {
		f.values = make(map[int]string)
	}
	if _, exists := f.values[tag]; !exists {
		f.order = append(f.order, tag)
	}
	f.values[tag] = value
}

// Get returns the value stored for tag and whether it was present.
func (f FieldMap) Get(tag int) (string, bool) {
	v, ok := f.values[tag]
	return v, ok
}

// Has reports whether tag is present.
func (f FieldMap) Has(tag int) bool {
	_, ok := f.values[tag]
	return ok
}

// Tags returns the tags in the order they were first set.
func (f FieldMap) Tags() []int {
	return append([]int(nil), f.order...)
}

// Len returns the number of distinct tags stored.
func (f FieldMap) Len() int {
	return len(f.order)
}

// Message is a logical FIX message: a header plus an ordered field map
// carrying every other field (body and, for decoded messages, the trailer
// CheckSum is validated and discarded rather than carried forward).
type Message struct {
	Header Header
	Fields FieldMap
}

// NewMessage creates a Message with an initialized, empty FieldMap.
func NewMessage(msgType string) Message {
	return Message{
		Header: Header{MsgType: msgType},
		Fields: NewFieldMap(),
	}
}

// IsAdmin reports whether this message's MsgType is a session-plane message.
func (m Message) IsAdmin() bool {
	return IsAdminMsgType(m.Header.MsgType)
}
