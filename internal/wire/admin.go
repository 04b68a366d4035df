package wire

import "strconv"

// Typed admin message views, lifted out of a decoded Message's FieldMap by
// the session admin handler. This is the "tagged message view" rearchitecture
// called for in spec.md §9: the engine never type-switches on raw tag
// numbers past decode, it works with these structs instead.

type Logon struct {
	EncryptMethod int
	HeartBtInt    int
	ResetSeqNumFlag bool
}

type Heartbeat struct {
	TestReqID string // empty if this heartbeat is not answering a test request
}

type TestRequest struct {
	TestReqID string
}

type ResendRequest struct {
	BeginSeqNo int
	EndSeqNo   int // 0 means "through current outgoing sequence number"
}

type SequenceReset struct {
	NewSeqNo   int
	GapFillFlag bool
}

type Logout struct {
	Text string
}

type Reject struct {
	RefSeqNum          int
	RefTagID           int
	RefMsgType         string
	SessionRejectReason int
	Text               string
}

// LogonFromMessage extracts a Logon view from a decoded Message's FieldMap.
func LogonFromMessage(m Message) (Logon, error) {
	var l Logon
	var err error
	if l.EncryptMethod, err = intField(m.Fields, TagEncryptMethod, true); err != nil {
		return l, err
	}
	if l.HeartBtInt, err = intField(m.Fields, TagHeartBtInt, true); err != nil {
		return l, err
	}
	if v, ok := m.Fields.Get(TagResetSeqNumFlag); ok {
		l.ResetSeqNumFlag = v == "Y"
	}
	return l, nil
}

// ToMessage renders a Logon into a Message whose header carries only the
// MsgType; the engine stamps MsgSeqNum/SendingTime/CompIDs before sending.
func (l Logon) ToMessage() Message {
	m := NewMessage(MsgTypeLogon)
	m.Fields.Set(TagEncryptMethod, strconv.Itoa(l.EncryptMethod))
	m.Fields.Set(TagHeartBtInt, strconv.Itoa(l.HeartBtInt))
	if l.ResetSeqNumFlag {
		m.Fields.Set(TagResetSeqNumFlag, "Y")
	}
	return m
}

func HeartbeatFromMessage(m Message) Heartbeat {
	v, _ := m.Fields.Get(TagTestReqID)
	return Heartbeat{TestReqID: v}
}

func (h Heartbeat) ToMessage() Message {
	m := NewMessage(MsgTypeHeartbeat)
	if h.TestReqID != "" {
		m.Fields.Set(TagTestReqID, h.TestReqID)
	}
	return m
}

func TestRequestFromMessage(m Message) (TestRequest, error) {
	v, ok := m.Fields.Get(TagTestReqID)
	if !ok {
		return TestRequest{}, ErrBadFormat
	}
	return TestRequest{TestReqID: v}, nil
}

func (t TestRequest) ToMessage() Message {
	m := NewMessage(MsgTypeTestRequest)
	m.Fields.Set(TagTestReqID, t.TestReqID)
	return m
}

func ResendRequestFromMessage(m Message) (ResendRequest, error) {
	var r ResendRequest
	var err error
	if r.BeginSeqNo, err = intField(m.Fields, TagBeginSeqNo, true); err != nil {
		return r, err
	}
	if r.EndSeqNo, err = intField(m.Fields, TagEndSeqNo, true); err != nil {
		return r, err
	}
	return r, nil
}

func (r ResendRequest) ToMessage() Message {
	m := NewMessage(MsgTypeResendRequest)
	m.Fields.Set(TagBeginSeqNo, strconv.Itoa(r.BeginSeqNo))
	m.Fields.Set(TagEndSeqNo, strconv.Itoa(r.EndSeqNo))
	return m
}

func SequenceResetFromMessage(m Message) (SequenceReset, error) {
	var s SequenceReset
	var err error
	if s.NewSeqNo, err = intField(m.Fields, TagNewSeqNo, true); err != nil {
		return s, err
	}
	if v, ok := m.Fields.Get(TagGapFillFlag); ok {
		s.GapFillFlag = v == "Y"
	}
	return s, nil
}

func (s SequenceReset) ToMessage() Message {
	m := NewMessage(MsgTypeSequenceReset)
	m.Fields.Set(TagNewSeqNo, strconv.Itoa(s.NewSeqNo))
	if s.GapFillFlag {
		m.Fields.Set(TagGapFillFlag, "Y")
	} else {
		m.Fields.Set(TagGapFillFlag, "N")
	}
	return m
}

func LogoutFromMessage(m Message) Logout {
	v, _ := m.Fields.Get(TagText)
	return Logout{Text: v}
}

func (l Logout) ToMessage() Message {
	m := NewMessage(MsgTypeLogout)
	if l.Text != "" {
		m.Fields.Set(TagText, l.Text)
	}
	return m
}

func RejectFromMessage(m Message) (Reject, error) {
	var r Reject
	var err error
	if r.RefSeqNum, err = intField(m.Fields, TagRefSeqNum, true); err != nil {
		return r, err
	}
	r.RefTagID, _ = intField(m.Fields, TagRefTagID, false)
	r.RefMsgType, _ = m.Fields.Get(TagRefMsgType)
	r.SessionRejectReason, _ = intField(m.Fields, TagSessionRejectReason, false)
	r.Text, _ = m.Fields.Get(TagText)
	return r, nil
}

func (r Reject) ToMessage() Message {
	m := NewMessage(MsgTypeReject)
	m.Fields.Set(TagRefSeqNum, strconv.Itoa(r.RefSeqNum))
	if r.RefTagID != 0 {
		m.Fields.Set(TagRefTagID, strconv.Itoa(r.RefTagID))
	}
	if r.RefMsgType != "" {
		m.Fields.Set(TagRefMsgType, r.RefMsgType)
	}
	m.Fields.Set(TagSessionRejectReason, strconv.Itoa(r.SessionRejectReason))
	if r.Text != "" {
		m.Fields.Set(TagText, r.Text)
	}
	return m
}

// intField reads tag from fields as an integer. When required is true, a
// missing tag is reported as ErrBadFormat rather than silently returning 0.
func intField(fields FieldMap, tag int, required bool) (int, error) {
	v, ok := fields.Get(tag)
	if !ok {
		if required {
			return 0, ErrBadFormat
		}
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, ErrBadFormat
	}
	return n, nil
}
