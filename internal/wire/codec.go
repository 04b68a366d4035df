package wire

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fixengine/fixengine/internal/dictionary"
)

const soh = '\x01'

// Codec implements spec.md §4.4's codec-adapter contract: tag=value SOH
// framing with BodyLength/CheckSum computed per §6, driven by a
// dictionary.Dictionary loaded from YAML (or dictionary.Default when none is
// configured). The dictionary is consulted for one thing at decode time —
// whether an incoming MsgType is one this session recognizes at all — and
// otherwise the codec treats message bodies as opaque FieldMaps; deeper
// per-message field validation is the admin handler's and the application
// hook's job.
type Codec struct {
	BeginString string
	Dictionary  *dictionary.Dictionary
}

// NewCodec returns a Codec stamping BeginString on every encoded frame and
// rejecting, at decode time, any MsgType dict does not recognize. A nil dict
// disables that check.
func NewCodec(beginString string, dict *dictionary.Dictionary) *Codec {
	return &Codec{BeginString: beginString, Dictionary: dict}
}

// Encode renders m as a complete wire frame: header, body fields in the
// order m.Fields was populated, and a trailing checksum field.
func (c *Codec) Encode(m Message) ([]byte, error) {
	var body strings.Builder

	writeField(&body, TagMsgType, m.Header.MsgType)
	writeField(&body, TagSenderCompID, m.Header.SenderCompID)
	writeField(&body, TagTargetCompID, m.Header.TargetCompID)
	writeField(&body, TagMsgSeqNum, strconv.Itoa(m.Header.MsgSeqNum))
	writeField(&body, TagSendingTime, formatTime(m.Header.SendingTime))
	if m.Header.PossDupFlag {
		writeField(&body, TagPossDupFlag, "Y")
		writeField(&body, TagOrigSendingTime, formatTime(m.Header.OrigSendingTime))
	}
	if m.Header.PossResend {
		writeField(&body, TagPossResend, "Y")
	}
	for _, tag := range m.Fields.Tags() {
		v, _ := m.Fields.Get(tag)
		writeField(&body, tag, v)
	}

	bodyStr := body.String()

	var head strings.Builder
	writeField(&head, TagBeginString, c.BeginString)
	writeField(&head, TagBodyLength, strconv.Itoa(len(bodyStr)))

	frame := head.String() + bodyStr
	sum := checksum([]byte(frame))

	var out strings.Builder
	out.WriteString(frame)
	writeField(&out, TagCheckSum, fmt.Sprintf("%03d", sum))
	return []byte(out.String()), nil
}

// DecodeFrame reads exactly one complete frame from r, validating BodyLength
// and CheckSum, and returns it as a Message with the well-known header tags
// split out of the FieldMap. It blocks on r the way any read of a
// blocking stream does; a connection closed mid-frame surfaces as
// ErrTruncated rather than a bare io.EOF.
func (c *Codec) DecodeFrame(r *bufio.Reader) (Message, error) {
	beginTag, beginVal, err := readField(r)
	if err != nil {
		return Message{}, wrapTruncated(err)
	}
	if beginTag != TagBeginString {
		return Message{}, ErrBadFormat
	}

	lenTag, lenVal, err := readField(r)
	if err != nil {
		return Message{}, wrapTruncated(err)
	}
	if lenTag != TagBodyLength {
		return Message{}, ErrBadFormat
	}
	bodyLen, err := strconv.Atoi(lenVal)
	if err != nil || bodyLen < 0 {
		return Message{}, ErrBadFormat
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, wrapTruncated(err)
	}

	trailerTag, trailerVal, err := readField(r)
	if err != nil {
		return Message{}, wrapTruncated(err)
	}
	if trailerTag != TagCheckSum {
		return Message{}, ErrBadFormat
	}

	head := fmt.Sprintf("8=%s\x019=%s\x01", beginVal, lenVal)
	want := checksum(append([]byte(head), body...))
	got, err := strconv.Atoi(trailerVal)
	if err != nil || got != want {
		return Message{}, ErrBadChecksum
	}

	m := NewMessage("")
	m.Header.BeginString = beginVal
	m.Header.BodyLength = bodyLen

	fields, err := splitFields(body)
	if err != nil {
		return Message{}, err
	}
	for _, f := range fields {
		switch f.tag {
		case TagMsgType:
			m.Header.MsgType = f.value
		case TagSenderCompID:
			m.Header.SenderCompID = f.value
		case TagTargetCompID:
			m.Header.TargetCompID = f.value
		case TagMsgSeqNum:
			n, err := strconv.Atoi(f.value)
			if err != nil {
				return Message{}, ErrBadFormat
			}
			m.Header.MsgSeqNum = n
		case TagSendingTime:
			t, err := parseTime(f.value)
			if err != nil {
				return Message{}, ErrBadFormat
			}
			m.Header.SendingTime = t
		case TagPossDupFlag:
			m.Header.PossDupFlag = f.value == "Y"
		case TagPossResend:
			m.Header.PossResend = f.value == "Y"
		case TagOrigSendingTime:
			t, err := parseTime(f.value)
			if err != nil {
				return Message{}, ErrBadFormat
			}
			m.Header.OrigSendingTime = t
		default:
			m.Fields.Set(f.tag, f.value)
		}
	}
	if m.Header.MsgType == "" {
		return Message{}, ErrBadFormat
	}
	if !c.Dictionary.Accepts(m.Header.MsgType) {
		return m, ErrUnknownMsgType
	}
	return m, nil
}

type rawField struct {
	tag   int
	value string
}

func splitFields(body []byte) ([]rawField, error) {
	var fields []rawField
	start := 0
	for i := 0; i < len(body); i++ {
		if body[i] != soh {
			continue
		}
		tag, value, err := parseTagValue(body[start:i])
		if err != nil {
			return nil, err
		}
		fields = append(fields, rawField{tag, value})
		start = i + 1
	}
	if start != len(body) {
		return nil, ErrBadFormat
	}
	return fields, nil
}

func parseTagValue(b []byte) (int, string, error) {
	eq := -1
	for i, c := range b {
		if c == '=' {
			eq = i
			break
		}
	}
	if eq < 0 {
		return 0, "", ErrBadFormat
	}
	tag, err := strconv.Atoi(string(b[:eq]))
	if err != nil {
		return 0, "", ErrBadFormat
	}
	return tag, string(b[eq+1:]), nil
}

// readField reads one tag=value<SOH> field from r.
func readField(r *bufio.Reader) (int, string, error) {
	raw, err := r.ReadBytes(soh)
	if err != nil {
		return 0, "", err
	}
	tag, value, err := parseTagValue(raw[:len(raw)-1])
	if err != nil {
		return 0, "", err
	}
	return tag, value, nil
}

func writeField(b *strings.Builder, tag int, value string) {
	b.WriteString(strconv.Itoa(tag))
	b.WriteByte('=')
	b.WriteString(value)
	b.WriteByte(soh)
}

// checksum is the mod-256 sum of every byte in b, per spec.md §6.
func checksum(b []byte) int {
	var sum int
	for _, c := range b {
		sum += int(c)
	}
	return sum % 256
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// wrapTruncated reports a connection closed or errored mid-frame as
// ErrTruncated, since that's the caller-actionable classification (do not
// treat it as a protocol violation).
func wrapTruncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrTruncated
	}
	return err
}
