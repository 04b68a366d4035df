package wire

import (
	"bufio"
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fixengine/fixengine/internal/dictionary"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := NewCodec("FIX.4.2", dictionary.Default("FIX.4.2"))

	m := NewMessage(MsgTypeLogon)
	m.Header.SenderCompID = "INITIATOR"
	m.Header.TargetCompID = "ACCEPTOR"
	m.Header.MsgSeqNum = 1
	m.Header.SendingTime = time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	logon := Logon{EncryptMethod: 0, HeartBtInt: 30}
	m.Fields = logon.ToMessage().Fields

	frame, err := codec.Encode(m)
	require.NoError(t, err)
	require.Contains(t, string(frame), "8=FIX.4.2\x01")
	require.True(t, bytes.HasSuffix(frame, []byte("\x01"))) // trailer CheckSum field ends the frame

	decoded, err := codec.DecodeFrame(bufio.NewReader(bytes.NewReader(frame)))
	require.NoError(t, err)
	require.Equal(t, "FIX.4.2", decoded.Header.BeginString)
	require.Equal(t, MsgTypeLogon, decoded.Header.MsgType)
	require.Equal(t, "INITIATOR", decoded.Header.SenderCompID)
	require.Equal(t, "ACCEPTOR", decoded.Header.TargetCompID)
	require.Equal(t, 1, decoded.Header.MsgSeqNum)

	gotLogon, err := LogonFromMessage(decoded)
	require.NoError(t, err)
	require.Equal(t, 30, gotLogon.HeartBtInt)
}

func TestDecodeFrameBadChecksum(t *testing.T) {
	codec := NewCodec("FIX.4.2", dictionary.Default("FIX.4.2"))
	m := NewMessage(MsgTypeHeartbeat)
	m.Header.SenderCompID = "A"
	m.Header.TargetCompID = "B"
	m.Header.MsgSeqNum = 2

	frame, err := codec.Encode(m)
	require.NoError(t, err)

	corrupt := bytes.Replace(frame, []byte("49=A\x01"), []byte("49=Z\x01"), 1)
	_, err = codec.DecodeFrame(bufio.NewReader(bytes.NewReader(corrupt)))
	require.ErrorIs(t, err, ErrBadChecksum)
}

func TestDecodeFrameTruncated(t *testing.T) {
	codec := NewCodec("FIX.4.2", dictionary.Default("FIX.4.2"))
	m := NewMessage(MsgTypeHeartbeat)
	m.Header.SenderCompID = "A"
	m.Header.TargetCompID = "B"
	m.Header.MsgSeqNum = 2

	frame, err := codec.Encode(m)
	require.NoError(t, err)

	_, err = codec.DecodeFrame(bufio.NewReader(bytes.NewReader(frame[:len(frame)-10])))
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeFrameUnknownMsgType(t *testing.T) {
	// A dictionary that declares an application catalog no longer falls back
	// to accept-everything for undeclared MsgTypes — only Dictionary.Default
	// (no app catalog at all) gets that leniency.
	dict := &dictionary.Dictionary{
		BeginString: "FIX.4.2",
		Messages: map[string]dictionary.MessageDef{
			"D": {MsgType: "D", Name: "NewOrderSingle", MsgCat: "app"},
		},
	}
	codec := NewCodec("FIX.4.2", dict)

	m := NewMessage("Z")
	m.Header.SenderCompID = "A"
	m.Header.TargetCompID = "B"
	m.Header.MsgSeqNum = 1

	frame, err := codec.Encode(m)
	require.NoError(t, err)

	decoded, err := codec.DecodeFrame(bufio.NewReader(bytes.NewReader(frame)))
	require.ErrorIs(t, err, ErrUnknownMsgType)
	require.Equal(t, "Z", decoded.Header.MsgType) // populated message, not discarded
}

func TestFieldMapPreservesOrder(t *testing.T) {
	fm := NewFieldMap()
	fm.Set(55, "EUR/USD")
	fm.Set(54, "1")
	fm.Set(55, "EUR/USD-updated")
	require.Equal(t, []int{55, 54}, fm.Tags())
	v, ok := fm.Get(55)
	require.True(t, ok)
	require.Equal(t, "EUR/USD-updated", v)
}
