package wire

import "errors"

// Sentinel decode errors, per spec.md §4.4's four error kinds. Callers use
// errors.Is to tell an unknown MsgType (one message rejected, framing still
// sound) from the framing errors, after which the stream cannot be trusted.
var (
	// ErrTruncated means the stream ended (EOF) before a complete frame was
	// read. The partial frame's bytes have already been consumed, so the
	// read cannot be retried.
	ErrTruncated = errors.New("wire: truncated frame")

	// ErrBadChecksum means the trailing CheckSum field did not match the
	// computed mod-256 sum of the frame.
	ErrBadChecksum = errors.New("wire: checksum mismatch")

	// ErrBadFormat means the frame was not well-formed tag=value SOH data,
	// or a required header field was missing or malformed.
	ErrBadFormat = errors.New("wire: malformed frame")

	// ErrUnknownMsgType means the dictionary has no definition for the
	// frame's MsgType.
	ErrUnknownMsgType = errors.New("wire: unknown MsgType")
)
