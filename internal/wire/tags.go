package wire

// Well-known FIX tag numbers used directly by the session core. Application
// fields beyond these are passed through the codec as an opaque FieldMap.
const (
	TagBeginString     = 8
	TagBodyLength      = 9
	TagMsgType         = 35
	TagSenderCompID    = 49
	TagTargetCompID    = 56
	TagMsgSeqNum       = 34
	TagSendingTime     = 52
	TagPossDupFlag     = 43
	TagPossResend      = 97
	TagOrigSendingTime = 122
	TagCheckSum        = 10

	TagEncryptMethod        = 98
	TagHeartBtInt           = 108
	TagTestReqID            = 112
	TagBeginSeqNo           = 7
	TagEndSeqNo             = 16
	TagNewSeqNo             = 36
	TagGapFillFlag          = 123
	TagText                 = 58
	TagRefSeqNum            = 45
	TagRefTagID             = 371
	TagRefMsgType           = 372
	TagSessionRejectReason  = 373
	TagRawDataLength        = 95
	TagRawData              = 96
	TagResetSeqNumFlag      = 141
)

// MsgType values for admin (session-plane) messages, per spec.md §4.2.
const (
	MsgTypeHeartbeat      = "0"
	MsgTypeTestRequest    = "1"
	MsgTypeResendRequest  = "2"
	MsgTypeReject         = "3"
	MsgTypeSequenceReset  = "4"
	MsgTypeLogout         = "5"
	MsgTypeLogon          = "A"
)

// SessionRejectReason values for the Reject (session-level, tag 373) field,
// per the standard FIX session-reject-reason enumeration used in spec.md
// §4.2's rejection criteria.
const (
	RejectReasonInvalidTagNumber    = 0
	RejectReasonRequiredTagMissing  = 1
	RejectReasonValueOutOfRange     = 5
	RejectReasonCompIDProblem       = 9
	RejectReasonSendingTimeAccuracy = 10
	RejectReasonInvalidMsgType      = 11
	RejectReasonOther               = 99
)

// IsAdminMsgType reports whether t is one of the admin (session-level)
// MsgType values enumerated in spec.md §4.2.
func IsAdminMsgType(t string) bool {
	switch t {
	case MsgTypeHeartbeat, MsgTypeTestRequest, MsgTypeResendRequest,
		MsgTypeReject, MsgTypeSequenceReset, MsgTypeLogout, MsgTypeLogon:
		return true
	default:
		return false
	}
}

const (
	timeLayout = "20060102-15:04:05.000"
)
