package dictionary

// Default returns the well-known admin-field and admin-message shape shared
// by FIX.4.0 through FIX.4.4, so the engine is usable in tests and in
// minimal deployments without loading a dictionary file. Application-level
// fields are intentionally absent: spec.md scopes message-body semantics
// beyond the session-admin messages to the application hook, not the
// dictionary.
func Default(beginString string) *Dictionary {
	d := &Dictionary{
		BeginString: beginString,
		Fields: map[string]FieldDef{
			"BeginString":        {Tag: 8, Name: "BeginString", Type: "string", Required: true},
			"BodyLength":         {Tag: 9, Name: "BodyLength", Type: "int", Required: true},
			"MsgType":            {Tag: 35, Name: "MsgType", Type: "string", Required: true},
			"SenderCompID":       {Tag: 49, Name: "SenderCompID", Type: "string", Required: true},
			"TargetCompID":       {Tag: 56, Name: "TargetCompID", Type: "string", Required: true},
			"MsgSeqNum":          {Tag: 34, Name: "MsgSeqNum", Type: "int", Required: true},
			"SendingTime":        {Tag: 52, Name: "SendingTime", Type: "utctimestamp", Required: true},
			"PossDupFlag":        {Tag: 43, Name: "PossDupFlag", Type: "bool", Required: false},
			"PossResend":         {Tag: 97, Name: "PossResend", Type: "bool", Required: false},
			"OrigSendingTime":    {Tag: 122, Name: "OrigSendingTime", Type: "utctimestamp", Required: false},
			"CheckSum":           {Tag: 10, Name: "CheckSum", Type: "string", Required: true},
			"EncryptMethod":      {Tag: 98, Name: "EncryptMethod", Type: "int", Required: true},
			"HeartBtInt":         {Tag: 108, Name: "HeartBtInt", Type: "int", Required: true},
			"TestReqID":          {Tag: 112, Name: "TestReqID", Type: "string", Required: false},
			"BeginSeqNo":         {Tag: 7, Name: "BeginSeqNo", Type: "int", Required: true},
			"EndSeqNo":           {Tag: 16, Name: "EndSeqNo", Type: "int", Required: true},
			"NewSeqNo":           {Tag: 36, Name: "NewSeqNo", Type: "int", Required: true},
			"GapFillFlag":        {Tag: 123, Name: "GapFillFlag", Type: "bool", Required: false},
			"Text":               {Tag: 58, Name: "Text", Type: "string", Required: false},
			"RefSeqNum":          {Tag: 45, Name: "RefSeqNum", Type: "int", Required: true},
			"RefTagID":           {Tag: 371, Name: "RefTagID", Type: "int", Required: false},
			"RefMsgType":         {Tag: 372, Name: "RefMsgType", Type: "string", Required: false},
			"SessionRejectReason": {Tag: 373, Name: "SessionRejectReason", Type: "int", Required: false},
			"ResetSeqNumFlag":    {Tag: 141, Name: "ResetSeqNumFlag", Type: "bool", Required: false},
		},
		Header:  []string{"BeginString", "BodyLength", "MsgType", "SenderCompID", "TargetCompID", "MsgSeqNum", "SendingTime", "PossDupFlag", "PossResend", "OrigSendingTime"},
		Trailer: []string{"CheckSum"},
		Messages: map[string]MessageDef{
			"0": {MsgType: "0", Name: "Heartbeat", MsgCat: "admin", Fields: []string{"TestReqID"}},
			"1": {MsgType: "1", Name: "TestRequest", MsgCat: "admin", Fields: []string{"TestReqID"}},
			"2": {MsgType: "2", Name: "ResendRequest", MsgCat: "admin", Fields: []string{"BeginSeqNo", "EndSeqNo"}},
			"3": {MsgType: "3", Name: "Reject", MsgCat: "admin", Fields: []string{"RefSeqNum", "RefTagID", "RefMsgType", "SessionRejectReason", "Text"}},
			"4": {MsgType: "4", Name: "SequenceReset", MsgCat: "admin", Fields: []string{"NewSeqNo", "GapFillFlag"}},
			"5": {MsgType: "5", Name: "Logout", MsgCat: "admin", Fields: []string{"Text"}},
			"A": {MsgType: "A", Name: "Logon", MsgCat: "admin", Fields: []string{"EncryptMethod", "HeartBtInt", "ResetSeqNumFlag"}},
		},
	}
	return d
}
