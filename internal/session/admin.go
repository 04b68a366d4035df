package session

import (
	"bufio"
	"bytes"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fixengine/fixengine/internal/wire"
)

func (e *Engine) heartbeatInterval() time.Duration {
	return time.Duration(e.cfg.HeartBtInt) * time.Second
}

// peerIdleInterval is when a TestRequest fires after no inbound traffic, per
// spec.md §4.1's 1.2 × HeartBtInt.
func (e *Engine) peerIdleInterval() time.Duration {
	return e.heartbeatInterval() * 6 / 5
}

// onFrame applies the sequence-number contract from spec.md §4.1 and routes
// the message to the matching admin handler or, for anything else, to the
// application hook.
func (e *Engine) onFrame(msg wire.Message) error {
	e.timers.Set(timerPeerIdle, e.peerIdleInterval())

	if err := e.checkIdentity(msg); err != nil {
		e.beginLogout(err.Error())
		return errSessionEnded
	}

	if reason, text, ok := e.checkRejectable(msg); ok {
		return e.sendReject(msg.Header.MsgSeqNum, reason, text)
	}

	if msg.Header.MsgType == wire.MsgTypeSequenceReset {
		e.app.OnAdminMessage(msg, e.id, false)
		if err := e.handleSequenceReset(msg); err != nil {
			return err
		}
		return e.drainPending()
	}

	target, err := e.store.TargetSeqNum(e.id)
	if err != nil {
		return err
	}
	expected := target + 1
	seq := msg.Header.MsgSeqNum

	switch {
	case seq < expected:
		if !msg.Header.PossDupFlag {
			e.beginLogout(fmt.Sprintf("MsgSeqNum too low, expecting %d but received %d", expected, seq))
			return errSessionEnded
		}
		log.WithField("session", e.id).Debugf("accepting duplicate MsgSeqNum %d (expected %d)", seq, expected)
		return e.route(msg)

	case seq > expected:
		// Gap: per spec.md §4.1, buffer this message for replay once the
		// gap is filled rather than dropping it — the peer's ResendRequest
		// response will only cover [expected, seq-1], since we already
		// hold this one ourselves.
		if _, alreadyBuffered := e.pending[seq]; !alreadyBuffered {
			log.WithField("session", e.id).Warnf("sequence gap: expected %d, received %d", expected, seq)
			if err := e.sendResendRequest(expected, seq-1); err != nil {
				return err
			}
		}
		e.pending[seq] = msg
		return nil

	default:
		if err := e.store.SetTargetSeqNum(e.id, seq); err != nil {
			return err
		}
		if err := e.route(msg); err != nil {
			return err
		}
		return e.drainPending()
	}
}

// drainPending delivers buffered out-of-sequence messages (see the seq >
// expected case above) that have become contiguous with incoming_seqnum
// after a gap was filled, in strictly increasing MsgSeqNum order.
func (e *Engine) drainPending() error {
	for {
		target, err := e.store.TargetSeqNum(e.id)
		if err != nil {
			return err
		}
		next := target + 1
		msg, ok := e.pending[next]
		if !ok {
			return nil
		}
		delete(e.pending, next)
		if err := e.store.SetTargetSeqNum(e.id, next); err != nil {
			return err
		}
		if err := e.route(msg); err != nil {
			return err
		}
	}
}

// checkIdentity enforces spec.md §4.2's BeginString/comp-id mismatch
// criterion. Per §7 this is fatal (Logout + close), unlike the other
// rejection criteria below, since the peer is not who this session thinks
// it is talking to.
func (e *Engine) checkIdentity(msg wire.Message) error {
	if msg.Header.BeginString != e.cfg.BeginString {
		return fmt.Errorf("BeginString mismatch: expected %s, received %s", e.cfg.BeginString, msg.Header.BeginString)
	}
	if msg.Header.SenderCompID != e.cfg.TargetCompID || msg.Header.TargetCompID != e.cfg.SenderCompID {
		return fmt.Errorf("comp-id mismatch: expected sender=%s target=%s", e.cfg.TargetCompID, e.cfg.SenderCompID)
	}
	return nil
}

// checkRejectable implements the recoverable half of spec.md §4.2's
// rejection criteria: a PossDupFlag=Y message missing OrigSendingTime, and a
// SendingTime outside the configured accuracy window. Both leave
// incoming_seqnum untouched, since the caller returns before any sequence
// accounting happens.
func (e *Engine) checkRejectable(msg wire.Message) (reason int, text string, ok bool) {
	if msg.Header.PossDupFlag && msg.Header.OrigSendingTime.IsZero() {
		return wire.RejectReasonRequiredTagMissing, "PossDupFlag=Y without OrigSendingTime", true
	}
	if msg.Header.SendingTime.IsZero() {
		return wire.RejectReasonRequiredTagMissing, "missing SendingTime", true
	}
	skew := time.Since(msg.Header.SendingTime)
	if skew > e.cfg.SendingTimeAccuracy || skew < -e.cfg.SendingTimeAccuracy {
		return wire.RejectReasonSendingTimeAccuracy, "SendingTime accuracy problem", true
	}
	return 0, "", false
}

// sendReject emits a session-level Reject for a recoverable header problem.
// The triggering message's sequence number is left unadvanced by the
// caller, per spec.md §4.2.
func (e *Engine) sendReject(refSeqNum, reason int, text string) error {
	log.WithField("session", e.id).Warnf("rejecting MsgSeqNum=%d: %s", refSeqNum, text)
	return e.writeAdmin(wire.Reject{RefSeqNum: refSeqNum, SessionRejectReason: reason, Text: text}.ToMessage())
}

// onUnknownMsgType handles a frame the configured dictionary does not
// recognize (wire.ErrUnknownMsgType from DecodeFrame), per spec.md §4.2's
// unknown-MsgType rejection criterion: reject it and leave incoming_seqnum
// untouched, rather than either dropping it silently or forwarding it to the
// application hook as if it were legitimate.
func (e *Engine) onUnknownMsgType(msg wire.Message) error {
	e.timers.Set(timerPeerIdle, e.peerIdleInterval())

	if err := e.checkIdentity(msg); err != nil {
		e.beginLogout(err.Error())
		return errSessionEnded
	}

	log.WithField("session", e.id).Warnf("rejecting unknown MsgType %q at MsgSeqNum=%d", msg.Header.MsgType, msg.Header.MsgSeqNum)
	return e.writeAdmin(wire.Reject{
		RefSeqNum:           msg.Header.MsgSeqNum,
		RefMsgType:          msg.Header.MsgType,
		SessionRejectReason: wire.RejectReasonInvalidMsgType,
		Text:                "unknown MsgType",
	}.ToMessage())
}

func (e *Engine) route(msg wire.Message) error {
	if wire.IsAdminMsgType(msg.Header.MsgType) {
		e.app.OnAdminMessage(msg, e.id, false)
	}
	switch msg.Header.MsgType {
	case wire.MsgTypeLogon:
		return e.handleLogon(msg)
	case wire.MsgTypeHeartbeat:
		return e.handleHeartbeat(msg)
	case wire.MsgTypeTestRequest:
		return e.handleTestRequest(msg)
	case wire.MsgTypeResendRequest:
		return e.handleResendRequest(msg)
	case wire.MsgTypeLogout:
		return e.handleLogout(msg)
	case wire.MsgTypeReject:
		return e.handleReject(msg)
	default:
		if e.getState() != StateActive {
			return fmt.Errorf("session: application message received before logon completed")
		}
		return e.app.FromApp(msg, e.id)
	}
}

func (e *Engine) handleLogon(msg wire.Message) error {
	logon, err := wire.LogonFromMessage(msg)
	if err != nil {
		return err
	}
	if logon.ResetSeqNumFlag {
		if err := e.store.Reset(e.id); err != nil {
			return err
		}
	}

	switch {
	case e.role == Acceptor && e.getState() == StateLogonPending:
		e.timers.Cancel(timerLogon)
		if err := e.writeAdmin(wire.Logon{EncryptMethod: 0, HeartBtInt: e.cfg.HeartBtInt, ResetSeqNumFlag: logon.ResetSeqNumFlag}.ToMessage()); err != nil {
			return err
		}
		e.setState(StateActive)
		e.app.OnLogon(e.id)

	case e.role == Initiator && e.getState() == StateLogonPending:
		e.timers.Cancel(timerLogon)
		e.setState(StateActive)
		e.app.OnLogon(e.id)

	default:
		log.WithField("session", e.id).Warnf("unexpected Logon in state %s", e.getState())
	}
	return nil
}

func (e *Engine) handleHeartbeat(msg wire.Message) error {
	hb := wire.HeartbeatFromMessage(msg)
	if hb.TestReqID != "" && hb.TestReqID == e.pendingTestReqID {
		e.timers.Cancel(timerTestRequestTimeout)
		e.pendingTestReqID = ""
	}
	return nil
}

func (e *Engine) handleTestRequest(msg wire.Message) error {
	tr, err := wire.TestRequestFromMessage(msg)
	if err != nil {
		return err
	}
	return e.writeAdmin(wire.Heartbeat{TestReqID: tr.TestReqID}.ToMessage())
}

func (e *Engine) handleLogout(msg wire.Message) error {
	lo := wire.LogoutFromMessage(msg)
	if e.getState() == StateLogoutPending {
		e.timers.Cancel(timerShutdown)
		log.WithField("session", e.id).Infof("logout acknowledged by peer")
		return errSessionEnded
	}
	log.WithField("session", e.id).Infof("peer requested logout: %s", lo.Text)
	_ = e.writeAdmin(wire.Logout{Text: "responding to logout"}.ToMessage())
	e.app.OnLogout(e.id)
	return errSessionEnded
}

func (e *Engine) handleReject(msg wire.Message) error {
	r, err := wire.RejectFromMessage(msg)
	if err != nil {
		return err
	}
	log.WithField("session", e.id).Warnf("received Reject: refSeqNum=%d reason=%d text=%q", r.RefSeqNum, r.SessionRejectReason, r.Text)
	return nil
}

func (e *Engine) handleResendRequest(msg wire.Message) error {
	rr, err := wire.ResendRequestFromMessage(msg)
	if err != nil {
		return err
	}
	end := rr.EndSeqNo
	if end == 0 {
		end, err = e.store.SenderSeqNum(e.id)
		if err != nil {
			return err
		}
	}
	if err := e.serveResend(rr.BeginSeqNo, end); err != nil {
		return err
	}
	e.app.OnResendServiced(e.id)
	return nil
}

// serveResend replays stored application messages verbatim with
// PossDupFlag=Y and collapses each contiguous run of sequence numbers that
// were never persisted (because they were admin messages, which are never
// individually resent per spec.md §4.2) into a single SequenceReset
// gap-fill — the "one gap-fill per contiguous admin run" behavior.
func (e *Engine) serveResend(begin, end int) error {
	runStart := -1
	for seq := begin; seq <= end; seq++ {
		frames, err := e.store.LookupOutgoing(e.id, seq, seq)
		if err != nil {
			return err
		}
		if len(frames) == 1 {
			if runStart != -1 {
				if err := e.writeGapFill(runStart, seq); err != nil {
					return err
				}
				runStart = -1
			}
			if err := e.writeReplay(seq, frames[0]); err != nil {
				return err
			}
			continue
		}
		if runStart == -1 {
			runStart = seq
		}
	}
	if runStart != -1 {
		return e.writeGapFill(runStart, end+1)
	}
	return nil
}

func (e *Engine) handleSequenceReset(msg wire.Message) error {
	sr, err := wire.SequenceResetFromMessage(msg)
	if err != nil {
		return err
	}
	current, err := e.store.TargetSeqNum(e.id)
	if err != nil {
		return err
	}
	if !sr.GapFillFlag && sr.NewSeqNo <= current {
		log.WithField("session", e.id).Warnf("SequenceReset-Reset lowers sequence from %d to %d", current, sr.NewSeqNo)
	}
	if sr.GapFillFlag && sr.NewSeqNo <= current {
		log.WithField("session", e.id).Debugf("ignoring stale gap-fill NewSeqNo=%d (current=%d)", sr.NewSeqNo, current)
		return nil
	}
	return e.store.SetTargetSeqNum(e.id, sr.NewSeqNo-1)
}

func (e *Engine) sendResendRequest(begin, end int) error {
	return e.writeAdmin(wire.ResendRequest{BeginSeqNo: begin, EndSeqNo: end}.ToMessage())
}

// writeApp sends an application-level message, consuming a fresh sequence
// number and persisting the encoded frame so it can be replayed verbatim on
// a future ResendRequest.
func (e *Engine) writeApp(msg wire.Message) error {
	seq, err := e.store.NextSenderSeqNum(e.id)
	if err != nil {
		return err
	}
	e.stampHeader(&msg, seq, false, time.Time{})
	if err := e.app.ToApp(&msg, e.id); err != nil {
		return err
	}
	frame, err := e.codec.Encode(msg)
	if err != nil {
		return err
	}
	if err := e.store.SaveOutgoing(e.id, seq, frame); err != nil {
		return err
	}
	if err := e.transport.Write(frame); err != nil {
		return err
	}
	e.timers.Set(timerHeartbeat, e.heartbeatInterval())
	return nil
}

// writeAdmin sends a session-level message, consuming a sequence number but
// never persisting it — admin messages are gap-filled, not replayed.
func (e *Engine) writeAdmin(msg wire.Message) error {
	seq, err := e.store.NextSenderSeqNum(e.id)
	if err != nil {
		return err
	}
	e.stampHeader(&msg, seq, false, time.Time{})
	if msg.Header.MsgType == wire.MsgTypeTestRequest {
		if v, ok := msg.Fields.Get(wire.TagTestReqID); ok {
			e.pendingTestReqID = v
		}
	}
	frame, err := e.codec.Encode(msg)
	if err != nil {
		return err
	}
	if err := e.transport.Write(frame); err != nil {
		return err
	}
	e.timers.Set(timerHeartbeat, e.heartbeatInterval())
	e.app.OnAdminMessage(msg, e.id, true)
	return nil
}

// writeGapFill sends a SequenceReset-GapFill occupying the admin sequence
// range [beginSeq, newSeqNo), so it carries the first sequence number of
// the run it replaces rather than consuming a new one.
func (e *Engine) writeGapFill(beginSeq, newSeqNo int) error {
	m := wire.SequenceReset{NewSeqNo: newSeqNo, GapFillFlag: true}.ToMessage()
	e.stampHeader(&m, beginSeq, true, time.Now())
	frame, err := e.codec.Encode(m)
	if err != nil {
		return err
	}
	if err := e.transport.Write(frame); err != nil {
		return err
	}
	e.app.OnAdminMessage(m, e.id, true)
	e.app.OnGapFillSent(e.id)
	return nil
}

// writeReplay re-sends a previously persisted application frame verbatim,
// with PossDupFlag set and OrigSendingTime recording when it was first
// sent, per spec.md §3's duplicate-handling fields.
func (e *Engine) writeReplay(seq int, raw []byte) error {
	orig, err := e.codec.DecodeFrame(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return err
	}
	orig.Header.PossDupFlag = true
	orig.Header.OrigSendingTime = orig.Header.SendingTime
	orig.Header.SendingTime = time.Now()
	frame, err := e.codec.Encode(orig)
	if err != nil {
		return err
	}
	return e.transport.Write(frame)
}

func (e *Engine) stampHeader(msg *wire.Message, seq int, possDup bool, origSendingTime time.Time) {
	msg.Header.BeginString = e.cfg.BeginString
	msg.Header.SenderCompID = e.cfg.SenderCompID
	msg.Header.TargetCompID = e.cfg.TargetCompID
	msg.Header.MsgSeqNum = seq
	msg.Header.SendingTime = time.Now()
	msg.Header.PossDupFlag = possDup
	if possDup {
		msg.Header.OrigSendingTime = origSendingTime
	}
}

func (e *Engine) onTimer(name string) error {
	switch name {
	case timerLogon:
		// Initiator transition 3 (spec.md §4.1): logon never completed, so
		// send a Logout before closing. Acceptor transition 2: the peer was
		// never authenticated, so there's nothing to log out of — just
		// close the transport (handled by Run's defer).
		if e.role == Initiator {
			e.beginLogout("logon timeout")
		}
		return fmt.Errorf("session: logon not completed within %s", e.cfg.LogonTimeout)

	case timerHeartbeat:
		if err := e.writeAdmin(wire.Heartbeat{}.ToMessage()); err != nil {
			return err
		}
		e.app.OnHeartbeatSent(e.id)
		return nil

	case timerPeerIdle:
		reqID := fmt.Sprintf("TEST-%d-%d", e.seqForTestReqID(), time.Now().UnixNano())
		if err := e.writeAdmin(wire.TestRequest{TestReqID: reqID}.ToMessage()); err != nil {
			return err
		}
		e.app.OnTestRequestSent(e.id)
		// DeadPeerTimer per spec.md §4.1: 0.5 × HeartBtInt.
		e.timers.Set(timerTestRequestTimeout, e.heartbeatInterval()/2)
		return nil

	case timerTestRequestTimeout:
		return fmt.Errorf("session: no response to TestRequest, peer presumed dead")

	case timerShutdown:
		log.WithField("session", e.id).Warnf("peer did not acknowledge logout within %s, closing", e.cfg.ShutdownTimeout)
		return errSessionEnded

	default:
		return nil
	}
}

// seqForTestReqID gives each TestRequest a distinguishable id without
// depending on wall-clock resolution alone.
func (e *Engine) seqForTestReqID() int {
	n, _ := e.store.SenderSeqNum(e.id)
	return n
}
