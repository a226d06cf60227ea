package modem

import (
	"context"
	"strings"
	"time"

	"i4.energy/across/heracles/at"
)

// Handler inspects one intermediate line or URC. attempt counts the lines
// fed to the handler so far, starting at zero.
type Handler func(attempt int, line string) Status

// SendCommand transmits cmd and waits for its terminal response. With a
// non-empty match the last intermediate line must contain match, otherwise
// StatusNoMatch is returned. A zero timeout waits forever.
func (s *Session) SendCommand(ctx context.Context, cmd, match string, timeout time.Duration) Status {
	s.cmd.Lock()
	defer s.cmd.Unlock()
	return s.sendCommand(ctx, cmd, match, timeout)
}

// SendCommandWithHandler transmits cmd and feeds every intermediate line
// to h. A terminal OK yields the handler's last status, any other terminal
// response yields StatusError.
func (s *Session) SendCommandWithHandler(ctx context.Context, cmd string, h Handler, timeout time.Duration) Status {
	s.cmd.Lock()
	defer s.cmd.Unlock()
	return s.sendCommandWithHandler(ctx, cmd, h, timeout)
}

// WaitURC waits for a URC containing match, or for any URC when match is
// empty. URCs that do not match are discarded.
func (s *Session) WaitURC(ctx context.Context, match string, timeout time.Duration) Status {
	s.cmd.Lock()
	defer s.cmd.Unlock()
	return s.waitURC(ctx, match, timeout)
}

// WaitURCWithHandler feeds URCs to h until it returns anything but
// StatusWaiting.
func (s *Session) WaitURCWithHandler(ctx context.Context, h Handler, timeout time.Duration) Status {
	s.cmd.Lock()
	defer s.cmd.Unlock()
	return s.waitURCWithHandler(ctx, h, timeout)
}

// CheckResponse polls the outcome of the outstanding command once.
func (s *Session) CheckResponse(match string) Status {
	st, _ := s.checkResponse(match)
	return st
}

// CheckURC takes one queued URC, if any, and tests it against match.
func (s *Session) CheckURC(match string) Status {
	st, _ := s.checkURC(match)
	return st
}

func (s *Session) sendCommand(ctx context.Context, cmd, match string, timeout time.Duration) Status {
	start := time.Now()
	if st := s.begin(cmd, at.CmdAT); st != StatusOK {
		return st
	}

	d := newDeadline(ctx, start, timeout)
	defer d.stop()
	for {
		st, wake := s.checkResponse(match)
		if st != StatusWaiting {
			s.logResult(cmd, st)
			return st
		}
		if !d.wait(wake) {
			s.logResult(cmd, StatusTimeout)
			return StatusTimeout
		}
	}
}

func (s *Session) sendCommandWithHandler(ctx context.Context, cmd string, h Handler, timeout time.Duration) Status {
	start := time.Now()
	if st := s.begin(cmd, at.CmdAT); st != StatusOK {
		return st
	}

	d := newDeadline(ctx, start, timeout)
	defer d.stop()
	hstatus := StatusNoHandlerResp
	attempt := 0
	for {
		s.mu.Lock()
		msgs := s.msgs
		s.msgs = nil
		resp, serr := s.resp, s.serr
		s.resp, s.serr = at.EventNone, at.EventNone
		wake := s.wake
		s.mu.Unlock()

		for _, m := range msgs {
			hstatus = h(attempt, m)
			attempt++
		}
		if serr != at.EventNone {
			s.logEvent(cmd, serr)
			return StatusError
		}
		if resp != at.EventNone {
			if resp != at.EventOK {
				s.logEvent(cmd, resp)
				return StatusError
			}
			if hstatus != StatusWaiting {
				s.logResult(cmd, hstatus)
				return hstatus
			}
		}
		if !d.wait(wake) {
			s.logResult(cmd, StatusTimeout)
			return StatusTimeout
		}
	}
}

func (s *Session) waitURC(ctx context.Context, match string, timeout time.Duration) Status {
	d := newDeadline(ctx, time.Now(), timeout)
	defer d.stop()
	for {
		st, wake := s.checkURC(match)
		if st != StatusWaiting {
			return st
		}
		if s.urcPending() {
			continue
		}
		if !d.wait(wake) {
			s.log.Debug("URC wait timed out", "match", match)
			return StatusTimeout
		}
	}
}

func (s *Session) waitURCWithHandler(ctx context.Context, h Handler, timeout time.Duration) Status {
	d := newDeadline(ctx, time.Now(), timeout)
	defer d.stop()
	attempt := 0
	for {
		s.mu.Lock()
		serr := s.serr
		s.serr = at.EventNone
		urc, ok := s.popURC()
		wake := s.wake
		s.mu.Unlock()

		if serr != at.EventNone {
			s.log.Warn("Serial error while waiting for URC", "event", serr)
		}
		if ok {
			st := h(attempt, urc)
			attempt++
			if st != StatusWaiting {
				return st
			}
			continue
		}
		if !d.wait(wake) {
			return StatusTimeout
		}
	}
}

// begin clears what a previous command may have left behind and sends a
// new command line.
func (s *Session) begin(cmd string, typ at.CmdType) Status {
	s.mu.Lock()
	s.resp = at.EventNone
	s.msgs = nil
	s.mu.Unlock()

	if err := s.send([]byte(cmd), typ); err != nil {
		s.log.Error("Sending command failed", "command", trimCmd(cmd), "error", err)
		return StatusError
	}
	return StatusOK
}

// send arms the parser for typ and writes data.
func (s *Session) send(data []byte, typ at.CmdType) error {
	if s.transport == nil {
		return ErrNotOpen
	}
	s.mu.Lock()
	s.parser.Expect(typ)
	if typ == at.CmdIPData && s.config.BinaryEcho {
		s.parser.ExpectBinaryEcho(len(data))
	}
	s.mu.Unlock()

	s.log.Debug("tx", "type", typ, "data", string(data))
	_, err := s.transport.Write(data)
	return err
}

func (s *Session) checkResponse(match string) (Status, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.serr != at.EventNone {
		s.log.Warn("Serial error", "event", s.serr)
		s.serr = at.EventNone
		return StatusError, s.wake
	}
	if s.resp == at.EventNone {
		return StatusWaiting, s.wake
	}

	resp := s.resp
	s.resp = at.EventNone
	var last string
	avail := len(s.msgs) > 0
	if avail {
		last = s.msgs[len(s.msgs)-1]
	}
	s.msgs = nil

	switch {
	case resp != at.EventOK:
		if resp == at.EventCMEError || resp == at.EventCMSError {
			s.log.Warn("Modem reported error", "event", resp, "text", strings.TrimSpace(s.parser.ErrorText()))
		}
		return StatusError, s.wake
	case match == "":
		return StatusOK, s.wake
	case avail && strings.Contains(last, match):
		return StatusOK, s.wake
	default:
		s.log.Debug("Response did not match", "match", match, "last", last)
		return StatusNoMatch, s.wake
	}
}

// waitPrompt waits for the '>' that follows a header command. With socket
// set the wait also ends when the connection drops.
func (s *Session) waitPrompt(d *deadline, socket bool) Status {
	for {
		s.mu.Lock()
		prompt, state, wake := s.prompt, s.tcp.state, s.wake
		s.mu.Unlock()

		if prompt {
			return StatusOK
		}
		if socket && state != IPConnected {
			return StatusError
		}
		if st, _ := s.checkResponse(""); st == StatusError {
			return StatusError
		}
		if !d.wait(wake) {
			return StatusTimeout
		}
	}
}

func (s *Session) checkURC(match string) (Status, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	urc, ok := s.popURC()
	if !ok {
		return StatusWaiting, s.wake
	}
	if match == "" || strings.Contains(urc, match) {
		return StatusOK, s.wake
	}
	return StatusWaiting, s.wake
}

// popURC takes the oldest queued URC. Callers hold mu.
func (s *Session) popURC() (string, bool) {
	if len(s.urcs) == 0 {
		return "", false
	}
	urc := s.urcs[0]
	s.urcs = s.urcs[1:]
	return urc, true
}

func (s *Session) urcPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urcs) > 0
}

func (s *Session) logResult(cmd string, st Status) {
	if st == StatusOK {
		s.log.Debug("Command done", "command", trimCmd(cmd))
		return
	}
	s.log.Debug("Command failed", "command", trimCmd(cmd), "status", st)
}

func (s *Session) logEvent(cmd string, ev at.Event) {
	attrs := []any{"command", trimCmd(cmd), "event", ev}
	if ev == at.EventCMEError || ev == at.EventCMSError {
		attrs = append(attrs, "text", strings.TrimSpace(s.CMEError()))
	}
	s.log.Warn("Command rejected", attrs...)
}

func trimCmd(cmd string) string {
	return strings.TrimRight(cmd, "\r")
}

// deadline bounds a wait loop. The clock starts when the command was sent,
// so every wait of one operation shares the same budget.
type deadline struct {
	ctx   context.Context
	timer *time.Timer
	c     <-chan time.Time
}

func newDeadline(ctx context.Context, start time.Time, timeout time.Duration) *deadline {
	d := &deadline{ctx: ctx}
	if timeout > 0 {
		d.timer = time.NewTimer(max(timeout-time.Since(start), 0))
		d.c = d.timer.C
	}
	return d
}

// wait blocks until wake fires and reports false once the deadline passed
// or the context ended.
func (d *deadline) wait(wake <-chan struct{}) bool {
	select {
	case <-wake:
		return true
	case <-d.c:
		return false
	case <-d.ctx.Done():
		return false
	}
}

func (d *deadline) stop() {
	if d.timer != nil {
		d.timer.Stop()
	}
}

// sleep pauses for d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
