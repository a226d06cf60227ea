package modem

import (
	"context"
	"fmt"
	"time"

	"i4.energy/across/heracles/at"
)

const (
	smsModeTimeout   = time.Second
	smsPromptTimeout = 5 * time.Second
	// smsSendTimeout covers the network round trip of AT+CMGS.
	smsSendTimeout = 60 * time.Second
)

// SendSMS sends a text message to the specified recipient.
//
// The message is sent in text mode (not PDU mode). The recipient should be
// in international format (e.g., "+1234567890").
//
// This method blocks until the message is accepted by the network or an error
// occurs. Network delivery (to the final recipient) happens asynchronously.
func (s *Session) SendSMS(ctx context.Context, recipient, message string) Status {
	s.cmd.Lock()
	defer s.cmd.Unlock()

	if st := s.sendCommand(ctx, "AT+CMGF=1\r", "", smsModeTimeout); st != StatusOK {
		s.log.Error("Selecting SMS text mode failed", "status", st)
		return st
	}

	start := time.Now()
	s.mu.Lock()
	s.prompt = false
	s.mu.Unlock()
	if st := s.begin(fmt.Sprintf("AT+CMGS=\"%s\"\r", recipient), at.CmdSMSHeader); st != StatusOK {
		return st
	}
	d := newDeadline(ctx, start, smsPromptTimeout)
	st := s.waitPrompt(d, false)
	d.stop()
	if st != StatusOK {
		s.log.Error("Did not receive SMS prompt", "status", st)
		return st
	}

	body := append([]byte(message), at.CtrlZ)
	if err := s.send(body, at.CmdSMSBody); err != nil {
		s.log.Error("Sending SMS body failed", "error", err)
		return StatusError
	}

	d = newDeadline(ctx, time.Now(), smsSendTimeout)
	defer d.stop()
	for {
		st, wake := s.checkResponse("")
		if st != StatusWaiting {
			if st == StatusOK {
				s.log.Info("SMS sent", "recipient", recipient)
			} else {
				s.log.Error("SMS send failed", "recipient", recipient, "status", st)
			}
			return st
		}
		if !d.wait(wake) {
			return StatusTimeout
		}
	}
}
