package modem

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Command timeouts used by the init sequence.
const (
	versionTimeout = time.Second
	shortTimeout   = 2 * time.Second
	// flushTimeout is used for commands whose outcome does not matter.
	flushTimeout = time.Millisecond
)

const (
	revisionPrefix = "Revision:"
	csqPrefix      = "+CSQ: "
	cregPrefix     = "+CREG:"
)

// UnknownRSSI is returned by CSQ when the modem reports no signal value.
const UnknownRSSI = 99

// Init powers the modem, opens the serial channel and brings the modem
// into a known state: responsive, verbose errors, the SIM slot sim
// selected and the SIM unlocked, entering pin if the SIM asks for one.
// Any socket left open by a previous run is closed.
//
// Init is safe to call again after a failure; it restarts from scratch.
func (s *Session) Init(ctx context.Context, sim SIM, pin string) Status {
	s.cmd.Lock()
	defer s.cmd.Unlock()

	if s.closed {
		s.log.Error("Init on closed session")
		return StatusError
	}
	s.resetContext()

	if s.config.Power != nil {
		if err := s.config.Power.PowerOn(ctx, s.config.PowerOnTimeout); err != nil {
			s.log.Error("Modem power on failed", "error", err)
			return StatusError
		}
	}
	if err := s.open(ctx); err != nil {
		s.log.Error("Opening modem channel failed", "error", err)
		return StatusError
	}

	for retry := 0; ; retry++ {
		st := s.sendCommand(ctx, "AT\r", "", s.config.ProbeTimeout)
		if st == StatusOK {
			break
		}
		if retry >= s.config.WakeupRetries {
			s.log.Error("Modem did not answer", "attempts", retry+1, "status", st)
			return st
		}
	}

	if st := s.sendCommandWithHandler(ctx, "AT+GMR\r", s.versionHandler, versionTimeout); st != StatusOK {
		s.log.Warn("Reading firmware revision failed", "status", st)
	}
	if st := s.sendCommand(ctx, "AT+CMNB=1\r", "", versionTimeout); st != StatusOK {
		s.log.Warn("Selecting network mode failed", "status", st)
	}
	if st := s.sendCommand(ctx, "AT+CMEE=2\r", "", shortTimeout); st != StatusOK {
		s.log.Warn("Enabling verbose errors failed", "status", st)
	}
	if st := s.sendCommand(ctx, fmt.Sprintf("AT+CSIMSW=%d\r", sim), "", shortTimeout); st != StatusOK {
		s.log.Warn("Selecting SIM slot failed", "sim", sim, "status", st)
	}

	st := s.unlockSIM(ctx, pin)
	if st != StatusOK {
		return st
	}

	// Drop any connection left over from a previous run.
	s.sendCommand(ctx, "AT+CACLOSE=0\r", "", flushTimeout)
	s.sendCommand(ctx, "AT+CNACT=0,0\r", "", flushTimeout)

	s.log.Info("Modem initialized", "firmware", s.Firmware())
	return st
}

// unlockSIM waits for the SIM to report ready, entering pin when it does
// not.
func (s *Session) unlockSIM(ctx context.Context, pin string) Status {
	st := s.sendCommand(ctx, "AT+CPIN?\r", "READY", s.config.SIMTimeout)
	if st == StatusOK {
		return st
	}
	st = s.waitURC(ctx, "+CPIN: READY", s.config.SIMTimeout)
	if st == StatusOK {
		return st
	}

	if pin == "" {
		s.log.Error("SIM not ready", "error", ErrSIMPinRequired, "status", st)
		return st
	}
	if st := s.sendCommand(ctx, fmt.Sprintf("AT+CPIN=%s\r", pin), "", shortTimeout); st != StatusOK {
		s.log.Error("SIM PIN rejected", "status", st, "cme", s.CMEError())
		return st
	}
	st = s.waitURC(ctx, "+CPIN: READY", s.config.SIMTimeout)
	if st != StatusOK {
		s.log.Error("SIM did not unlock", "status", st)
	}
	return st
}

func (s *Session) versionHandler(_ int, line string) Status {
	i := strings.Index(line, revisionPrefix)
	if i < 0 {
		return StatusError
	}
	s.mu.Lock()
	s.firmware = strings.TrimSpace(line[i+len(revisionPrefix):])
	s.mu.Unlock()
	return StatusOK
}

// CSQ queries the received signal strength and returns it in dBm. When the
// modem reports no value the status is StatusUnknownRSSI and the returned
// level is UnknownRSSI.
func (s *Session) CSQ(ctx context.Context, timeout time.Duration) (int, Status) {
	s.cmd.Lock()
	defer s.cmd.Unlock()

	rssi := UnknownRSSI
	handler := func(_ int, line string) Status {
		v, st := parseCSQ(line)
		if st == StatusOK && v >= 0 {
			rssi = v
		}
		return st
	}

	st := s.sendCommandWithHandler(ctx, "AT+CSQ\r", handler, timeout)
	if st != StatusOK {
		return UnknownRSSI, st
	}
	dbm, ok := RSSIToDBm(rssi)
	if !ok {
		return UnknownRSSI, StatusUnknownRSSI
	}
	return dbm, StatusOK
}

// parseCSQ extracts the raw RSSI index from a "+CSQ: <rssi>,<ber>" line.
// Lines of any other kind are accepted and yield -1.
func parseCSQ(line string) (int, Status) {
	i := strings.Index(line, csqPrefix)
	if i < 0 {
		return -1, StatusOK
	}
	digits := line[i+len(csqPrefix):]
	if j := strings.IndexByte(digits, ','); j >= 0 {
		digits = digits[:j]
	}
	if len(digits) == 0 || len(digits) > 2 {
		return -1, StatusError
	}
	v := 0
	for _, c := range digits {
		if c < '0' || c > '9' {
			return -1, StatusError
		}
		v = v*10 + int(c-'0')
	}
	return v, StatusOK
}

// RSSIToDBm converts a raw +CSQ RSSI index into dBm. ok is false for
// indices outside 0..31, including 99 (not known).
func RSSIToDBm(rssi int) (dbm int, ok bool) {
	switch {
	case rssi == 0:
		return -115, true
	case rssi == 1:
		return -111, true
	case rssi >= 2 && rssi <= 30:
		return -110 + 2*(rssi-2), true
	case rssi == 31:
		return -52, true
	}
	return 0, false
}

// Registration reports the network registration state. StatusOK means
// registered (home or roaming), StatusSearching that the modem is still
// looking and StatusDenied that the network refused it.
func (s *Session) Registration(ctx context.Context, timeout time.Duration) Status {
	s.cmd.Lock()
	defer s.cmd.Unlock()
	return s.sendCommandWithHandler(ctx, "AT+CREG?\r", registrationHandler, timeout)
}

func registrationHandler(_ int, line string) Status {
	if !strings.Contains(line, cregPrefix) {
		return StatusWaiting
	}
	switch {
	case strings.Contains(line, "+CREG: 0,1"), strings.Contains(line, "+CREG: 0,5"):
		return StatusOK
	case strings.Contains(line, "+CREG: 0,0"), strings.Contains(line, "+CREG: 0,2"):
		return StatusSearching
	case strings.Contains(line, "+CREG: 0,3"):
		return StatusDenied
	}
	return StatusError
}

// Attached reports whether the modem is attached to the packet domain.
func (s *Session) Attached(ctx context.Context, timeout time.Duration) Status {
	s.cmd.Lock()
	defer s.cmd.Unlock()
	return s.sendCommand(ctx, "AT+CGATT?\r", "+CGATT: 1", timeout)
}
