package modem

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// NTPServer is the pool the modem synchronizes its clock against.
	NTPServer = "pool.ntp.org"

	ntpSyncTimeout = 15 * time.Second
	ntpCfgTimeout  = 5 * time.Second
	clockTimeout   = time.Second

	cclkPrefix = "+CCLK:"
	cclkLayout = "06/01/02,15:04:05"
)

// SyncTime points the modem clock at NTPServer and waits until the
// synchronization completes. tz is the timezone offset in quarter hours
// the modem applies to its local clock.
func (s *Session) SyncTime(ctx context.Context, tz int) Status {
	s.cmd.Lock()
	defer s.cmd.Unlock()

	s.sendCommand(ctx, "AT+CNTPCID=0\r", "", clockTimeout)

	st := s.sendCommand(ctx, fmt.Sprintf("AT+CNTP=\"%s\",%d,0,2\r", NTPServer, tz), "", ntpCfgTimeout)
	if st != StatusOK {
		s.log.Error("SNTP configuration failed", "status", st)
		return st
	}
	if st := s.sendCommand(ctx, "AT+CNTP\r", "", clockTimeout); st != StatusOK {
		s.log.Error("SNTP start failed", "status", st)
		return st
	}
	if st := s.waitURC(ctx, "+CNTP: 1", ntpSyncTimeout); st != StatusOK {
		s.log.Error("SNTP synchronization did not complete", "status", st)
		return st
	}
	s.log.Info("Modem clock synchronized", "server", NTPServer)
	return StatusOK
}

// Time reads the modem clock and returns it in UTC.
func (s *Session) Time(ctx context.Context) (time.Time, Status) {
	s.cmd.Lock()
	defer s.cmd.Unlock()

	var (
		now     time.Time
		parseOK bool
	)
	handler := func(_ int, line string) Status {
		if !strings.Contains(line, cclkPrefix) {
			return StatusWaiting
		}
		t, err := parseClock(line)
		if err != nil {
			s.log.Warn("Unreadable modem clock", "line", line, "error", err)
			return StatusError
		}
		now, parseOK = t, true
		return StatusOK
	}

	st := s.sendCommandWithHandler(ctx, "AT+CCLK?\r", handler, clockTimeout)
	if st != StatusOK || !parseOK {
		return time.Time{}, st
	}
	return now, StatusOK
}

// parseClock decodes a `+CCLK: "yy/MM/dd,hh:mm:ss±zz"` line, where zz is
// the offset from UTC in quarter hours.
func parseClock(line string) (time.Time, error) {
	open := strings.IndexByte(line, '"')
	if open < 0 {
		return time.Time{}, errors.New("missing opening quote")
	}
	rest := line[open+1:]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return time.Time{}, errors.New("missing closing quote")
	}
	value := rest[:end]
	if len(value) < len(cclkLayout) {
		return time.Time{}, fmt.Errorf("short clock value %q", value)
	}

	local, err := time.Parse(cclkLayout, value[:len(cclkLayout)])
	if err != nil {
		return time.Time{}, err
	}
	quarters := 0
	if zone := value[len(cclkLayout):]; zone != "" {
		quarters, err = strconv.Atoi(zone)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad zone %q: %w", zone, err)
		}
	}
	return local.Add(-time.Duration(quarters) * 15 * time.Minute).UTC(), nil
}
