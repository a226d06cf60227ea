package modem

import (
	"context"
	"fmt"
	"strings"
	"time"

	"i4.energy/across/heracles/at"
)

const (
	// MaxRecv is the largest chunk requested from the modem by one read.
	MaxRecv = 1400

	pdpRetries      = 5
	pdpTimeout      = 20 * time.Second
	pdpPollTimeout  = 5 * time.Second
	pdpPollInterval = 100 * time.Millisecond
	openTimeout     = 20 * time.Second
	recvTimeout     = 5 * time.Second
	closeTimeout    = time.Second
	deactTimeout    = 5 * time.Second

	fsChunkSize     = 64
	fsChunkDelay    = 100 * time.Millisecond
	fsPromptTimeout = 500 * time.Millisecond
	// fsInputTimeout matches the input window requested with AT+FSWRITE.
	fsInputTimeout = 60 * time.Second
)

const (
	pdpActive  = "+CNACT: 0,1"
	openResult = "+CAOPEN: 0,"
)

// TCPOpen activates the PDP context and opens a TCP socket to addr:port.
// The tls flag is recorded for modems that terminate TLS themselves; the
// socket itself is always plain TCP.
func (s *Session) TCPOpen(ctx context.Context, addr, port string, tls bool) Status {
	s.cmd.Lock()
	defer s.cmd.Unlock()

	s.mu.Lock()
	s.tcp.ip = ""
	s.tcp.state = IPUnknown
	s.tcp.tls = tls
	s.tcp.dataAvail = false
	s.mu.Unlock()

	s.log.Info("Enabling PDP context", "apn", s.config.APN)
	if st := s.sendCommand(ctx, fmt.Sprintf("AT+CNCFG=0,1,%s\r", s.config.APN), "", shortTimeout); st != StatusOK {
		return st
	}

	var st Status
	for retry := 0; ; {
		s.sendCommand(ctx, "AT+CNACT=0,0\r", "", shortTimeout)
		sleep(ctx, pdpPollInterval)
		st = s.sendCommand(ctx, "AT+CNACT=0,1\r", "", shortTimeout)
		retry++
		if st == StatusOK || retry >= pdpRetries {
			break
		}
	}
	if st != StatusOK {
		s.log.Error("PDP activation failed", "status", st)
		return st
	}

	start := time.Now()
	for s.State() != IPGPRSAct {
		s.sendCommandWithHandler(ctx, "AT+CNACT?\r", s.pdpHandler, pdpPollTimeout)
		if s.State() == IPGPRSAct {
			break
		}
		if time.Since(start) > pdpTimeout || ctx.Err() != nil {
			s.log.Error("PDP context did not become active", "waited", time.Since(start))
			return StatusError
		}
		sleep(ctx, pdpPollInterval)
	}
	s.log.Info("PDP context active", "ip", s.IPAddress())

	s.sendCommand(ctx, "AT+CACLOSE=0\r", "", closeTimeout)

	cmd := fmt.Sprintf("AT+CAOPEN=0,0,\"TCP\",\"%s\",\"%s\"\r", addr, port)
	s.sendCommandWithHandler(ctx, cmd, s.socketHandler, openTimeout)
	if s.State() != IPConnected {
		s.log.Error("TCP connect failed", "addr", addr, "port", port, "state", s.State())
		return StatusError
	}
	s.log.Info("TCP connected", "addr", addr, "port", port)
	return StatusOK
}

// pdpHandler picks the local address out of a "+CNACT: 0,1,"a.b.c.d"" line.
func (s *Session) pdpHandler(_ int, line string) Status {
	i := strings.Index(line, pdpActive)
	if i < 0 {
		return StatusOK
	}
	rest := line[i+len(pdpActive):]
	rest = strings.TrimPrefix(rest, ",")
	rest = strings.TrimPrefix(rest, "\"")
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return StatusOK
	}

	s.mu.Lock()
	s.tcp.ip = rest[:end]
	s.tcp.state = IPGPRSAct
	s.mu.Unlock()
	return StatusOK
}

// socketHandler records the outcome of AT+CAOPEN, "+CAOPEN: 0,<result>".
func (s *Session) socketHandler(_ int, line string) Status {
	i := strings.Index(line, openResult)
	if i < 0 {
		return StatusOK
	}
	rest := line[i+len(openResult):]

	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.HasPrefix(rest, "0") {
		s.tcp.state = IPConnected
	} else {
		s.tcp.state = IPError
	}
	return StatusOK
}

// TCPRead copies pending socket data into buf. It returns SocketNoData
// unless the modem announced data since the last read, and at most MaxRecv
// bytes per call.
func (s *Session) TCPRead(ctx context.Context, buf []byte) (int, SocketStatus) {
	s.cmd.Lock()
	defer s.cmd.Unlock()

	s.mu.Lock()
	state, avail := s.tcp.state, s.tcp.dataAvail
	s.mu.Unlock()

	if state != IPConnected {
		return 0, SocketClosed
	}
	if !avail || len(buf) == 0 {
		return 0, SocketNoData
	}

	n := min(len(buf), MaxRecv)
	s.mu.Lock()
	s.tcp.buf = buf[:n]
	s.tcp.dataLen = 0
	s.tcp.overflow = false
	s.mu.Unlock()

	st := s.sendCommand(ctx, fmt.Sprintf("AT+CARECV=0,%d\r", n), "", recvTimeout)

	s.mu.Lock()
	dataLen, overflow := s.tcp.dataLen, s.tcp.overflow
	s.tcp.buf = nil
	if st != StatusOK && s.parser.Binary() {
		// The payload never completed; stop the parser writing into buf.
		s.parser.Reset(s.config.EchoOn)
	}
	s.mu.Unlock()

	switch {
	case st != StatusOK:
		s.log.Warn("Socket receive failed", "status", st)
		s.tcpClose(ctx)
		return 0, SocketClosed
	case overflow:
		return 0, SocketOverflow
	case dataLen > 0:
		return min(dataLen, n), SocketOK
	}
	return 0, SocketNoData
}

// TCPWrite sends data over the open socket and waits until the modem has
// accepted it. A zero timeout waits forever.
func (s *Session) TCPWrite(ctx context.Context, data []byte, timeout time.Duration) SocketStatus {
	s.cmd.Lock()
	defer s.cmd.Unlock()

	if s.State() != IPConnected {
		return SocketClosed
	}
	if len(data) == 0 {
		return SocketOK
	}

	start := time.Now()
	s.mu.Lock()
	s.prompt = false
	s.mu.Unlock()
	if st := s.begin(fmt.Sprintf("AT+CASEND=0,%d\r", len(data)), at.CmdIPHeader); st != StatusOK {
		return SocketClosed
	}

	d := newDeadline(ctx, start, timeout)
	defer d.stop()
	switch s.waitPrompt(d, true) {
	case StatusOK:
	case StatusTimeout:
		return SocketTimeout
	default:
		return SocketClosed
	}

	if err := s.send(data, at.CmdIPData); err != nil {
		s.log.Error("Sending socket payload failed", "error", err)
		return SocketClosed
	}
	for {
		if s.State() != IPConnected {
			return SocketClosed
		}
		st, wake := s.checkResponse("")
		switch st {
		case StatusOK:
			return SocketOK
		case StatusError:
			return SocketClosed
		}
		if !d.wait(wake) {
			return SocketTimeout
		}
	}
}

// TCPClose closes the socket and deactivates the PDP context. It is safe
// to call on a socket that is already closed.
func (s *Session) TCPClose(ctx context.Context) Status {
	s.cmd.Lock()
	defer s.cmd.Unlock()
	return s.tcpClose(ctx)
}

func (s *Session) tcpClose(ctx context.Context) Status {
	s.sendCommand(ctx, "AT+CACLOSE=0\r", "", closeTimeout)
	st := s.sendCommand(ctx, "AT+CNACT=0,0\r", "", deactTimeout)

	s.mu.Lock()
	s.tcp.state = IPClosed
	s.tcp.dataAvail = false
	s.mu.Unlock()
	s.log.Info("TCP closed")
	return st
}

// WriteFile stores data as name on the modem file system.
func (s *Session) WriteFile(ctx context.Context, name string, data []byte) Status {
	s.cmd.Lock()
	defer s.cmd.Unlock()

	start := time.Now()
	s.mu.Lock()
	s.prompt = false
	s.mu.Unlock()
	if st := s.begin(fmt.Sprintf("AT+FSWRITE=%s,0,%d,60\r", name, len(data)), at.CmdFSHeader); st != StatusOK {
		return st
	}

	d := newDeadline(ctx, start, fsPromptTimeout)
	st := s.waitPrompt(d, false)
	d.stop()
	if st != StatusOK {
		s.log.Warn("No prompt for file write", "name", name, "status", st)
		return st
	}

	d = newDeadline(ctx, time.Now(), fsInputTimeout)
	defer d.stop()
	for {
		if len(data) > 0 {
			n := min(len(data), fsChunkSize)
			if err := s.send(data[:n], at.CmdFSData); err != nil {
				s.log.Error("Sending file chunk failed", "name", name, "error", err)
				return StatusError
			}
			data = data[n:]
			if !sleep(ctx, fsChunkDelay) {
				return StatusTimeout
			}
		}

		st, wake := s.checkResponse("")
		if st != StatusWaiting {
			return st
		}
		if len(data) == 0 && !d.wait(wake) {
			return StatusTimeout
		}
	}
}
