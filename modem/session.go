package modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"i4.energy/across/heracles/at"
)

// queueDepth bounds the intermediate message and URC queues.
const queueDepth = 16

// Session drives one cellular modem over one serial channel. It owns the
// frame parser, the command/response record the parser fills and the
// reader goroutine feeding it. Commands are serialized: at most one is
// outstanding at any time.
type Session struct {
	config Config
	log    *slog.Logger

	// cmd is held for the whole of every public operation.
	cmd sync.Mutex

	// mu guards everything below it, including the parser.
	mu     sync.Mutex
	parser *at.Parser
	// wake is closed and replaced whenever the reader publishes.
	wake chan struct{}

	resp   at.Event
	serr   at.Event
	msgs   []string
	urcs   []string
	prompt bool
	tcp    socket

	transport Transport
	reader    *reader
	closed    bool
	firmware  string
}

// socket is the connection sub-state updated by the parser.
type socket struct {
	state     IPState
	buf       []byte
	dataLen   int
	dataAvail bool
	overflow  bool
	ip        string
	tls       bool
}

type reader struct {
	stop atomic.Bool
}

// New creates a Session. The serial channel is opened by Init.
func New(config Config) (*Session, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	s := &Session{
		config: config,
		log:    config.Logger.With("component", "modem"),
		wake:   make(chan struct{}),
		tcp:    socket{state: IPUnknown},
	}
	s.parser = at.NewParser(sink{s}, config.EchoOn)
	return s, nil
}

// Close shuts the serial channel and powers the modem down when a power
// controller is configured. A closed Session cannot be reused.
func (s *Session) Close() error {
	s.cmd.Lock()
	defer s.cmd.Unlock()

	if s.closed {
		return ErrAlreadyClosed
	}
	s.closed = true

	err := s.closeChannel()
	if s.config.Power != nil {
		if perr := s.config.Power.PowerOff(context.Background()); perr != nil {
			err = errors.Join(err, fmt.Errorf("power off: %w", perr))
		}
	}
	return err
}

// Firmware returns the revision reported by the modem during Init.
func (s *Session) Firmware() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firmware
}

// CMEError returns the text of the last CME or CMS error.
func (s *Session) CMEError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parser.ErrorText()
}

// State returns the current bearer/socket state.
func (s *Session) State() IPState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tcp.state
}

// IPAddress returns the address assigned when the bearer came up.
func (s *Session) IPAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tcp.ip
}

// resetContext puts the command/response record back to its defaults.
func (s *Session) resetContext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resp = at.EventNone
	s.serr = at.EventNone
	s.msgs = nil
	s.urcs = nil
	s.prompt = false
	s.tcp.state = IPUnknown
}

// open dials the serial channel and starts the reader. Any previous
// channel is closed first.
func (s *Session) open(ctx context.Context) error {
	if err := s.closeChannel(); err != nil {
		s.log.Warn("Closing previous channel failed", "error", err)
	}

	t, err := s.config.Dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("dial modem: %w", err)
	}
	if t == nil {
		return ErrNotOpen
	}

	s.mu.Lock()
	s.parser.Reset(s.config.EchoOn)
	s.mu.Unlock()

	r := &reader{}
	s.transport = t
	s.reader = r
	go s.readLoop(t, r)
	return nil
}

func (s *Session) closeChannel() error {
	if s.transport == nil {
		return nil
	}
	s.reader.stop.Store(true)
	err := s.transport.Close()
	s.transport = nil
	s.reader = nil
	return err
}

// readLoop is the only producer: it feeds every byte read from t into the
// parser and wakes waiting consumers.
func (s *Session) readLoop(t Transport, r *reader) {
	buf := make([]byte, at.LineSize)
	for {
		n, err := t.Read(buf)
		if r.stop.Load() {
			return
		}
		if n > 0 {
			s.log.Debug("rx", "data", string(buf[:n]))
			s.mu.Lock()
			s.parser.Write(buf[:n])
			s.notify()
			s.mu.Unlock()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Info("Modem channel closed")
			} else {
				s.log.Error("Modem channel read failed", "error", err)
			}
			s.mu.Lock()
			s.parser.Framing()
			s.notify()
			s.mu.Unlock()
			return
		}
	}
}

// wakeChan returns the channel closed by the next reader publish.
func (s *Session) wakeChan() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wake
}

// notify wakes every waiter. Callers hold mu.
func (s *Session) notify() {
	close(s.wake)
	s.wake = make(chan struct{})
}

// sink receives parser output on the reader goroutine with mu held.
type sink struct {
	s *Session
}

func (k sink) Event(ev at.Event, line []byte) {
	s := k.s
	switch ev {
	case at.EventOK, at.EventError, at.EventTimeout, at.EventCMEError, at.EventCMSError:
		s.resp = ev
	case at.EventOverflow, at.EventBreak, at.EventNoise:
		s.serr = ev
	case at.EventMsg:
		s.msgs = enqueue(s.msgs, string(line))
	case at.EventURC:
		s.urcs = enqueue(s.urcs, string(line))
	case at.EventPrompt:
		s.prompt = true
	case at.EventPowerDown:
		s.log.Warn("Modem reported power down")
	}
}

func (k sink) DataAvailable() {
	k.s.tcp.dataAvail = true
}

func (k sink) NoData() {
	k.s.tcp.dataAvail = false
	k.s.tcp.dataLen = 0
}

func (k sink) SocketClosed() {
	k.s.tcp.state = IPClosed
}

func (k sink) RecvHeader(n int) []byte {
	tcp := &k.s.tcp
	tcp.dataLen = n
	tcp.dataAvail = n > 0
	if n > 0 && tcp.buf != nil && n > len(tcp.buf) {
		tcp.overflow = true
	}
	return tcp.buf
}

func enqueue(q []string, line string) []string {
	if len(q) >= queueDepth {
		q = q[1:]
	}
	return append(q, line)
}
