package modem

import (
	"io"
	"strings"
	"sync"
)

// TestTransport is a test helper that simulates a modem behind a blocking
// transport. Replies are scripted per written command: every write of a
// command consumes the next reply registered for it, and the last reply is
// repeated once the script runs out. Commands without a script get no
// answer, the way a silent modem behaves.
type TestTransport struct {
	mu       sync.Mutex
	readChan chan []byte
	pending  []byte
	closed   bool
	echo     bool
	replies  map[string][]string
	writes   []string
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 256),
		replies:  make(map[string][]string),
	}
}

// WithEcho makes the transport echo every command line back, like a modem
// with ATE1.
func (t *TestTransport) WithEcho(on bool) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.echo = on
	return t
}

// Reply scripts the answers to cmd. cmd is matched against the written
// bytes without the trailing carriage return; raw payloads are matched
// as written.
func (t *TestTransport) Reply(cmd string, replies ...string) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies[cmd] = append(t.replies[cmd], replies...)
	return t
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}

	written := string(p)
	t.writes = append(t.writes, written)
	line := strings.HasSuffix(written, "\r")
	key := strings.TrimSuffix(written, "\r")

	if t.echo && line {
		t.readChan <- []byte(written + "\n")
	}
	if script := t.replies[key]; len(script) > 0 {
		reply := script[0]
		if len(script) > 1 {
			t.replies[key] = script[1:]
		}
		if reply != "" {
			t.readChan <- []byte(reply)
		}
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	if len(t.pending) > 0 {
		n = copy(p, t.pending)
		t.pending = t.pending[n:]
		t.mu.Unlock()
		return n, nil
	}
	t.mu.Unlock()

	data, ok := <-t.readChan
	if !ok {
		return 0, io.EOF
	}
	n = copy(p, data)
	if n < len(data) {
		t.mu.Lock()
		t.pending = append(t.pending, data[n:]...)
		t.mu.Unlock()
	}
	return n, nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the modem.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// Writes returns everything written so far, one entry per Write call.
func (t *TestTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

// Count returns how many times cmd was written.
func (t *TestTransport) Count(cmd string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, w := range t.writes {
		if strings.TrimSuffix(w, "\r") == cmd {
			n++
		}
	}
	return n
}
