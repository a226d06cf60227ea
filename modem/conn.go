package modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

const (
	// connPoll bounds how long a blocked Read waits before asking the modem
	// again when no data notification arrived.
	connPoll = 250 * time.Millisecond
	// connWriteTimeout applies to each chunk when no write deadline is set.
	connWriteTimeout = 30 * time.Second
)

// Conn exposes the modem socket as a net.Conn so a TLS or MQTT client can
// run over it. Only one Conn should be in use per Session.
type Conn struct {
	s      *Session
	remote addr
	local  addr

	mu            sync.Mutex
	readDeadline  time.Time
	writeDeadline time.Time
	closed        bool
}

var _ net.Conn = (*Conn)(nil)

// Dial opens a TCP socket to host:port and wraps it in a Conn.
func (s *Session) Dial(ctx context.Context, host, port string) (*Conn, error) {
	if st := s.TCPOpen(ctx, host, port, false); st != StatusOK {
		return nil, fmt.Errorf("open socket to %s: %w", net.JoinHostPort(host, port), st.Err())
	}
	return &Conn{
		s:      s,
		remote: addr(net.JoinHostPort(host, port)),
		local:  addr(s.IPAddress()),
	}, nil
}

// Read blocks until socket data arrives, the socket closes or the read
// deadline passes.
func (c *Conn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		c.mu.Lock()
		closed, deadline := c.closed, c.readDeadline
		c.mu.Unlock()
		if closed {
			return 0, net.ErrClosed
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return 0, os.ErrDeadlineExceeded
		}

		// Take the wake channel before asking, so a notification that lands
		// in between is not missed.
		wake := c.s.wakeChan()
		n, st := c.s.TCPRead(context.Background(), p)
		switch st {
		case SocketOK:
			return n, nil
		case SocketClosed:
			return 0, io.EOF
		case SocketNoData:
		default:
			return 0, st.Err()
		}

		wait := connPoll
		if !deadline.IsZero() {
			wait = min(wait, time.Until(deadline))
		}
		t := time.NewTimer(wait)
		select {
		case <-wake:
		case <-t.C:
		}
		t.Stop()
	}
}

// Write sends p in chunks the modem accepts in one send.
func (c *Conn) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		c.mu.Lock()
		closed, deadline := c.closed, c.writeDeadline
		c.mu.Unlock()
		if closed {
			return written, net.ErrClosed
		}

		timeout := connWriteTimeout
		if !deadline.IsZero() {
			timeout = time.Until(deadline)
			if timeout <= 0 {
				return written, os.ErrDeadlineExceeded
			}
		}

		n := min(len(p)-written, MaxRecv)
		st := c.s.TCPWrite(context.Background(), p[written:written+n], timeout)
		switch st {
		case SocketOK:
			written += n
		case SocketTimeout:
			return written, os.ErrDeadlineExceeded
		case SocketClosed:
			return written, io.ErrClosedPipe
		default:
			return written, st.Err()
		}
	}
	return written, nil
}

// Close closes the modem socket. Closing twice returns net.ErrClosed.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return net.ErrClosed
	}
	c.closed = true
	c.mu.Unlock()

	if st := c.s.TCPClose(context.Background()); st != StatusOK {
		return fmt.Errorf("close socket: %w", st.Err())
	}
	return nil
}

func (c *Conn) LocalAddr() net.Addr  { return c.local }
func (c *Conn) RemoteAddr() net.Addr { return c.remote }

func (c *Conn) SetDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline = t
	c.writeDeadline = t
	return nil
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline = t
	return nil
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeDeadline = t
	return nil
}

// addr is the address of one end of a modem socket.
type addr string

func (a addr) Network() string { return "tcp" }
func (a addr) String() string  { return string(a) }

// IsClosed reports whether err means the modem socket is gone.
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, ErrClosed)
}
