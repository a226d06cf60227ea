package modem

//go:generate go tool mockgen -destination=mock_transport_test.go -package=modem . Transport,Dialer,PowerController

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Transport represents an established, bidirectional byte stream to a GSM modem.
//
// A Transport is assumed to be already connected and ready for use. Reads
// block until bytes arrive; the session runs a single reader goroutine that
// feeds everything it reads into the frame parser. Typical implementations
// include serial ports, TCP connections to emulators, or in-memory fakes
// used for testing.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a GSM modem.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port, TCP-based emulator, or test double). The session dials every
// time Init opens the serial channel after powering the modem.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport cannot be
	// established.
	Dial(ctx context.Context) (Transport, error)
}

// openPort opens a serial device. Tests replace it.
var openPort = serial.Open

// SerialDialer opens a GSM modem over a local serial port.
type SerialDialer struct {
	PortName string
	BaudRate int
	// Mode overrides BaudRate when set.
	Mode *serial.Mode
	// ReadTimeout bounds each read so Close can interrupt the reader. Zero
	// blocks until data arrives.
	ReadTimeout time.Duration
}

func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if d.PortName == "" {
		return nil, errors.New("gsm: serial port name is required")
	}
	if ctx == nil {
		return nil, errors.New("gsm: context is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud == 0 {
			baud = 115200
		}
		mode = &serial.Mode{
			BaudRate: baud,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := openPort(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("gsm: open %s: %w", d.PortName, err)
	}
	if d.ReadTimeout > 0 {
		if err := port.SetReadTimeout(d.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("gsm: set read timeout: %w", err)
		}
	}
	return &serialTransport{port: port}, nil
}

// serialTransport maps a zero-byte timed out read to a retry so the session
// reader only sees real data or real errors.
type serialTransport struct {
	port serial.Port
}

func (t *serialTransport) Read(p []byte) (int, error) {
	for {
		n, err := t.port.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

func (t *serialTransport) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

func (t *serialTransport) Close() error {
	return t.port.Close()
}
