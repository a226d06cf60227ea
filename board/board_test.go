package board_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"i4.energy/across/heracles/board"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// recordingPin remembers every level driven on it.
type recordingPin struct {
	*gpiotest.Pin
	mu     sync.Mutex
	levels []gpio.Level
}

func newRecordingPin(name string) *recordingPin {
	return &recordingPin{Pin: &gpiotest.Pin{N: name}}
}

func (p *recordingPin) Out(l gpio.Level) error {
	p.mu.Lock()
	p.levels = append(p.levels, l)
	p.mu.Unlock()
	return p.Pin.Out(l)
}

func (p *recordingPin) Levels() []gpio.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.levels)
}

var fastTiming = board.Timing{
	Settle:    time.Millisecond,
	KeyHigh:   time.Millisecond,
	KeyLow:    time.Millisecond,
	Poll:      time.Millisecond,
	OffKeyLow: time.Millisecond,
	OffStatus: 5 * time.Millisecond,
}

func newPower(t *testing.T, status gpio.Level) (*board.Power, *recordingPin, *recordingPin) {
	t.Helper()
	supply := newRecordingPin("SUPPLY")
	key := newRecordingPin("PWRKEY")
	p, err := board.NewPower(board.PowerConfig{
		Supply: supply,
		Key:    key,
		Status: &gpiotest.Pin{N: "STATUS", L: status},
		Timing: fastTiming,
	})
	if err != nil {
		t.Fatalf("unexpected error from NewPower(): %v", err)
	}
	return p, supply, key
}

func TestNewPower(t *testing.T) {
	t.Run("ErrNoPin when a pin is missing", func(t *testing.T) {
		_, err := board.NewPower(board.PowerConfig{Supply: newRecordingPin("SUPPLY")})
		if !errors.Is(err, board.ErrNoPin) {
			t.Errorf("expected ErrNoPin, got: %v", err)
		}
	})
}

func TestPowerOn(t *testing.T) {
	t.Run("Runs the key sequence", func(t *testing.T) {
		p, supply, key := newPower(t, gpio.High)

		if err := p.PowerOn(context.Background(), 50*time.Millisecond); err != nil {
			t.Fatalf("unexpected error from PowerOn(): %v", err)
		}
		if !slices.Equal(supply.Levels(), []gpio.Level{gpio.Low, gpio.High}) {
			t.Errorf("unexpected supply sequence: %v", supply.Levels())
		}
		if !slices.Equal(key.Levels(), []gpio.Level{gpio.Low, gpio.High, gpio.Low, gpio.High}) {
			t.Errorf("unexpected key sequence: %v", key.Levels())
		}
		if !p.On() {
			t.Error("expected modem to report on")
		}
	})

	t.Run("ErrNoStatus when STATUS stays low", func(t *testing.T) {
		p, _, _ := newPower(t, gpio.Low)

		start := time.Now()
		err := p.PowerOn(context.Background(), 20*time.Millisecond)
		if !errors.Is(err, board.ErrNoStatus) {
			t.Errorf("expected ErrNoStatus, got: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
			t.Errorf("expected to wait for the timeout, got: %v", elapsed)
		}
	})

	t.Run("Cancelled context", func(t *testing.T) {
		p, _, _ := newPower(t, gpio.Low)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := p.PowerOn(ctx, time.Second); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got: %v", err)
		}
	})
}

func TestPowerOff(t *testing.T) {
	tests := []struct {
		name   string
		status gpio.Level
	}{
		{"Status drops", gpio.Low},
		{"Status stuck high", gpio.High},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, supply, key := newPower(t, tt.status)

			if err := p.PowerOff(context.Background()); err != nil {
				t.Fatalf("unexpected error from PowerOff(): %v", err)
			}
			if !slices.Equal(key.Levels(), []gpio.Level{gpio.Low, gpio.High, gpio.Low}) {
				t.Errorf("unexpected key sequence: %v", key.Levels())
			}
			if !slices.Equal(supply.Levels(), []gpio.Level{gpio.Low}) {
				t.Errorf("expected supply cut, got: %v", supply.Levels())
			}
		})
	}
}

func TestLED(t *testing.T) {
	tests := []struct {
		name      string
		activeLow bool
		on        bool
		expected  gpio.Level
	}{
		{"Active high on", false, true, gpio.High},
		{"Active high off", false, false, gpio.Low},
		{"Active low on", true, true, gpio.Low},
		{"Active low off", true, false, gpio.High},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pin := newRecordingPin("LED")
			led := board.NewLED(pin, tt.activeLow)

			if err := led.Set(tt.on); err != nil {
				t.Fatalf("unexpected error from Set(): %v", err)
			}
			if got := pin.Read(); got != tt.expected {
				t.Errorf("expected level %v, got: %v", tt.expected, got)
			}
			if led.State() != tt.on {
				t.Errorf("expected state %v, got: %v", tt.on, led.State())
			}
		})
	}
}
