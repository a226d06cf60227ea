package board

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// LED is the user LED. Boards that sink the LED current drive it active low.
type LED struct {
	pin       gpio.PinOut
	activeLow bool

	mu sync.Mutex
	on bool
}

func NewLED(pin gpio.PinOut, activeLow bool) *LED {
	return &LED{pin: pin, activeLow: activeLow}
}

func (l *LED) On() error  { return l.Set(true) }
func (l *LED) Off() error { return l.Set(false) }

func (l *LED) Set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	level := gpio.Level(on != l.activeLow)
	if err := l.pin.Out(level); err != nil {
		return fmt.Errorf("board: drive %s: %w", l.pin, err)
	}
	l.on = on
	return nil
}

// State returns the last level successfully written.
func (l *LED) State() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}
