// Package board drives the carrier board around the cellular modem: the
// supply switch, the power key, the STATUS line and the user LED.
package board

import (
	"errors"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

var (
	// ErrNoPin is returned when a required pin was not supplied.
	ErrNoPin = errors.New("board: pin not configured")

	// ErrPinNotFound is returned when a pin name is unknown to the host.
	ErrPinNotFound = errors.New("board: pin not found")

	// ErrNoStatus is returned when the modem never raised STATUS after the
	// power key sequence.
	ErrNoStatus = errors.New("board: modem status stayed low")
)

// Pins names the GPIO lines of the board as the host registry knows them
// (for example "GPIO17").
type Pins struct {
	Supply string `yaml:"supply"`
	Key    string `yaml:"key"`
	Status string `yaml:"status"`
	LED    string `yaml:"led"`
}

// Open resolves every pin by name. The host drivers must already be
// initialized with host.Init. The LED starts off.
func Open(pins Pins, logger *slog.Logger) (*Power, *LED, error) {
	supply, err := lookup(pins.Supply)
	if err != nil {
		return nil, nil, err
	}
	key, err := lookup(pins.Key)
	if err != nil {
		return nil, nil, err
	}
	status, err := lookup(pins.Status)
	if err != nil {
		return nil, nil, err
	}
	if err := status.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, nil, fmt.Errorf("board: configure %s: %w", pins.Status, err)
	}
	ledPin, err := lookup(pins.LED)
	if err != nil {
		return nil, nil, err
	}

	power, err := NewPower(PowerConfig{
		Supply: supply,
		Key:    key,
		Status: status,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, err
	}
	led := NewLED(ledPin, true)
	if err := led.Off(); err != nil {
		return nil, nil, err
	}
	return power, led, nil
}

func lookup(name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, ErrNoPin
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	return p, nil
}
