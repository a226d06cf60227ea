package board

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Timing holds the power key sequence durations.
type Timing struct {
	// Settle keeps the supply off before the sequence starts.
	Settle time.Duration
	// KeyHigh and KeyLow are the two power key phases after the supply
	// comes up.
	KeyHigh time.Duration
	KeyLow  time.Duration
	// Poll is the STATUS sampling period while waiting for the modem.
	Poll time.Duration
	// OffKeyLow is the power key pulse that asks the modem to shut down.
	OffKeyLow time.Duration
	// OffStatus bounds the wait for STATUS to drop before the supply is cut.
	OffStatus time.Duration
}

// DefaultTiming matches the modem datasheet power key sequence.
var DefaultTiming = Timing{
	Settle:    1250 * time.Millisecond,
	KeyHigh:   time.Second,
	KeyLow:    time.Second,
	Poll:      10 * time.Millisecond,
	OffKeyLow: time.Second,
	OffStatus: 250 * time.Millisecond,
}

type PowerConfig struct {
	Supply gpio.PinOut
	Key    gpio.PinOut
	Status gpio.PinIn
	// Timing zero value selects DefaultTiming.
	Timing Timing
	Logger *slog.Logger
}

// Power sequences the modem supply and power key. It satisfies
// modem.PowerController.
type Power struct {
	supply gpio.PinOut
	key    gpio.PinOut
	status gpio.PinIn
	timing Timing
	log    *slog.Logger
}

func NewPower(c PowerConfig) (*Power, error) {
	if c.Supply == nil || c.Key == nil || c.Status == nil {
		return nil, ErrNoPin
	}
	if c.Timing == (Timing{}) {
		c.Timing = DefaultTiming
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return &Power{
		supply: c.Supply,
		key:    c.Key,
		status: c.Status,
		timing: c.Timing,
		log:    c.Logger.With("component", "power"),
	}, nil
}

// PowerOn power cycles the modem and waits up to timeout for STATUS to go
// high once the key sequence has finished.
func (p *Power) PowerOn(ctx context.Context, timeout time.Duration) error {
	p.log.Info("Powering modem on")

	steps := []struct {
		pin   gpio.PinOut
		level gpio.Level
		hold  time.Duration
	}{
		{p.supply, gpio.Low, 0},
		{p.key, gpio.Low, p.timing.Settle},
		{p.supply, gpio.High, 0},
		{p.key, gpio.High, p.timing.KeyHigh},
		{p.key, gpio.Low, p.timing.KeyLow},
		{p.key, gpio.High, 0},
	}
	for _, s := range steps {
		if err := s.pin.Out(s.level); err != nil {
			return fmt.Errorf("board: drive %s: %w", s.pin, err)
		}
		if err := sleep(ctx, s.hold); err != nil {
			return err
		}
	}

	if !p.waitStatus(ctx, gpio.High, timeout) {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.log.Error("Modem did not report status", "timeout", timeout)
		return ErrNoStatus
	}
	p.log.Info("Modem powered on")
	return nil
}

// PowerOff pulses the power key, gives the modem a moment to drop STATUS
// and then removes the supply. A modem that keeps STATUS high is cut off
// anyway.
func (p *Power) PowerOff(ctx context.Context) error {
	p.log.Info("Powering modem off")

	if err := p.key.Out(gpio.Low); err != nil {
		return fmt.Errorf("board: drive %s: %w", p.key, err)
	}
	if err := sleep(ctx, p.timing.OffKeyLow); err != nil {
		return err
	}
	if err := p.key.Out(gpio.High); err != nil {
		return fmt.Errorf("board: drive %s: %w", p.key, err)
	}
	if !p.waitStatus(ctx, gpio.Low, p.timing.OffStatus) {
		p.log.Warn("Modem status still high, cutting supply")
	}
	if err := p.supply.Out(gpio.Low); err != nil {
		return fmt.Errorf("board: drive %s: %w", p.supply, err)
	}
	if err := p.key.Out(gpio.Low); err != nil {
		return fmt.Errorf("board: drive %s: %w", p.key, err)
	}
	return nil
}

// On reports whether STATUS is high.
func (p *Power) On() bool {
	return p.status.Read() == gpio.High
}

func (p *Power) waitStatus(ctx context.Context, want gpio.Level, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(p.timing.Poll)
	defer ticker.Stop()
	for {
		if p.status.Read() == want {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
