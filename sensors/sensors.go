// Package sensors reads the environmental sensors on the I2C expansion
// board. Each chip is a Sensor that declares the quantities it measures;
// a Set merges them into one Snapshot.
package sensors

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
)

// ErrWrongDevice is returned when the WHO_AM_I register does not identify
// the expected chip.
var ErrWrongDevice = errors.New("sensors: unexpected device id")

// Capability is a bit set of measured quantities.
type Capability uint8

const (
	Temperature Capability = 1 << iota
	Humidity
	Pressure
)

func (c Capability) String() string {
	var parts []string
	for _, q := range []struct {
		c    Capability
		name string
	}{{Temperature, "temperature"}, {Humidity, "humidity"}, {Pressure, "pressure"}} {
		if c&q.c != 0 {
			parts = append(parts, q.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Sensor is one chip on the bus. Sense fills only the fields of env named
// by Capabilities.
type Sensor interface {
	Name() string
	Capabilities() Capability
	Sense(env *physic.Env) error
}

// Snapshot is the merged result of one pass over a Set.
type Snapshot struct {
	Time time.Time
	Has  Capability
	Env  physic.Env
}

func (s Snapshot) Celsius() (float64, bool) {
	if s.Has&Temperature == 0 {
		return 0, false
	}
	return float64(s.Env.Temperature-physic.ZeroCelsius) / float64(physic.Celsius), true
}

func (s Snapshot) RelativeHumidity() (float64, bool) {
	if s.Has&Humidity == 0 {
		return 0, false
	}
	return float64(s.Env.Humidity) / float64(physic.PercentRH), true
}

func (s Snapshot) Hectopascal() (float64, bool) {
	if s.Has&Pressure == 0 {
		return 0, false
	}
	return float64(s.Env.Pressure) / float64(100*physic.Pascal), true
}

// Set reads a group of sensors. The first sensor providing a quantity wins.
type Set struct {
	sensors []Sensor
	log     *slog.Logger
	now     func() time.Time

	mu   sync.Mutex
	last Snapshot
}

func NewSet(logger *slog.Logger, sensors ...Sensor) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	return &Set{
		sensors: sensors,
		log:     logger.With("component", "sensors"),
		now:     time.Now,
	}
}

// Snapshot reads every sensor. A failing sensor is logged and left out.
func (s *Set) Snapshot() Snapshot {
	snap := Snapshot{Time: s.now()}
	for _, sensor := range s.sensors {
		want := sensor.Capabilities() &^ snap.Has
		if want == 0 {
			continue
		}
		var env physic.Env
		if err := sensor.Sense(&env); err != nil {
			s.log.Warn("Sensor read failed", "sensor", sensor.Name(), "error", err)
			continue
		}
		if want&Temperature != 0 {
			snap.Env.Temperature = env.Temperature
		}
		if want&Humidity != 0 {
			snap.Env.Humidity = env.Humidity
		}
		if want&Pressure != 0 {
			snap.Env.Pressure = env.Pressure
		}
		snap.Has |= want
	}

	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()
	return snap
}

// Last returns the most recent Snapshot without touching the bus.
func (s *Set) Last() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Addresses selects the I2C address of each chip. Zero skips the chip.
type Addresses struct {
	HTS221  uint16 `yaml:"hts221"`
	LPS22HB uint16 `yaml:"lps22hb"`
}

// Open opens the named bus ("" picks the first one) and probes every
// configured chip. A chip that does not answer is logged and skipped, so a
// board without the expansion still reports an empty Set. The returned
// closer releases the bus.
func Open(bus string, addrs Addresses, logger *slog.Logger) (*Set, i2c.BusCloser, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, nil, fmt.Errorf("sensors: open bus %q: %w", bus, err)
	}

	var found []Sensor
	if addrs.HTS221 != 0 {
		if h, err := NewHTS221(b, addrs.HTS221); err != nil {
			logger.Warn("HTS221 not available", "addr", addrs.HTS221, "error", err)
		} else {
			found = append(found, h)
		}
	}
	if addrs.LPS22HB != 0 {
		if p, err := NewLPS22HB(b, addrs.LPS22HB); err != nil {
			logger.Warn("LPS22HB not available", "addr", addrs.LPS22HB, "error", err)
		} else {
			found = append(found, p)
		}
	}
	return NewSet(logger, found...), b, nil
}

func readReg(d *i2c.Dev, reg byte, n int) ([]byte, error) {
	r := make([]byte, n)
	if err := d.Tx([]byte{reg}, r); err != nil {
		return nil, err
	}
	return r, nil
}

func writeReg(d *i2c.Dev, reg, value byte) error {
	return d.Tx([]byte{reg, value}, nil)
}

func checkID(d *i2c.Dev, reg, want byte) error {
	id, err := readReg(d, reg, 1)
	if err != nil {
		return err
	}
	if id[0] != want {
		return fmt.Errorf("%w: 0x%02X, expected 0x%02X", ErrWrongDevice, id[0], want)
	}
	return nil
}
