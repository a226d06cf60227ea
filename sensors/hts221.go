package sensors

import (
	"encoding/binary"
	"errors"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

const (
	// HTS221Addr is the fixed I2C address of the HTS221.
	HTS221Addr = 0x5F

	htsWhoAmI   = 0x0F
	htsID       = 0xBC
	htsCtrlReg1 = 0x20
	htsOut      = 0x28
	htsCalib    = 0x30
	// htsAutoInc sets the sub-address auto increment bit for burst reads.
	htsAutoInc = 0x80

	// Power on, block data update, 1 Hz.
	htsCtrlRun = 0x85
)

// HTS221 is the ST humidity and temperature sensor. Readings are linear
// interpolations between two factory calibration points.
type HTS221 struct {
	dev *i2c.Dev

	h0RH, h1RH     float64
	h0Out, h1Out   float64
	t0degC, t1degC float64
	t0Out, t1Out   float64
}

func NewHTS221(bus i2c.Bus, addr uint16) (*HTS221, error) {
	d := &i2c.Dev{Bus: bus, Addr: addr}
	if err := checkID(d, htsWhoAmI, htsID); err != nil {
		return nil, fmt.Errorf("hts221: %w", err)
	}
	if err := writeReg(d, htsCtrlReg1, htsCtrlRun); err != nil {
		return nil, fmt.Errorf("hts221: enable: %w", err)
	}
	c, err := readReg(d, htsCalib|htsAutoInc, 16)
	if err != nil {
		return nil, fmt.Errorf("hts221: calibration: %w", err)
	}

	h := &HTS221{dev: d}
	h.h0RH = float64(c[0]) / 2
	h.h1RH = float64(c[1]) / 2
	h.t0degC = float64(uint16(c[5]&0x03)<<8|uint16(c[2])) / 8
	h.t1degC = float64(uint16(c[5]&0x0C)<<6|uint16(c[3])) / 8
	h.h0Out = float64(int16(binary.LittleEndian.Uint16(c[6:8])))
	h.h1Out = float64(int16(binary.LittleEndian.Uint16(c[10:12])))
	h.t0Out = float64(int16(binary.LittleEndian.Uint16(c[12:14])))
	h.t1Out = float64(int16(binary.LittleEndian.Uint16(c[14:16])))
	if h.h1Out == h.h0Out || h.t1Out == h.t0Out {
		return nil, errors.New("hts221: degenerate calibration")
	}
	return h, nil
}

func (h *HTS221) Name() string { return "hts221" }

func (h *HTS221) Capabilities() Capability { return Temperature | Humidity }

func (h *HTS221) Sense(env *physic.Env) error {
	out, err := readReg(h.dev, htsOut|htsAutoInc, 4)
	if err != nil {
		return fmt.Errorf("hts221: read: %w", err)
	}
	hRaw := float64(int16(binary.LittleEndian.Uint16(out[0:2])))
	tRaw := float64(int16(binary.LittleEndian.Uint16(out[2:4])))

	rh := h.h0RH + (hRaw-h.h0Out)*(h.h1RH-h.h0RH)/(h.h1Out-h.h0Out)
	rh = min(max(rh, 0), 100)
	degC := h.t0degC + (tRaw-h.t0Out)*(h.t1degC-h.t0degC)/(h.t1Out-h.t0Out)

	env.Humidity = physic.RelativeHumidity(rh * float64(physic.PercentRH))
	env.Temperature = physic.ZeroCelsius + physic.Temperature(degC*float64(physic.Celsius))
	return nil
}
