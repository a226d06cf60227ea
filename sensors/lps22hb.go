package sensors

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

const (
	// LPS22HBAddr is the address with SA0 pulled high.
	LPS22HBAddr = 0x5D

	lpsWhoAmI   = 0x0F
	lpsID       = 0xB1
	lpsCtrlReg1 = 0x10
	lpsPressOut = 0x28

	// 1 Hz, block data update.
	lpsCtrlRun = 0x12
	// lpsLSBPerHPa is the pressure sensitivity.
	lpsLSBPerHPa = 4096
)

// LPS22HB is the ST barometer. Register auto increment is on after reset.
type LPS22HB struct {
	dev *i2c.Dev
}

func NewLPS22HB(bus i2c.Bus, addr uint16) (*LPS22HB, error) {
	d := &i2c.Dev{Bus: bus, Addr: addr}
	if err := checkID(d, lpsWhoAmI, lpsID); err != nil {
		return nil, fmt.Errorf("lps22hb: %w", err)
	}
	if err := writeReg(d, lpsCtrlReg1, lpsCtrlRun); err != nil {
		return nil, fmt.Errorf("lps22hb: enable: %w", err)
	}
	return &LPS22HB{dev: d}, nil
}

func (p *LPS22HB) Name() string { return "lps22hb" }

func (p *LPS22HB) Capabilities() Capability { return Pressure }

func (p *LPS22HB) Sense(env *physic.Env) error {
	out, err := readReg(p.dev, lpsPressOut, 3)
	if err != nil {
		return fmt.Errorf("lps22hb: read: %w", err)
	}
	raw := int32(uint32(out[0])|uint32(out[1])<<8|uint32(out[2])<<16) << 8 >> 8
	hPa := float64(raw) / lpsLSBPerHPa
	env.Pressure = physic.Pressure(hPa * float64(100*physic.Pascal))
	return nil
}
