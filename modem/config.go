package modem

import (
	"log/slog"
	"time"
)

const (
	DefaultAPN            = "wsiot"
	DefaultWakeupRetries  = 5
	DefaultProbeTimeout   = time.Second
	DefaultPowerOnTimeout = 5 * time.Second
	DefaultSIMTimeout     = 5 * time.Second
)

type Config struct {
	Dialer Dialer
	// Power sequences the modem supply and power key. Nil means the modem
	// is powered externally.
	Power  PowerController
	Logger *slog.Logger

	APN string

	// EchoOn keeps command echo enabled, which lets the parser tell a URC
	// apart from the reply to a command sent at the same moment.
	EchoOn bool
	// BinaryEcho is set for modems that echo raw socket payloads back.
	BinaryEcho bool

	// WakeupRetries is the number of AT probes sent after the first one
	// goes unanswered. Zero probes once.
	WakeupRetries  int
	ProbeTimeout   time.Duration
	PowerOnTimeout time.Duration
	// SIMTimeout bounds each wait for the SIM to report ready.
	SIMTimeout time.Duration
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.APN == "" {
		c.APN = DefaultAPN
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.PowerOnTimeout == 0 {
		c.PowerOnTimeout = DefaultPowerOnTimeout
	}
	if c.SIMTimeout == 0 {
		c.SIMTimeout = DefaultSIMTimeout
	}
}

// ConfigBuilder assembles a Config. Echo is enabled and the probe retries
// DefaultWakeupRetries times unless changed.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{config: Config{
		EchoOn:        true,
		WakeupRetries: DefaultWakeupRetries,
	}}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithPower(p PowerController) *ConfigBuilder {
	b.config.Power = p
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

func (b *ConfigBuilder) WithAPN(apn string) *ConfigBuilder {
	b.config.APN = apn
	return b
}

func (b *ConfigBuilder) WithEcho(on bool) *ConfigBuilder {
	b.config.EchoOn = on
	return b
}

func (b *ConfigBuilder) WithBinaryEcho(on bool) *ConfigBuilder {
	b.config.BinaryEcho = on
	return b
}

func (b *ConfigBuilder) WithWakeupRetries(n int) *ConfigBuilder {
	b.config.WakeupRetries = n
	return b
}

func (b *ConfigBuilder) WithProbeTimeout(d time.Duration) *ConfigBuilder {
	b.config.ProbeTimeout = d
	return b
}

func (b *ConfigBuilder) WithPowerOnTimeout(d time.Duration) *ConfigBuilder {
	b.config.PowerOnTimeout = d
	return b
}

func (b *ConfigBuilder) WithSIMTimeout(d time.Duration) *ConfigBuilder {
	b.config.SIMTimeout = d
	return b
}

// Build validates the collected settings and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
