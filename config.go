package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
	"i4.energy/across/heracles/board"
	"i4.energy/across/heracles/modem"
	"i4.energy/across/heracles/sensors"
)

// BrokerConfig describes the MQTT broker and the device identity on it.
type BrokerConfig struct {
	// Host is the broker host name, also used for TLS server name checks
	Host string `yaml:"host"`
	// Port is the MQTT over TLS port (e.g. "8883")
	Port string `yaml:"port"`
	// CompanyID and DeviceID form the MQTT client id "<cpid>-<devid>"
	CompanyID string `yaml:"company_id"`
	DeviceID  string `yaml:"device_id"`
	// CAFile, CertFile and KeyFile are PEM files for mutual TLS
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ClientID returns the MQTT client id of the device.
func (b BrokerConfig) ClientID() string {
	return b.CompanyID + "-" + b.DeviceID
}

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the status server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string `yaml:"serial_port"`
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int `yaml:"baud_rate"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`
	// SIM selects the SIM slot: "external" or "internal"
	SIM string `yaml:"sim"`
	// SimPIN is the SIM card PIN code
	SimPIN string `yaml:"sim_pin"`
	// APN is the access point name used for the data bearer
	APN string `yaml:"apn"`

	Broker BrokerConfig `yaml:"broker"`
	// PublishInterval is the period of telemetry reports
	PublishInterval time.Duration `yaml:"publish_interval"`
	// TimeZone is the modem clock offset in quarter hours. SyncTime enables
	// one SNTP synchronization per boot.
	TimeZone int  `yaml:"timezone"`
	SyncTime bool `yaml:"sync_time"`

	// Board enables GPIO power sequencing and the LED. Without it the modem
	// is assumed to be powered externally.
	Board bool       `yaml:"board"`
	Pins  board.Pins `yaml:"pins"`

	// I2CBus names the sensor bus; empty picks the first bus.
	I2CBus  string            `yaml:"i2c_bus"`
	Sensors sensors.Addresses `yaml:"sensors"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if _, err := c.SIMSlot(); err != nil {
		return err
	}
	if c.PublishInterval <= 0 {
		return errors.New("publish interval must be positive")
	}
	if c.Broker.Host == "" {
		return errors.New("broker host is required")
	}
	return nil
}

// SIMSlot maps the SIM selector to the modem slot.
func (c *Config) SIMSlot() (modem.SIM, error) {
	switch c.SIM {
	case "", "external":
		return modem.SIMExternal, nil
	case "internal":
		return modem.SIMInternal, nil
	}
	return 0, fmt.Errorf("unknown SIM selector %q", c.SIM)
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.SIM = "external"
		c.APN = modem.DefaultAPN
		c.Broker.Port = "8883"
		c.PublishInterval = 20 * time.Second
		c.SyncTime = true
		c.Pins = board.Pins{
			Supply: "GPIO17",
			Key:    "GPIO27",
			Status: "GPIO22",
			LED:    "GPIO23",
		}
		c.Sensors = sensors.Addresses{
			HTS221:  sensors.HTS221Addr,
			LPS22HB: sensors.LPS22HBAddr,
		}
		return nil
	}
}

// WithFile overlays the YAML file at path. An empty path is ignored.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if sim := os.Getenv("SIM"); sim != "" {
			c.SIM = sim
		}

		if simPIN := os.Getenv("SIM_PIN"); simPIN != "" {
			c.SimPIN = simPIN
		}

		if apn := os.Getenv("APN"); apn != "" {
			c.APN = apn
		}

		if host := os.Getenv("BROKER_HOST"); host != "" {
			c.Broker.Host = host
		}

		if cpid := os.Getenv("COMPANY_ID"); cpid != "" {
			c.Broker.CompanyID = cpid
		}

		if devid := os.Getenv("DEVICE_ID"); devid != "" {
			c.Broker.DeviceID = devid
		}

		if interval := os.Getenv("PUBLISH_INTERVAL"); interval != "" {
			if d, err := time.ParseDuration(interval); err == nil {
				c.PublishInterval = d
			}
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "sim":
				c.SIM = f.Value.String()
			case "sim-pin":
				c.SimPIN = f.Value.String()
			case "apn":
				c.APN = f.Value.String()
			case "broker-host":
				c.Broker.Host = f.Value.String()
			case "publish-interval":
				if d, err := time.ParseDuration(f.Value.String()); err == nil {
					c.PublishInterval = d
				}
			case "board":
				c.Board = f.Value.String() == "true"
			}

		})
		return nil
	}

}
