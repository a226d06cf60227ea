package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"i4.energy/across/heracles/modem"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults need a broker host", func(t *testing.T) {
		if _, err := LoadConfig(WithDefaults()); err == nil {
			t.Error("expected error without broker host")
		}
	})

	t.Run("File overlays defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "heracles.yaml")
		data := `
serial_port: /dev/ttyS1
sim: internal
publish_interval: 45s
broker:
  host: broker.example.com
  company_id: acme
  device_id: dev42
pins:
  led: GPIO5
sensors:
  hts221: 0x5F
  lps22hb: 0
`
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}

		c, err := LoadConfig(WithDefaults(), WithFile(path))
		if err != nil {
			t.Fatalf("unexpected error from LoadConfig(): %v", err)
		}
		if c.SerialPort != "/dev/ttyS1" || c.BaudRate != 115200 {
			t.Errorf("unexpected serial settings: %s at %d", c.SerialPort, c.BaudRate)
		}
		if c.PublishInterval != 45*time.Second {
			t.Errorf("expected 45s interval, got: %v", c.PublishInterval)
		}
		if c.Broker.Port != "8883" || c.Broker.ClientID() != "acme-dev42" {
			t.Errorf("unexpected broker: %+v", c.Broker)
		}
		if c.Pins.LED != "GPIO5" || c.Pins.Key != "GPIO27" {
			t.Errorf("unexpected pins: %+v", c.Pins)
		}
		if c.Sensors.HTS221 != 0x5F || c.Sensors.LPS22HB != 0 {
			t.Errorf("unexpected sensor addresses: %+v", c.Sensors)
		}
		if sim, _ := c.SIMSlot(); sim != modem.SIMInternal {
			t.Errorf("expected internal SIM, got: %v", sim)
		}
	})

	t.Run("Missing file", func(t *testing.T) {
		if _, err := LoadConfig(WithDefaults(), WithFile(filepath.Join(t.TempDir(), "none.yaml"))); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("Environment overrides defaults", func(t *testing.T) {
		t.Setenv("BROKER_HOST", "env.example.com")
		t.Setenv("SIM_PIN", "1234")
		t.Setenv("PUBLISH_INTERVAL", "1m")
		t.Setenv("BAUD_RATE", "not-a-number")

		c, err := LoadConfig(WithDefaults(), WithEnv())
		if err != nil {
			t.Fatalf("unexpected error from LoadConfig(): %v", err)
		}
		if c.Broker.Host != "env.example.com" || c.SimPIN != "1234" || c.PublishInterval != time.Minute {
			t.Errorf("unexpected config: %+v", c)
		}
		if c.BaudRate != 115200 {
			t.Errorf("expected invalid baud rate to be ignored, got: %d", c.BaudRate)
		}
	})

	t.Run("Flags override environment", func(t *testing.T) {
		t.Setenv("BROKER_HOST", "env.example.com")
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.String("broker-host", "", "")
		fs.String("sim", "", "")
		fs.Bool("board", false, "")
		fs.Duration("publish-interval", 0, "")
		if err := fs.Parse([]string{"-broker-host=flag.example.com", "-sim=internal", "-board", "-publish-interval=5s"}); err != nil {
			t.Fatal(err)
		}

		c, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(fs))
		if err != nil {
			t.Fatalf("unexpected error from LoadConfig(): %v", err)
		}
		if c.Broker.Host != "flag.example.com" || c.SIM != "internal" || !c.Board || c.PublishInterval != 5*time.Second {
			t.Errorf("unexpected config: %+v", c)
		}
	})

	t.Run("Unknown SIM selector", func(t *testing.T) {
		t.Setenv("BROKER_HOST", "broker.example.com")
		t.Setenv("SIM", "esim")
		if _, err := LoadConfig(WithDefaults(), WithEnv()); err == nil {
			t.Error("expected error for unknown SIM selector")
		}
	})
}
