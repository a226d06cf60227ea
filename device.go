package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"i4.energy/across/heracles/modem"
	"i4.energy/across/heracles/sensors"
)

// Cellular is the part of modem.Session the device loop drives.
type Cellular interface {
	Init(ctx context.Context, sim modem.SIM, pin string) modem.Status
	CSQ(ctx context.Context, timeout time.Duration) (int, modem.Status)
	Registration(ctx context.Context, timeout time.Duration) modem.Status
	Attached(ctx context.Context, timeout time.Duration) modem.Status
	SyncTime(ctx context.Context, tz int) modem.Status
	TCPClose(ctx context.Context) modem.Status
	Firmware() string
	State() modem.IPState
	IPAddress() string
}

// Sampler produces sensor snapshots.
type Sampler interface {
	Snapshot() sensors.Snapshot
}

// Indicator is the user LED.
type Indicator interface {
	Set(on bool) error
}

// Uplink is a connected MQTT session.
type Uplink interface {
	Publish(topic string, qos byte, payload []byte) error
	// Lost is closed when the broker connection drops.
	Lost() <-chan struct{}
	Close()
}

// Connector opens an Uplink and delivers every inbound message to
// onMessage.
type Connector func(ctx context.Context, onMessage func(payload []byte)) (Uplink, error)

// Timing holds the waits of the device loop.
type Timing struct {
	InitRetry       time.Duration
	SignalRetry     time.Duration
	NetworkRetry    time.Duration
	SessionCooldown time.Duration

	CSQTimeout    time.Duration
	RegTimeout    time.Duration
	AttachTimeout time.Duration
}

var DefaultTiming = Timing{
	InitRetry:       time.Second,
	SignalRetry:     2 * time.Second,
	NetworkRetry:    2 * time.Second,
	SessionCooldown: 3 * time.Second,
	CSQTimeout:      10 * time.Second,
	RegTimeout:      2 * time.Second,
	AttachTimeout:   time.Second,
}

// DeviceStatus is the snapshot served on /status.
type DeviceStatus struct {
	Connected   bool      `json:"connected"`
	State       string    `json:"state"`
	RSSI        int       `json:"rssi"`
	IP          string    `json:"ip,omitempty"`
	Firmware    string    `json:"firmware,omitempty"`
	LED         bool      `json:"led"`
	Reports     int       `json:"reports"`
	LastPublish time.Time `json:"last_publish,omitzero"`
}

// Device runs the cellular bring-up and telemetry loop.
type Device struct {
	cfg     *Config
	sim     modem.SIM
	cell    Cellular
	sensors Sampler
	led     Indicator
	connect Connector
	timing  Timing
	log     *slog.Logger
	now     func() time.Time

	synced bool

	mu     sync.Mutex
	status DeviceStatus
}

func NewDevice(cfg *Config, cell Cellular, sampler Sampler, led Indicator, connect Connector, logger *slog.Logger) (*Device, error) {
	sim, err := cfg.SIMSlot()
	if err != nil {
		return nil, err
	}
	return &Device{
		cfg:     cfg,
		sim:     sim,
		cell:    cell,
		sensors: sampler,
		led:     led,
		connect: connect,
		timing:  DefaultTiming,
		log:     logger.With("component", "device"),
		now:     time.Now,
		status:  DeviceStatus{RSSI: modem.UnknownRSSI},
	}, nil
}

// Run brings the modem up and keeps a broker session alive until ctx is
// done. Driver failures only ever lead to a cooldown and a retry.
func (d *Device) Run(ctx context.Context) error {
	for {
		if !d.bringUp(ctx) {
			return ctx.Err()
		}
		d.online(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.log.Warn("Modem stopped answering, restarting")
	}
}

func (d *Device) bringUp(ctx context.Context) bool {
	d.log.Info("Starting modem")
	for {
		st := d.cell.Init(ctx, d.sim, d.cfg.SimPIN)
		if st == modem.StatusOK {
			d.log.Info("Modem started", "firmware", d.cell.Firmware())
			d.update(func(s *DeviceStatus) { s.Firmware = d.cell.Firmware() })
			return true
		}
		d.log.Error("Modem start failed", "status", st)
		if !sleep(ctx, d.timing.InitRetry) {
			return false
		}
	}
}

// online waits for the network and runs broker sessions. It returns when
// the modem has to be started again.
func (d *Device) online(ctx context.Context) {
	for ctx.Err() == nil {
		rssi, st := d.cell.CSQ(ctx, d.timing.CSQTimeout)
		d.update(func(s *DeviceStatus) { s.RSSI = rssi })
		switch st {
		case modem.StatusOK:
			d.log.Info("Signal level", "rssi_dbm", rssi)
		case modem.StatusTimeout:
			return
		default:
			d.log.Info("Waiting for signal", "status", st)
			sleep(ctx, d.timing.SignalRetry)
			continue
		}

		if st := d.cell.Registration(ctx, d.timing.RegTimeout); st != modem.StatusOK {
			d.log.Warn("No network registration", "status", st)
			sleep(ctx, d.timing.NetworkRetry)
			continue
		}
		if st := d.cell.Attached(ctx, d.timing.AttachTimeout); st != modem.StatusOK {
			d.log.Warn("Packet service not attached", "status", st)
			sleep(ctx, d.timing.NetworkRetry)
			continue
		}

		if err := d.session(ctx); err != nil && ctx.Err() == nil {
			d.log.Error("Broker session ended", "error", err)
		}
		d.update(func(s *DeviceStatus) { s.Connected = false })
		sleep(ctx, d.timing.SessionCooldown)
	}
}

// session synchronizes the clock once, connects to the broker, publishes
// the firmware twin and then a report every publish interval until the
// connection fails.
func (d *Device) session(ctx context.Context) error {
	if d.cfg.SyncTime && !d.synced {
		if st := d.cell.SyncTime(ctx, d.cfg.TimeZone); st != modem.StatusOK {
			d.log.Warn("Clock synchronization failed", "status", st)
		}
		d.synced = true
	}

	d.log.Info("Connecting to broker", "host", d.cfg.Broker.Host, "port", d.cfg.Broker.Port)
	up, err := d.connect(ctx, d.handleCommand)
	if err != nil {
		d.cell.TCPClose(ctx)
		return err
	}
	defer up.Close()

	d.update(func(s *DeviceStatus) {
		s.Connected = true
		s.IP = d.cell.IPAddress()
	})
	d.log.Info("Connected to broker", "client_id", d.cfg.Broker.ClientID())

	twin, err := twinPayload(d.cell.Firmware())
	if err != nil {
		return err
	}
	if err := up.Publish(twinTopic, 1, twin); err != nil {
		return err
	}

	ticker := time.NewTicker(d.cfg.PublishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-up.Lost():
			return errConnectionLost
		case <-ticker.C:
			if err := d.report(ctx, up); err != nil {
				return err
			}
		}
	}
}

func (d *Device) report(ctx context.Context, up Uplink) error {
	rssi, st := d.cell.CSQ(ctx, d.timing.CSQTimeout)
	if st != modem.StatusOK {
		rssi = modem.UnknownRSSI
	}
	snap := d.sensors.Snapshot()

	payload, err := buildReport(d.cfg.Broker, snap, rssi, d.now())
	if err != nil {
		return err
	}
	if err := up.Publish(eventsTopic(d.cfg.Broker.ClientID()), 0, payload); err != nil {
		return err
	}

	d.update(func(s *DeviceStatus) {
		s.RSSI = rssi
		s.Reports++
		s.LastPublish = d.now()
	})
	d.log.Info("Report published", "bytes", len(payload), "rssi_dbm", rssi, "sensors", snap.Has)
	return nil
}

// handleCommand applies a cloud-to-device message. Only LED commands are
// understood.
func (d *Device) handleCommand(payload []byte) {
	msg := string(payload)
	d.log.Info("Command received", "payload", msg)

	var on bool
	switch {
	case containsAny(msg, `"led on"`, `"led ON"`, `"led 1"`):
		on = true
	case containsAny(msg, `"led off"`, `"led OFF"`, `"led 0"`):
		on = false
	default:
		return
	}
	if d.led == nil {
		return
	}
	if err := d.led.Set(on); err != nil {
		d.log.Error("LED update failed", "error", err)
		return
	}
	d.update(func(s *DeviceStatus) { s.LED = on })
}

// Status returns the current device state.
func (d *Device) Status() DeviceStatus {
	d.mu.Lock()
	s := d.status
	d.mu.Unlock()
	s.State = d.cell.State().String()
	return s
}

func (d *Device) update(fn func(*DeviceStatus)) {
	d.mu.Lock()
	fn(&d.status)
	d.mu.Unlock()
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
