package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/sync/errgroup"
	"i4.energy/across/heracles/board"
	"i4.energy/across/heracles/modem"
	"i4.energy/across/heracles/sensors"
	"periph.io/x/host/v3"
)

func main() {
	configFile := flag.String("config", "", "Path to a YAML configuration file")
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the modem")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("sim", "external", "SIM slot (external, internal)")
	flag.String("sim-pin", "", "SIM card PIN code (if required)")
	flag.String("apn", modem.DefaultAPN, "Access point name of the data bearer")
	flag.String("broker-host", "", "MQTT broker host")
	flag.Duration("publish-interval", 20*time.Second, "Telemetry report period")
	flag.Bool("board", false, "Drive modem power and LED through GPIO")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configFile), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	mqtt.ERROR = slog.NewLogLogger(logger.Handler(), slog.LevelError)
	mqtt.CRITICAL = slog.NewLogLogger(logger.Handler(), slog.LevelError)
	mqtt.WARN = slog.NewLogLogger(logger.Handler(), slog.LevelWarn)

	if _, err := host.Init(); err != nil {
		logger.Error("Failed to initialize host drivers", "error", err)
		os.Exit(1)
	}

	var (
		power modem.PowerController
		led   Indicator
	)
	if config.Board {
		p, l, err := board.Open(config.Pins, logger)
		if err != nil {
			logger.Error("Failed to open board", "error", err)
			os.Exit(1)
		}
		power, led = p, l
	}

	sensorSet, bus, err := sensors.Open(config.I2CBus, config.Sensors, logger)
	if err != nil {
		logger.Warn("Sensors disabled", "error", err)
		sensorSet = sensors.NewSet(logger)
	} else {
		defer bus.Close()
	}

	modemBuilder := modem.NewConfigBuilder().
		WithDialer(modem.SerialDialer{
			PortName:    config.SerialPort,
			BaudRate:    config.BaudRate,
			ReadTimeout: 100 * time.Millisecond,
		}).
		WithLogger(logger.With("component", "modem")).
		WithAPN(config.APN)
	if power != nil {
		modemBuilder = modemBuilder.WithPower(power)
	}
	modemConfig, err := modemBuilder.Build()
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		os.Exit(1)
	}

	session, err := modem.New(modemConfig)
	if err != nil {
		logger.Error("Failed to create modem session", "error", err)
		os.Exit(1)
	}

	tlsConfig, err := loadTLSConfig(config.Broker)
	if err != nil {
		logger.Error("Failed to load TLS configuration", "error", err)
		os.Exit(1)
	}
	dial := func(ctx context.Context, host, port string) (net.Conn, error) {
		return session.Dial(ctx, host, port)
	}

	device, err := NewDevice(config, session, sensorSet, led,
		mqttConnector(config.Broker, tlsConfig, dial, logger), logger)
	if err != nil {
		logger.Error("Failed to create device", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger: logger.With("component", "server"),
			Modem:  session,
			Device: device,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting telemetry device", "client_id", config.Broker.ClientID(), "serial_port", config.SerialPort)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return device.Run(ctx)
	})
	g.Go(func() error {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Closing HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Device stopped", "error", err)
	}

	logger.Info("Closing modem connection")
	if err := session.Close(); err != nil {
		logger.Error("Failed to close modem", "error", err)
	}
}
