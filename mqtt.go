package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttKeepAlive       = 900 * time.Second
	mqttConnectTimeout  = 60 * time.Second
	mqttWriteTimeout    = 30 * time.Second
	mqttAckTimeout      = 30 * time.Second
	mqttQuiesce         = 250 // ms
	tlsHandshakeTimeout = 60 * time.Second
	apiVersion          = "2018-06-30"
)

var (
	errConnectionLost = errors.New("broker connection lost")
	errAckTimeout     = errors.New("broker did not acknowledge in time")
)

// DialFunc opens the raw socket the MQTT session runs over.
type DialFunc func(ctx context.Context, host, port string) (net.Conn, error)

// loadTLSConfig builds the client TLS settings from the PEM files of b.
// Without a CA file the system roots are used.
func loadTLSConfig(b BrokerConfig) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName: b.Host,
		MinVersion: tls.VersionTLS12,
	}
	if b.CAFile != "" {
		pem, err := os.ReadFile(b.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", b.CAFile)
		}
		cfg.RootCAs = pool
	}
	if b.CertFile != "" || b.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(b.CertFile, b.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// mqttConnector returns a Connector running MQTT over TLS over sockets
// opened by dial. Reconnects are left to the device loop.
func mqttConnector(b BrokerConfig, tlsConfig *tls.Config, dial DialFunc, logger *slog.Logger) Connector {
	log := logger.With("component", "mqtt")
	clientID := b.ClientID()

	return func(ctx context.Context, onMessage func([]byte)) (Uplink, error) {
		var (
			mu  sync.Mutex
			raw net.Conn
		)
		closeRaw := func() {
			mu.Lock()
			defer mu.Unlock()
			if raw != nil {
				raw.Close()
				raw = nil
			}
		}

		opts := mqtt.NewClientOptions()
		opts.AddBroker("ssl://" + net.JoinHostPort(b.Host, b.Port))
		opts.SetClientID(clientID)
		opts.SetUsername(fmt.Sprintf("%s/%s/?api-version=%s", b.Host, clientID, apiVersion))
		opts.SetKeepAlive(mqttKeepAlive)
		opts.SetCleanSession(true)
		opts.SetAutoReconnect(false)
		opts.SetConnectRetry(false)
		opts.SetOrderMatters(false)
		opts.SetConnectTimeout(mqttConnectTimeout)
		opts.SetWriteTimeout(mqttWriteTimeout)
		opts.SetCustomOpenConnectionFn(func(uri *url.URL, _ mqtt.ClientOptions) (net.Conn, error) {
			c, err := dial(ctx, b.Host, b.Port)
			if err != nil {
				return nil, err
			}
			mu.Lock()
			raw = c
			mu.Unlock()

			tc := tls.Client(c, tlsConfig)
			hctx, cancel := context.WithTimeout(ctx, tlsHandshakeTimeout)
			defer cancel()
			if err := tc.HandshakeContext(hctx); err != nil {
				closeRaw()
				return nil, fmt.Errorf("tls handshake with %s: %w", uri.Host, err)
			}
			log.Debug("TLS established", "host", uri.Host, "version", tls.VersionName(tc.ConnectionState().Version))
			return tc, nil
		})

		u := &mqttUplink{lost: make(chan struct{}), log: log, closeRaw: closeRaw}
		opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("Broker connection lost", "error", err)
			u.markLost()
		})

		client := mqtt.NewClient(opts)
		if err := waitToken(client.Connect(), mqttConnectTimeout); err != nil {
			closeRaw()
			return nil, fmt.Errorf("mqtt connect: %w", err)
		}
		u.client = client

		topic := commandTopic(clientID)
		sub := client.Subscribe(topic, 0, func(_ mqtt.Client, m mqtt.Message) {
			onMessage(m.Payload())
		})
		if err := waitToken(sub, mqttAckTimeout); err != nil {
			u.Close()
			return nil, fmt.Errorf("mqtt subscribe %s: %w", topic, err)
		}
		log.Info("Subscribed", "topic", topic)
		return u, nil
	}
}

type mqttUplink struct {
	client   mqtt.Client
	log      *slog.Logger
	closeRaw func()

	lostOnce sync.Once
	lost     chan struct{}
}

func (u *mqttUplink) Publish(topic string, qos byte, payload []byte) error {
	if err := waitToken(u.client.Publish(topic, qos, false, payload), mqttAckTimeout); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	u.log.Debug("Published", "topic", topic, "qos", qos, "bytes", len(payload))
	return nil
}

func (u *mqttUplink) Lost() <-chan struct{} {
	return u.lost
}

func (u *mqttUplink) Close() {
	if u.client != nil && u.client.IsConnectionOpen() {
		u.client.Disconnect(mqttQuiesce)
	}
	u.closeRaw()
	u.markLost()
}

func (u *mqttUplink) markLost() {
	u.lostOnce.Do(func() { close(u.lost) })
}

func waitToken(t mqtt.Token, timeout time.Duration) error {
	if !t.WaitTimeout(timeout) {
		return errAckTimeout
	}
	return t.Error()
}
