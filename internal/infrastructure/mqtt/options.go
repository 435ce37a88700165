package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/nerrad567/printcast/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time one connection attempt may take.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish or subscribe acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 30 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12

	// clientIDPrefix names this process in the printer's client list.
	clientIDPrefix = "printcast-"
)

// buildClientOptions creates paho MQTT options from the printer config.
//
// This configures:
//   - Broker URL (ssl://host:port)
//   - Client ID derived from the printer serial
//   - Username and access code
//   - TLS 1.2+, with verification controlled by tls_insecure
//   - Clean session, no auto-reconnect (Supervisor reconnects)
func buildClientOptions(cfg config.PrinterConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(fmt.Sprintf("ssl://%s:%d", cfg.Host, cfg.MQTTPort))
	opts.SetClientID(clientIDPrefix + cfg.Serial)

	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.AccessCode)

	opts.SetCleanSession(true)

	// Reconnection belongs to Supervisor so that a refused login stops
	// the process instead of retrying forever.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	opts.SetTLSConfig(&tls.Config{
		MinVersion: tlsMinVersion,
		//nolint:gosec // Printers present self-signed certificates
		InsecureSkipVerify: cfg.TLSInsecure,
	})

	return opts
}

// classifyConnectError wraps a paho connect error, marking refused logins.
func classifyConnectError(err error) error {
	if errors.Is(err, packets.ErrorRefusedNotAuthorised) ||
		errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) {
		return fmt.Errorf("%w: %w: %w", ErrConnectionFailed, ErrNotAuthorized, err)
	}
	return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
}
