package broker

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds a single dial attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultOperationTimeout is used when no blocked timeout is configured.
	defaultOperationTimeout = 10 * time.Second

	// defaultDisconnectQuiesce is the time in milliseconds to let in-flight
	// work drain on Close.
	defaultDisconnectQuiesce = 250

	// maxPayloadSize caps a single message at 1MB.
	maxPayloadSize = 1 << 20

	tlsMinVersion = tls.VersionTLS12
)

// PahoDialer connects to an MQTT broker with paho.
//
// Reconnection is left to the Session, so paho's own auto-reconnect is
// disabled. Acknowledgement is manual so a message is only acked once the
// consumer has handled it.
func PahoDialer(ctx context.Context, cfg config.BrokerConfig, onLost func(error)) (Conn, error) {
	opts := buildClientOptions(cfg)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		if onLost != nil {
			onLost(err)
		}
	})

	client := pahomqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect(), defaultConnectTimeout); err != nil {
		return nil, err
	}

	return &pahoConn{client: client, timeout: operationTimeout(cfg)}, nil
}

// buildClientOptions maps BrokerConfig onto paho options.
//
// Durable sessions use clean-session=false so the broker keeps
// subscriptions and queued QoS 1 messages while the client is away.
func buildClientOptions(cfg config.BrokerConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(!cfg.Durable)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetOrderMatters(true)
	opts.SetAutoAckDisabled(true)

	if cfg.Heartbeat > 0 {
		opts.SetKeepAlive(cfg.Heartbeat)
		opts.SetPingTimeout(cfg.Heartbeat / 2)
	}
	if cfg.BlockedTimeout > 0 {
		opts.SetWriteTimeout(cfg.BlockedTimeout)
	}

	return opts
}

func operationTimeout(cfg config.BrokerConfig) time.Duration {
	if cfg.BlockedTimeout > 0 {
		return cfg.BlockedTimeout
	}
	return defaultOperationTimeout
}

// waitToken waits for a paho token, the context, or the timeout.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}

// pahoConn adapts a connected paho client to Conn.
type pahoConn struct {
	client  pahomqtt.Client
	timeout time.Duration
}

func (c *pahoConn) Publish(ctx context.Context, topic string, payload []byte, qos byte) error {
	if !c.IsConnected() {
		return ErrStreamLost
	}
	if err := waitToken(ctx, c.client.Publish(topic, qos, false, payload), c.timeout); err != nil {
		if ctx.Err() != nil {
			return err
		}
		// A publish the broker never acknowledged is indistinguishable from
		// a silent drop; let the session reconnect.
		return fmt.Errorf("%w: %w", ErrStreamLost, err)
	}
	return nil
}

func (c *pahoConn) Subscribe(ctx context.Context, filter string, qos byte, handler func(Message)) error {
	if !c.IsConnected() {
		return ErrStreamLost
	}
	token := c.client.Subscribe(filter, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handler(msg)
	})
	if err := waitToken(ctx, token, c.timeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, filter, err)
	}
	return nil
}

func (c *pahoConn) Unsubscribe(ctx context.Context, filter string) error {
	if !c.IsConnected() {
		return ErrStreamLost
	}
	if err := waitToken(ctx, c.client.Unsubscribe(filter), c.timeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, filter, err)
	}
	return nil
}

func (c *pahoConn) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *pahoConn) Close() {
	c.client.Disconnect(defaultDisconnectQuiesce)
}
