package broker

import (
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/config"
)

func TestBuildClientOptions(t *testing.T) {
	cfg := config.BrokerConfig{
		Host:           "broker.local",
		Port:           1883,
		ClientID:       "homesim-test",
		Auth:           config.BrokerAuth{Username: "sim", Password: "secret"},
		Durable:        true,
		Heartbeat:      30 * time.Second,
		BlockedTimeout: 5 * time.Second,
	}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://broker.local:1883" {
		t.Fatalf("Servers = %v, want tcp://broker.local:1883", opts.Servers)
	}
	if opts.ClientID != "homesim-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "sim" || opts.Password != "secret" {
		t.Errorf("credentials not applied")
	}
	if opts.CleanSession {
		t.Error("durable session should disable clean session")
	}
	if opts.AutoReconnect || opts.ConnectRetry {
		t.Error("paho reconnects should be disabled")
	}
	if !opts.AutoAckDisabled {
		t.Error("manual acknowledgement should be enabled")
	}
	if opts.KeepAlive != 30 {
		t.Errorf("KeepAlive = %d, want 30", opts.KeepAlive)
	}
	if opts.PingTimeout != 15*time.Second {
		t.Errorf("PingTimeout = %v, want 15s", opts.PingTimeout)
	}
	if opts.WriteTimeout != 5*time.Second {
		t.Errorf("WriteTimeout = %v, want 5s", opts.WriteTimeout)
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	opts := buildClientOptions(config.BrokerConfig{Host: "broker.local", Port: 8883, TLS: true})

	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config not applied")
	}
	if !opts.CleanSession {
		t.Error("non-durable session should use clean session")
	}
}

func TestOperationTimeout(t *testing.T) {
	if got := operationTimeout(config.BrokerConfig{}); got != defaultOperationTimeout {
		t.Errorf("default = %v, want %v", got, defaultOperationTimeout)
	}
	if got := operationTimeout(config.BrokerConfig{BlockedTimeout: 2 * time.Second}); got != 2*time.Second {
		t.Errorf("configured = %v, want 2s", got)
	}
}
