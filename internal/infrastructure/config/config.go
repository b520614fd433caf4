package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration shared by the coordinator and the
// simulator processes. Values come from defaults, then YAML, then the
// environment.
type Config struct {
	Broker     BrokerConfig     `yaml:"broker"`
	Topology   TopologyConfig   `yaml:"topology"`
	Automation AutomationConfig `yaml:"automation"`
	RPC        RPCConfig        `yaml:"rpc"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// BrokerConfig contains message broker connection settings.
type BrokerConfig struct {
	Host     string         `yaml:"host"`
	Port     int            `yaml:"port"`
	TLS      bool           `yaml:"tls"`
	ClientID string         `yaml:"client_id"`
	Auth     BrokerAuth     `yaml:"auth"`
	QoS      int            `yaml:"qos"`
	Durable  bool           `yaml:"durable"`
	Retry    RetryConfig    `yaml:"connect_retry"`
	Recovery RecoveryConfig `yaml:"reconnect"`

	// Heartbeat is the keep-alive interval used to detect silent drops.
	Heartbeat time.Duration `yaml:"heartbeat"`

	// BlockedTimeout bounds how long a publish or subscribe may wait for
	// the broker before the stream is treated as lost.
	BlockedTimeout time.Duration `yaml:"blocked_timeout"`
}

// BrokerAuth contains broker credentials.
type BrokerAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RetryConfig bounds the initial connection attempts.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
}

// RecoveryConfig bounds reconnection after a lost stream.
type RecoveryConfig struct {
	Auto        bool          `yaml:"auto"`
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// TopologyConfig names the exchanges every participant agrees on.
type TopologyConfig struct {
	SensorExchange   string `yaml:"sensor_exchange"`
	ShutdownExchange string `yaml:"shutdown_exchange"`
}

// AutomationConfig contains control loop settings and rule thresholds.
type AutomationConfig struct {
	Enabled      bool           `yaml:"enabled"`
	TickInterval time.Duration  `yaml:"tick_interval"`
	Climate      ClimateConfig  `yaml:"climate"`
	Lighting     LightingConfig `yaml:"lighting"`
}

// ClimateConfig drives the temperature to air conditioner rule.
type ClimateConfig struct {
	High   float64 `yaml:"high"`
	Low    float64 `yaml:"low"`
	Target float64 `yaml:"target"`
}

// LightingConfig drives the luminosity to lamp rule.
type LightingConfig struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// RPCConfig contains actuator RPC client settings.
type RPCConfig struct {
	Timeout      time.Duration  `yaml:"timeout"`
	DefaultHost  string         `yaml:"default_host"`
	DefaultPorts map[string]int `yaml:"default_ports"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for reading history.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DatabaseConfig contains SQLite settings for the dispatch audit log.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment overrides.
//
// The loading order is:
//  1. Default values
//  2. YAML file values
//  3. Environment variables (GRAYLOGIC_SECTION_KEY)
//
// The result is validated before it is returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but treats an empty path as "no file":
// defaults plus environment overrides. The simulators use it so they can
// run without a config file.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}

	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "graylogic-homesim",
			QoS:      1,
			Durable:  true,
			Retry: RetryConfig{
				MaxAttempts: 5,
				Delay:       2 * time.Second,
			},
			Recovery: RecoveryConfig{
				Auto:        true,
				MaxAttempts: 5,
				Delay:       time.Second,
				Multiplier:  2,
				MaxDelay:    30 * time.Second,
			},
			Heartbeat:      30 * time.Second,
			BlockedTimeout: 10 * time.Second,
		},
		Topology: TopologyConfig{
			SensorExchange:   "sensors_exchange",
			ShutdownExchange: "shutdown_exchange",
		},
		Automation: AutomationConfig{
			Enabled:      true,
			TickInterval: time.Second,
			Climate: ClimateConfig{
				High:   25.0,
				Low:    20.0,
				Target: 22.0,
			},
			Lighting: LightingConfig{
				Low:  300,
				High: 700,
			},
		},
		RPC: RPCConfig{
			Timeout:     5 * time.Second,
			DefaultHost: "localhost",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/homesim.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies GRAYLOGIC_* environment variables.
func applyEnvOverrides(cfg *Config) {
	// Broker
	if v := os.Getenv("GRAYLOGIC_BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_BROKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Broker.Port = port
		}
	}
	if v := os.Getenv("GRAYLOGIC_BROKER_USERNAME"); v != "" {
		cfg.Broker.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_BROKER_PASSWORD"); v != "" {
		cfg.Broker.Auth.Password = v
	}

	// Automation
	if v := os.Getenv("GRAYLOGIC_AUTOMATION_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Automation.TickInterval = d
		}
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Broker.Host == "" {
		errs = append(errs, "broker.host is required")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, "broker.port must be between 1 and 65535")
	}
	if c.Broker.QoS < 0 || c.Broker.QoS > 2 {
		errs = append(errs, "broker.qos must be 0, 1, or 2")
	}
	if c.Broker.Retry.MaxAttempts < 1 {
		errs = append(errs, "broker.connect_retry.max_attempts must be at least 1")
	}
	if c.Broker.Recovery.MaxAttempts < 1 {
		errs = append(errs, "broker.reconnect.max_attempts must be at least 1")
	}
	if c.Broker.Recovery.Multiplier != 0 && c.Broker.Recovery.Multiplier < 1 {
		errs = append(errs, "broker.reconnect.multiplier must be 1 or greater")
	}

	if c.Topology.SensorExchange == "" {
		errs = append(errs, "topology.sensor_exchange is required")
	}
	if c.Topology.ShutdownExchange == "" {
		errs = append(errs, "topology.shutdown_exchange is required")
	}

	if c.Automation.TickInterval <= 0 {
		errs = append(errs, "automation.tick_interval must be positive")
	}
	if c.Automation.Climate.Low > c.Automation.Climate.High {
		errs = append(errs, "automation.climate.low must not exceed automation.climate.high")
	}
	if c.Automation.Lighting.Low > c.Automation.Lighting.High {
		errs = append(errs, "automation.lighting.low must not exceed automation.lighting.high")
	}

	if c.RPC.Timeout <= 0 {
		errs = append(errs, "rpc.timeout must be positive")
	}
	for subtype, port := range c.RPC.DefaultPorts {
		if port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("rpc.default_ports.%s must be between 1 and 65535", subtype))
		}
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
