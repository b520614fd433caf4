package simulator

import (
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-homesim/internal/telemetry"
)

// DefaultInterval is the publish interval when none is configured.
const DefaultInterval = 10 * time.Second

// Logger is the logging interface used by the simulators.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type options struct {
	logger     Logger
	source     Source
	httpClient *http.Client
	now        func() time.Time
}

// Option configures a Sensor or an Actuator.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSource replaces the random reading source of a Sensor.
func WithSource(s Source) Option {
	return func(o *options) {
		if s != nil {
			o.source = s
		}
	}
}

// WithHTTPClient sets the client an Actuator registers with.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:     noopLogger{},
		httpClient: &http.Client{Timeout: 5 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// exchanges fills in the default exchange names.
func exchanges(t config.TopologyConfig) config.TopologyConfig {
	if t.SensorExchange == "" {
		t.SensorExchange = telemetry.SensorExchange
	}
	if t.ShutdownExchange == "" {
		t.ShutdownExchange = telemetry.ShutdownExchange
	}
	return t
}

func interval(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultInterval
	}
	return d
}
