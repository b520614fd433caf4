package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-homesim/internal/device"
	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-homesim/internal/telemetry"
)

// SensorConfig describes one simulated sensor.
type SensorConfig struct {
	ID            string
	Name          string
	Subtype       device.Subtype
	RelatedDevice string
	Interval      time.Duration
	Topology      config.TopologyConfig
}

// Sensor publishes readings until it is shut down.
type Sensor struct {
	cfg       SensorConfig
	bus       telemetry.Bus
	publisher *telemetry.Publisher
	opts      options

	stop     chan struct{}
	stopOnce sync.Once
}

// NewSensor creates a sensor on bus. The subtype must be a sensor subtype.
func NewSensor(bus telemetry.Bus, cfg SensorConfig, opts ...Option) (*Sensor, error) {
	if cfg.ID == "" {
		return nil, errors.New("sensor id is required")
	}
	if err := device.ValidateID(cfg.ID); err != nil {
		return nil, err
	}
	if cfg.Subtype.Kind() != device.KindSensor {
		return nil, fmt.Errorf("%q is not a sensor subtype", cfg.Subtype)
	}
	cfg.Interval = interval(cfg.Interval)
	cfg.Topology = exchanges(cfg.Topology)

	o := buildOptions(opts)
	if o.source == nil {
		o.source = NewRandomSource(uint64(time.Now().UnixNano()))
	}

	return &Sensor{
		cfg:       cfg,
		bus:       bus,
		publisher: telemetry.NewPublisher(bus, cfg.Topology.SensorExchange, o.logger),
		opts:      o,
		stop:      make(chan struct{}),
	}, nil
}

// Run publishes a reading at once and then every interval. It returns nil
// when ctx is cancelled or a shutdown command arrives, and the bus error if
// the broker session fails for good.
func (s *Sensor) Run(ctx context.Context) error {
	if err := s.publisher.Declare(true); err != nil {
		return fmt.Errorf("declaring %s: %w", s.cfg.Topology.SensorExchange, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	keys := telemetry.Keys{}
	shutdown, err := telemetry.NewConsumer(s.bus, s.cfg.Topology.ShutdownExchange,
		map[string]string{keys.ShutdownQueue(s.cfg.ID): keys.Shutdown(s.cfg.ID)},
		s.handleShutdown,
		telemetry.WithConsumerLogger(s.opts.logger),
	)
	if err != nil {
		return err
	}
	if err := shutdown.Start(ctx); err != nil {
		return fmt.Errorf("listening for shutdown: %w", err)
	}

	s.opts.logger.Info("sensor started",
		"id", s.cfg.ID,
		"subtype", s.cfg.Subtype,
		"interval", s.cfg.Interval.String(),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Publish(ctx); err != nil && ctx.Err() == nil {
			s.opts.logger.Warn("publishing reading failed", "id", s.cfg.ID, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			s.opts.logger.Info("sensor shut down by command", "id", s.cfg.ID)
			return nil
		case <-shutdown.Done():
			return shutdown.Wait()
		case <-ticker.C:
		}
	}
}

// Publish samples the source and publishes one reading.
func (s *Sensor) Publish(ctx context.Context) (telemetry.Message, error) {
	r := s.opts.source.Sample(s.cfg.Subtype)
	msg := telemetry.Message{
		ID:            s.cfg.ID,
		Name:          s.cfg.Name,
		Type:          string(device.KindSensor),
		Subtype:       string(s.cfg.Subtype),
		Temperature:   r.Temperature,
		Luminosity:    r.Luminosity,
		Presence:      r.Presence,
		RelatedDevice: s.cfg.RelatedDevice,
		Timestamp:     telemetry.FormatTimestamp(s.opts.now()),
	}
	err := s.publisher.Publish(ctx, telemetry.Keys{}.Sensor(s.cfg.Subtype), msg)
	return msg, err
}

// Stopped is closed once a shutdown command has been received.
func (s *Sensor) Stopped() <-chan struct{} {
	return s.stop
}

// handleShutdown ignores anything but {"command":"shutdown"}.
func (s *Sensor) handleShutdown(_ context.Context, body []byte, _, _, _ string) error {
	var cmd telemetry.ShutdownCommand
	if err := json.Unmarshal(body, &cmd); err != nil {
		return fmt.Errorf("%w: %w", telemetry.ErrMalformedMessage, err)
	}
	if cmd.Command != telemetry.CommandShutdown {
		s.opts.logger.Debug("ignoring command", "id", s.cfg.ID, "command", cmd.Command)
		return nil
	}
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}
