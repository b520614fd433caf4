package automation

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-homesim/internal/device"
	"github.com/nerrad567/gray-logic-homesim/internal/dispatch"
	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/config"
)

// ChannelFired is the WebSocket channel for dispatch decisions.
const ChannelFired = "automation.fired"

// SourceAutomation tags dispatches made by the loop.
const SourceAutomation = "automation"

const defaultTickInterval = time.Second

// Registry is the read side of the device registry.
type Registry interface {
	All() []device.Record
	Get(id string) (device.Record, bool)
}

// Dispatcher sends commands to actuators. *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Send(ctx context.Context, rec device.Record, action string, params dispatch.Params) dispatch.Result
}

// Broadcaster publishes events to WebSocket subscribers.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger is the logging interface used by the loop.
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

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// WithBroadcaster publishes every dispatch decision on ChannelFired.
func WithBroadcaster(b Broadcaster) Option {
	return func(lp *Loop) { lp.hub = b }
}

// Outcome is one dispatch made during a tick.
type Outcome struct {
	SensorID   string          `json:"sensor_id"`
	ActuatorID string          `json:"actuator_id"`
	Action     string          `json:"action"`
	Params     dispatch.Params `json:"parameters,omitempty"`
	Reason     string          `json:"reason"`
	Result     dispatch.Result `json:"result"`
}

// Loop periodically evaluates every sensor/actuator pair and dispatches
// commands where the actuator diverges from what its rule wants.
//
// Thread Safety: Tick may run concurrently with registry writers; each
// tick works on a registry snapshot.
type Loop struct {
	registry   Registry
	dispatcher Dispatcher
	pairs      map[device.Subtype]pairing
	interval   time.Duration
	hub        Broadcaster
	logger     Logger
}

// NewLoop creates a control loop.
func NewLoop(registry Registry, dispatcher Dispatcher, cfg config.AutomationConfig, opts ...Option) *Loop {
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = defaultTickInterval
	}
	l := &Loop{
		registry:   registry,
		dispatcher: dispatcher,
		pairs:      pairings(cfg),
		interval:   interval,
		logger:     noopLogger{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run ticks until ctx is cancelled. A tick in progress finishes its
// dispatches before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("automation loop started", "interval", l.interval)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("automation loop stopped")
			return nil
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// candidate is one sensor/actuator pair found in the snapshot.
type candidate struct {
	sensor   device.Record
	actuator device.Record
	rule     Rule

	decision Decision
	fire     bool
}

// Tick runs one evaluation pass and waits for the resulting dispatches.
//
// Pairs are evaluated concurrently. When several sensors drive the same
// actuator, the first in registry order wins, so each actuator receives at
// most one command per tick.
func (l *Loop) Tick(ctx context.Context) []Outcome {
	cands := l.candidates()
	if len(cands) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for i := range cands {
		wg.Add(1)
		go func(c *candidate) {
			defer wg.Done()
			c.decision, c.fire = c.rule(c.sensor, c.actuator)
		}(&cands[i])
	}
	wg.Wait()

	claimed := make(map[string]bool)
	var fire []*candidate
	for i := range cands {
		c := &cands[i]
		if !c.fire || claimed[c.actuator.ID] {
			continue
		}
		claimed[c.actuator.ID] = true
		fire = append(fire, c)
	}
	if len(fire) == 0 {
		return nil
	}

	ctx = dispatch.WithSource(ctx, SourceAutomation)
	outcomes := make([]Outcome, len(fire))
	for i, c := range fire {
		wg.Add(1)
		go func(i int, c *candidate) {
			defer wg.Done()
			outcomes[i] = l.fire(ctx, c)
		}(i, c)
	}
	wg.Wait()
	return outcomes
}

// candidates pairs each sensor with its related actuator. Dangling
// relations and mismatched subtypes are skipped.
func (l *Loop) candidates() []candidate {
	var out []candidate
	for _, s := range l.registry.All() {
		if s.Kind != device.KindSensor {
			continue
		}
		p, ok := l.pairs[s.Subtype]
		if !ok || s.RelatedDeviceID == "" {
			continue
		}
		a, ok := l.registry.Get(s.RelatedDeviceID)
		if !ok {
			l.logger.Debug("related device not registered", "sensor_id", s.ID, "related_device", s.RelatedDeviceID)
			continue
		}
		if a.Subtype != p.actuator {
			l.logger.Debug("related device has wrong subtype",
				"sensor_id", s.ID,
				"related_device", a.ID,
				"subtype", a.Subtype,
				"want", p.actuator,
			)
			continue
		}
		out = append(out, candidate{sensor: s, actuator: a, rule: p.rule})
	}
	return out
}

func (l *Loop) fire(ctx context.Context, c *candidate) Outcome {
	res := l.dispatcher.Send(ctx, c.actuator, c.decision.Action, c.decision.Params)
	out := Outcome{
		SensorID:   c.sensor.ID,
		ActuatorID: c.actuator.ID,
		Action:     c.decision.Action,
		Params:     c.decision.Params,
		Reason:     c.decision.Reason,
		Result:     res,
	}

	if res.Success {
		l.logger.Info("automation fired",
			"sensor_id", out.SensorID,
			"actuator_id", out.ActuatorID,
			"action", out.Action,
			"reason", out.Reason,
		)
	} else {
		l.logger.Warn("automation dispatch failed",
			"sensor_id", out.SensorID,
			"actuator_id", out.ActuatorID,
			"action", out.Action,
			"error", res.ErrorMessage,
		)
	}

	if l.hub != nil {
		l.hub.Broadcast(ChannelFired, out)
	}
	return out
}
