package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nerrad567/gray-logic-homesim/internal/device"
	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-homesim/internal/rpc"
	"github.com/nerrad567/gray-logic-homesim/internal/telemetry"
)

// Actuator defaults.
const (
	DefaultACTemperature  = 22.0
	DefaultLampBrightness = 100.0

	statusPublishTimeout = 5 * time.Second
	registrationPath     = "/api/v1/devices/register"
	maxReplyBytes        = 64 << 10
)

// ActuatorConfig describes one simulated actuator.
type ActuatorConfig struct {
	ID      string
	Name    string
	Subtype device.Subtype

	// AdvertiseHost and AdvertisePort are published as grpc_host and
	// grpc_port. A zero port advertises the port Run listens on.
	AdvertiseHost string
	AdvertisePort int

	Interval time.Duration
	Topology config.TopologyConfig

	// CoordinatorURL, if set, receives a registration push at start-up.
	CoordinatorURL string
}

// Actuator is a simulated device controlled over gRPC.
//
// Thread Safety: RPC handlers and the status loop share state under mu.
type Actuator struct {
	rpc.UnimplementedActuatorServer

	cfg       ActuatorConfig
	bus       telemetry.Bus
	publisher *telemetry.Publisher
	opts      options

	mu          sync.Mutex
	active      bool
	temperature float64
	brightness  float64
	port        int
}

// NewActuator creates an actuator on bus. It starts off (closed for a door)
// at 22.0 degrees for an air conditioner and full brightness for a lamp.
func NewActuator(bus telemetry.Bus, cfg ActuatorConfig, opts ...Option) (*Actuator, error) {
	if cfg.ID == "" {
		return nil, errors.New("actuator id is required")
	}
	if err := device.ValidateID(cfg.ID); err != nil {
		return nil, err
	}
	if cfg.Subtype.Kind() != device.KindActuator {
		return nil, fmt.Errorf("%q is not an actuator subtype", cfg.Subtype)
	}
	if cfg.AdvertiseHost == "" {
		cfg.AdvertiseHost = "localhost"
	}
	cfg.Interval = interval(cfg.Interval)
	cfg.Topology = exchanges(cfg.Topology)

	o := buildOptions(opts)
	return &Actuator{
		cfg:         cfg,
		bus:         bus,
		publisher:   telemetry.NewPublisher(bus, cfg.Topology.SensorExchange, o.logger),
		opts:        o,
		temperature: DefaultACTemperature,
		brightness:  DefaultLampBrightness,
		port:        cfg.AdvertisePort,
	}, nil
}

// Run serves gRPC on lis and publishes status at once and then every
// interval until ctx is cancelled. It stops serving and returns the bus
// error if the broker session fails for good.
func (a *Actuator) Run(ctx context.Context, lis net.Listener) error {
	if err := a.publisher.Declare(true); err != nil {
		return fmt.Errorf("declaring %s: %w", a.cfg.Topology.SensorExchange, err)
	}

	if a.cfg.AdvertisePort == 0 {
		if addr, ok := lis.Addr().(*net.TCPAddr); ok {
			a.mu.Lock()
			a.port = addr.Port
			a.mu.Unlock()
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	server := rpc.NewServer(a, a.opts.logger)
	serveErr := make(chan error, 1)
	go func() { serveErr <- rpc.Serve(ctx, server, lis) }()

	a.opts.logger.Info("actuator started",
		"id", a.cfg.ID,
		"subtype", a.cfg.Subtype,
		"address", lis.Addr().String(),
	)

	if a.cfg.CoordinatorURL != "" {
		if err := a.Register(ctx); err != nil {
			a.opts.logger.Warn("registration failed", "id", a.cfg.ID, "error", err)
		}
	}

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		a.publishStatus(ctx)

		select {
		case <-ctx.Done():
			return <-serveErr
		case err := <-serveErr:
			if err != nil {
				return fmt.Errorf("serving rpc: %w", err)
			}
			return nil
		case <-a.bus.Done():
			cancel()
			<-serveErr
			return fmt.Errorf("broker session: %w", a.bus.Err())
		case <-ticker.C:
		}
	}
}

// Status returns the message the actuator publishes for its current state.
func (a *Actuator) Status() telemetry.Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	msg := telemetry.Message{
		ID:        a.cfg.ID,
		Name:      a.cfg.Name,
		Type:      string(device.KindActuator),
		Subtype:   string(a.cfg.Subtype),
		GRPCHost:  a.cfg.AdvertiseHost,
		GRPCPort:  a.port,
		Timestamp: telemetry.FormatTimestamp(a.opts.now()),
	}

	switch a.cfg.Subtype {
	case device.SubtypeDoor:
		msg.State = device.StateClosed
		if a.active {
			msg.State = device.StateOpen
		}
	default:
		msg.State = device.StateOff
		if a.active {
			msg.State = device.StateOn
		}
	}

	switch a.cfg.Subtype {
	case device.SubtypeAirConditioner:
		t := a.temperature
		msg.Temperature = &t
	case device.SubtypeLamp:
		b := 0.0
		if a.active {
			b = a.brightness
		}
		msg.Brightness = &b
	}
	return msg
}

// PublishStatus publishes the current state on command.<subtype>.<id>.
func (a *Actuator) PublishStatus(ctx context.Context) error {
	key := telemetry.Keys{}.ActuatorStatus(a.cfg.Subtype, a.cfg.ID)
	return a.publisher.Publish(ctx, key, a.Status())
}

// publishStatus logs instead of returning; the next tick publishes again.
func (a *Actuator) publishStatus(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, statusPublishTimeout)
	defer cancel()
	if err := a.PublishStatus(ctx); err != nil && ctx.Err() == nil {
		a.opts.logger.Warn("publishing status failed", "id", a.cfg.ID, "error", err)
	}
}

// Register pushes the actuator's descriptor to the coordinator.
func (a *Actuator) Register(ctx context.Context) error {
	body, err := json.Marshal(a.Status())
	if err != nil {
		return err
	}

	url := a.cfg.CoordinatorURL + registrationPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.opts.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registering with %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		reply, _ := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
		return fmt.Errorf("registering with %s: %s: %s", url, resp.Status, bytes.TrimSpace(reply))
	}
	a.opts.logger.Info("registered with coordinator", "id", a.cfg.ID, "url", url)
	return nil
}

// accept checks that a request is for this device and this subtype.
func (a *Actuator) accept(subtype device.Subtype, id string) (*rpc.Response, error) {
	if a.cfg.Subtype != subtype {
		return nil, status.Errorf(codes.Unimplemented, "%s does not serve %s commands", a.cfg.ID, subtype)
	}
	if id != "" && id != a.cfg.ID {
		return rpc.Refuse(fmt.Sprintf("unknown device %s", id)), nil
	}
	return nil, nil
}

// applied publishes the new state outside the RPC deadline.
func (a *Actuator) applied(ctx context.Context) *rpc.Response {
	a.publishStatus(context.WithoutCancel(ctx))
	return rpc.OK()
}

// ControlLightBulb switches a lamp. A missing brightness keeps the previous
// one; turning on at zero brightness restores full brightness.
func (a *Actuator) ControlLightBulb(ctx context.Context, req *rpc.LightBulbRequest) (*rpc.Response, error) {
	if resp, err := a.accept(device.SubtypeLamp, req.ID); resp != nil || err != nil {
		return resp, err
	}
	if req.Brightness != nil && (*req.Brightness < 0 || *req.Brightness > 100) {
		return rpc.Refuse("brightness must be between 0 and 100"), nil
	}

	a.mu.Lock()
	a.active = req.Active
	if req.Brightness != nil {
		a.brightness = *req.Brightness
	}
	if a.active && a.brightness == 0 {
		a.brightness = DefaultLampBrightness
	}
	a.mu.Unlock()

	return a.applied(ctx), nil
}

// ControlAC switches an air conditioner and sets its target temperature.
func (a *Actuator) ControlAC(ctx context.Context, req *rpc.ACRequest) (*rpc.Response, error) {
	if resp, err := a.accept(device.SubtypeAirConditioner, req.ID); resp != nil || err != nil {
		return resp, err
	}

	a.mu.Lock()
	a.active = req.Active
	a.temperature = req.Temperature
	a.mu.Unlock()

	return a.applied(ctx), nil
}

// ControlSprinkler switches a sprinkler.
func (a *Actuator) ControlSprinkler(ctx context.Context, req *rpc.SprinklerRequest) (*rpc.Response, error) {
	if resp, err := a.accept(device.SubtypeSprinkler, req.ID); resp != nil || err != nil {
		return resp, err
	}

	a.mu.Lock()
	a.active = req.Active
	a.mu.Unlock()

	return a.applied(ctx), nil
}

// ControlDoor opens or closes a door.
func (a *Actuator) ControlDoor(ctx context.Context, req *rpc.DoorRequest) (*rpc.Response, error) {
	if resp, err := a.accept(device.SubtypeDoor, req.ID); resp != nil || err != nil {
		return resp, err
	}

	a.mu.Lock()
	a.active = req.IsOpen
	a.mu.Unlock()

	return a.applied(ctx), nil
}
