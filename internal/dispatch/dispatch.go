package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/nerrad567/gray-logic-homesim/internal/audit"
	"github.com/nerrad567/gray-logic-homesim/internal/device"
	"github.com/nerrad567/gray-logic-homesim/internal/rpc"
)

const (
	// DefaultACTemperature is used when neither the command nor the record
	// carries a setpoint.
	DefaultACTemperature = 22.0

	defaultTimeout = 5 * time.Second
	defaultHost    = "localhost"
)

// Parameter names understood by Send.
const (
	ParamTemperature = "temperature"
	ParamBrightness  = "brightness"
)

// Registry is the part of the device registry dispatch needs.
type Registry interface {
	Upsert(p device.Patch) (device.Record, error)
}

// Actuator is an RPC channel to one actuator. *rpc.Client satisfies it.
type Actuator interface {
	ControlLightBulb(ctx context.Context, req *rpc.LightBulbRequest) (*rpc.Response, error)
	ControlAC(ctx context.Context, req *rpc.ACRequest) (*rpc.Response, error)
	ControlSprinkler(ctx context.Context, req *rpc.SprinklerRequest) (*rpc.Response, error)
	ControlDoor(ctx context.Context, req *rpc.DoorRequest) (*rpc.Response, error)
	Close() error
}

// Connector opens an Actuator channel to address (host:port).
type Connector interface {
	Connect(address string) (Actuator, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(address string) (Actuator, error)

// Connect calls f.
func (f ConnectorFunc) Connect(address string) (Actuator, error) {
	return f(address)
}

// RPCConnector connects over gRPC with the JSON codec.
func RPCConnector(opts ...grpc.DialOption) Connector {
	return ConnectorFunc(func(address string) (Actuator, error) {
		c, err := rpc.Dial(address, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

// Recorder stores dispatch attempts. audit.SQLiteRepository satisfies it.
type Recorder interface {
	Create(ctx context.Context, entry *audit.Dispatch) error
}

// Logger is the logging interface used by the dispatcher.
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

// Params carries optional command parameters, typically decoded from JSON.
type Params map[string]any

// Result is the outcome of one dispatch.
type Result struct {
	ID           string `json:"id"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`

	// Err is the failure sentinel, nil on success.
	Err error `json:"-"`
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds each RPC call.
func WithTimeout(d time.Duration) Option {
	return func(x *Dispatcher) {
		if d > 0 {
			x.timeout = d
		}
	}
}

// WithRecorder stores every attempt.
func WithRecorder(r Recorder) Option {
	return func(x *Dispatcher) { x.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(x *Dispatcher) {
		if l != nil {
			x.logger = l
		}
	}
}

type sourceKey struct{}

// WithSource tags dispatches made under ctx with source, such as
// "automation" or "api", in the audit log.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

func sourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok {
		return s
	}
	return "unknown"
}

// Dispatcher turns a desired action into an actuator RPC call.
//
// Thread Safety: Send is safe for concurrent use. At most one dispatch per
// device is in flight; a second one fails with ErrInFlight.
type Dispatcher struct {
	registry  Registry
	connector Connector
	recorder  Recorder
	logger    Logger
	timeout   time.Duration
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a dispatcher that updates registry after successful calls.
func New(registry Registry, connector Connector, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:  registry,
		connector: connector,
		logger:    noopLogger{},
		timeout:   defaultTimeout,
		now:       time.Now,
		inflight:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// call is one prepared RPC invocation and the registry patch applied when
// it succeeds.
type call struct {
	invoke func(ctx context.Context, a Actuator) (*rpc.Response, error)
	patch  device.Patch
}

// Send asks the actuator behind rec to perform action.
//
// Actions are "on"/"off" for lamps, air conditioners and sprinklers and
// "open"/"closed" for doors. On success the registry is updated to the
// requested state; later actuator telemetry overwrites it. Failures are
// never retried.
func (d *Dispatcher) Send(ctx context.Context, rec device.Record, action string, params Params) Result {
	start := d.now()
	res := Result{ID: uuid.NewString()}

	if !d.acquire(rec.ID) {
		res = fail(res, ErrInFlight, "dispatch already in flight for device "+rec.ID)
		d.finish(ctx, rec, action, params, res, start)
		return res
	}
	defer d.release(rec.ID)

	c, err := d.prepare(rec, action, params)
	if err != nil {
		res = fail(res, err, err.Error())
		d.finish(ctx, rec, action, params, res, start)
		return res
	}
	if !rec.HasEndpoint() {
		res = fail(res, ErrNoEndpoint, "grpc port not specified for device "+rec.ID)
		d.finish(ctx, rec, action, params, res, start)
		return res
	}

	res = d.invoke(ctx, rec, c, res)
	if res.Success {
		c.patch.Timestamp = d.now()
		if _, uerr := d.registry.Upsert(c.patch); uerr != nil {
			d.logger.Warn("registry update after dispatch failed", "device_id", rec.ID, "error", uerr)
		}
	}
	d.finish(ctx, rec, action, params, res, start)
	return res
}

func (d *Dispatcher) invoke(ctx context.Context, rec device.Record, c call, res Result) Result {
	address := endpointAddress(rec.Endpoint)
	act, err := d.connector.Connect(address)
	if err != nil {
		return fail(res, ErrTransport, err.Error())
	}
	defer act.Close()

	// A call in flight finishes or hits the RPC timeout; caller
	// cancellation, such as shutdown, does not abort it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	resp, err := c.invoke(ctx, act)
	switch {
	case err != nil:
		return fail(res, ErrTransport, err.Error())
	case resp == nil:
		return fail(res, ErrTransport, "empty response from "+address)
	case !resp.Success:
		msg := resp.ErrorMessage
		if msg == "" {
			msg = "actuator refused command"
		}
		return fail(res, ErrRejected, msg)
	}
	res.Success = true
	return res
}

// prepare validates action for the subtype and builds the call.
func (d *Dispatcher) prepare(rec device.Record, action string, params Params) (call, error) {
	patch := device.Patch{ID: rec.ID, State: device.String(action)}

	switch rec.Subtype {
	case device.SubtypeLamp:
		active, err := onOff(rec.Subtype, action)
		if err != nil {
			return call{}, err
		}
		brightness, ok, err := params.float(ParamBrightness)
		if err != nil {
			return call{}, err
		}
		req := &rpc.LightBulbRequest{ID: rec.ID, Active: active}
		if ok {
			req.Brightness = &brightness
			patch.Brightness = device.Float(brightness)
		}
		return call{
			invoke: func(ctx context.Context, a Actuator) (*rpc.Response, error) { return a.ControlLightBulb(ctx, req) },
			patch:  patch,
		}, nil

	case device.SubtypeAirConditioner:
		active, err := onOff(rec.Subtype, action)
		if err != nil {
			return call{}, err
		}
		temp, ok, err := params.float(ParamTemperature)
		if err != nil {
			return call{}, err
		}
		if !ok {
			temp = DefaultACTemperature
			if rec.Temperature != nil {
				temp = *rec.Temperature
			}
		}
		req := &rpc.ACRequest{ID: rec.ID, Active: active, Temperature: temp}
		patch.Temperature = device.Float(temp)
		return call{
			invoke: func(ctx context.Context, a Actuator) (*rpc.Response, error) { return a.ControlAC(ctx, req) },
			patch:  patch,
		}, nil

	case device.SubtypeSprinkler:
		active, err := onOff(rec.Subtype, action)
		if err != nil {
			return call{}, err
		}
		req := &rpc.SprinklerRequest{ID: rec.ID, Active: active}
		return call{
			invoke: func(ctx context.Context, a Actuator) (*rpc.Response, error) { return a.ControlSprinkler(ctx, req) },
			patch:  patch,
		}, nil

	case device.SubtypeDoor:
		var open bool
		switch action {
		case device.StateOpen:
			open = true
		case device.StateClosed:
		default:
			return call{}, fmt.Errorf("%w: %q for %s", ErrUnsupportedAction, action, rec.Subtype)
		}
		req := &rpc.DoorRequest{ID: rec.ID, IsOpen: open}
		return call{
			invoke: func(ctx context.Context, a Actuator) (*rpc.Response, error) { return a.ControlDoor(ctx, req) },
			patch:  patch,
		}, nil
	}

	return call{}, fmt.Errorf("%w: %q", ErrUnsupportedSubtype, rec.Subtype)
}

func (d *Dispatcher) acquire(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[id]; busy {
		return false
	}
	d.inflight[id] = struct{}{}
	return true
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
}

// finish logs the result and stores it in the audit log.
func (d *Dispatcher) finish(ctx context.Context, rec device.Record, action string, params Params, res Result, start time.Time) {
	elapsed := d.now().Sub(start)
	source := sourceFrom(ctx)

	if res.Success {
		d.logger.Info("dispatch succeeded",
			"dispatch_id", res.ID,
			"device_id", rec.ID,
			"action", action,
			"source", source,
			"duration_ms", elapsed.Milliseconds(),
		)
	} else {
		d.logger.Warn("dispatch failed",
			"dispatch_id", res.ID,
			"device_id", rec.ID,
			"action", action,
			"source", source,
			"error", res.ErrorMessage,
		)
	}

	if d.recorder == nil {
		return
	}
	entry := &audit.Dispatch{
		ID:           res.ID,
		DeviceID:     rec.ID,
		Subtype:      string(rec.Subtype),
		Action:       action,
		Parameters:   map[string]any(params),
		Source:       source,
		Success:      res.Success,
		ErrorMessage: res.ErrorMessage,
		DurationMS:   elapsed.Milliseconds(),
		CreatedAt:    start.UTC(),
	}
	// The audit write must not inherit a cancelled request context.
	if err := d.recorder.Create(context.WithoutCancel(ctx), entry); err != nil {
		d.logger.Error("failed to record dispatch", "dispatch_id", res.ID, "error", err)
	}
}

func fail(res Result, err error, msg string) Result {
	res.Success = false
	res.Err = err
	res.ErrorMessage = msg
	return res
}

func onOff(subtype device.Subtype, action string) (bool, error) {
	switch action {
	case device.StateOn:
		return true, nil
	case device.StateOff:
		return false, nil
	}
	return false, fmt.Errorf("%w: %q for %s", ErrUnsupportedAction, action, subtype)
}

func endpointAddress(ep *device.Endpoint) string {
	e := *ep
	if e.Host == "" {
		e.Host = defaultHost
	}
	return e.Address()
}

// float reads a numeric parameter. Numbers may arrive as float64 or int
// from Go callers, or as json.Number or numeric strings from the API.
func (p Params) float(name string) (float64, bool, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s=%q", ErrInvalidParameter, name, n)
		}
		return f, true, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s=%q", ErrInvalidParameter, name, n)
		}
		return f, true, nil
	}
	return 0, false, fmt.Errorf("%w: %s has type %T", ErrInvalidParameter, name, v)
}
