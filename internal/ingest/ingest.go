// Package ingest turns broker telemetry into registry updates.
//
// The Ingestor is the coordinator's telemetry.Handler: it decodes each
// message, merges it into the device registry and, when a history writer
// is configured, records the numeric readings it carried.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-homesim/internal/device"
	"github.com/nerrad567/gray-logic-homesim/internal/telemetry"
)

// Store is the part of device.Registry the ingestor writes to.
type Store interface {
	Upsert(p device.Patch) (device.Record, error)
	Get(id string) (device.Record, bool)
}

// History records numeric readings. influxdb.Client satisfies it.
type History interface {
	WriteDeviceMetric(deviceID, subtype, field string, value float64, ts time.Time)
}

// Logger is the logging interface used by the ingestor.
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

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithHistory writes readings to h after each successful merge.
func WithHistory(h History) Option {
	return func(i *Ingestor) { i.history = h }
}

// WithDefaultEndpoint fills in the RPC endpoint of actuators that announce
// none: host for a missing grpc_host and ports[subtype] for a missing
// grpc_port.
func WithDefaultEndpoint(host string, ports map[string]int) Option {
	return func(i *Ingestor) {
		i.defaultHost = host
		i.defaultPorts = make(map[device.Subtype]int, len(ports))
		for s, p := range ports {
			i.defaultPorts[device.Subtype(s)] = p
		}
	}
}

// WithLogger sets the ingestor logger.
func WithLogger(l Logger) Option {
	return func(i *Ingestor) {
		if l != nil {
			i.logger = l
		}
	}
}

// Ingestor merges telemetry into a Store.
type Ingestor struct {
	store        Store
	history      History
	defaultHost  string
	defaultPorts map[device.Subtype]int
	logger       Logger
}

// New creates an Ingestor writing to store.
func New(store Store, opts ...Option) *Ingestor {
	i := &Ingestor{
		store:  store,
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Handle is a telemetry.Handler. Messages the registry can never accept
// (bad JSON, unknown subtype, a reclassified device) are reported as
// telemetry.ErrMalformedMessage so the consumer drops them.
func (i *Ingestor) Handle(_ context.Context, body []byte, _, routingKey, queue string) error {
	msg, err := telemetry.Decode(body, routingKey)
	if err != nil {
		return err
	}

	rec, err := i.Apply(msg)
	if err != nil {
		return err
	}

	i.logger.Debug("telemetry applied", "id", rec.ID, "subtype", rec.Subtype, "queue", queue)
	return nil
}

// Apply merges an already decoded message into the store. It is also the
// path for registration pushes.
func (i *Ingestor) Apply(msg telemetry.Message) (device.Record, error) {
	patch := i.patch(msg)

	rec, err := i.store.Upsert(patch)
	if err != nil {
		if isPermanent(err) {
			return device.Record{}, fmt.Errorf("%w: %w", telemetry.ErrMalformedMessage, err)
		}
		return device.Record{}, err
	}

	i.record(rec, patch)
	return rec, nil
}

// isPermanent reports whether redelivering the same message cannot help.
func isPermanent(err error) bool {
	return errors.Is(err, device.ErrInvalidRecord) ||
		errors.Is(err, device.ErrClassChanged) ||
		errors.Is(err, device.ErrInvalidSubtype) ||
		errors.Is(err, device.ErrInvalidState)
}

// patch builds the registry patch for msg. Only the fields meaningful for
// the subtype are carried over.
func (i *Ingestor) patch(msg telemetry.Message) device.Patch {
	subtype := device.Subtype(msg.Subtype)
	p := device.Patch{
		ID:        msg.ID,
		Subtype:   subtype,
		Timestamp: msg.ObservedAt(),
	}

	if msg.Name != "" {
		p.Name = device.String(msg.Name)
	}
	if msg.State != "" {
		state := strings.ToLower(msg.State)
		p.State = &state
	}
	if msg.RelatedDevice != "" {
		p.RelatedDeviceID = device.String(msg.RelatedDevice)
	}

	switch subtype {
	case device.SubtypeTemperature, device.SubtypeAirConditioner:
		p.Temperature = msg.Temperature
	case device.SubtypeLuminosity:
		p.Luminosity = msg.Luminosity
	case device.SubtypeLamp:
		p.Brightness = msg.Brightness
	}

	if subtype.Kind() == device.KindActuator {
		p.Endpoint = i.endpoint(msg, subtype)
	}
	return p
}

// endpoint returns the endpoint announced in msg, completed from the
// configured defaults. It returns nil to keep a registered endpoint when
// the message announces nothing.
func (i *Ingestor) endpoint(msg telemetry.Message, subtype device.Subtype) *device.Endpoint {
	host, port := msg.GRPCHost, msg.GRPCPort
	if host == "" && port == 0 {
		if existing, ok := i.store.Get(msg.ID); ok && existing.HasEndpoint() {
			return nil
		}
		port = i.defaultPorts[subtype]
		if port == 0 {
			return nil
		}
	}
	if host == "" {
		host = i.defaultHost
	}
	return &device.Endpoint{Host: host, Port: port}
}

// record writes the numeric fields of patch to the history.
func (i *Ingestor) record(rec device.Record, p device.Patch) {
	if i.history == nil {
		return
	}
	ts := rec.LastUpdated
	subtype := string(rec.Subtype)

	if p.Temperature != nil {
		i.history.WriteDeviceMetric(rec.ID, subtype, "temperature", *p.Temperature, ts)
	}
	if p.Luminosity != nil {
		i.history.WriteDeviceMetric(rec.ID, subtype, "luminosity", *p.Luminosity, ts)
	}
	if p.Brightness != nil {
		i.history.WriteDeviceMetric(rec.ID, subtype, "brightness", *p.Brightness, ts)
	}
	if p.State != nil {
		i.history.WriteDeviceMetric(rec.ID, subtype, "active", activeValue(*p.State), ts)
	}
}

// activeValue maps on/open to 1 and anything else to 0.
func activeValue(state string) float64 {
	if state == device.StateOn || state == device.StateOpen {
		return 1
	}
	return 0
}
