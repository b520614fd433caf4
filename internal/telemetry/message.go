package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-homesim/internal/device"
)

// Timestamp layouts accepted on the wire. Sensors emit the second form.
const (
	timestampLayout       = time.RFC3339Nano
	legacyTimestampLayout = "2006-01-02 15:04:05"
)

// Message is the JSON body exchanged on SensorExchange.
//
// Sensors send readings; actuators send their status together with the
// address of their RPC endpoint. Fields a device does not carry are
// omitted.
type Message struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Type    string `json:"type,omitempty"`
	Subtype string `json:"subtype,omitempty"`
	State   string `json:"state,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	Luminosity  *float64 `json:"luminosity,omitempty"`
	Brightness  *float64 `json:"brightness,omitempty"`
	Presence    *bool    `json:"presence,omitempty"`

	RelatedDevice string `json:"related_device,omitempty"`
	GRPCHost      string `json:"grpc_host,omitempty"`
	GRPCPort      int    `json:"grpc_port,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
}

// wireMessage adds the legacy field names older sensors still send.
type wireMessage struct {
	Message
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
}

// typeAliases maps values seen in the "type" field onto subtypes.
var typeAliases = map[string]device.Subtype{
	"ac":              device.SubtypeAirConditioner,
	"air_conditioner": device.SubtypeAirConditioner,
	"lamp":            device.SubtypeLamp,
	"light_bulb":      device.SubtypeLamp,
	"door":            device.SubtypeDoor,
	"sprinkler":       device.SubtypeSprinkler,
	"temperature":     device.SubtypeTemperature,
	"luminosity":      device.SubtypeLuminosity,
	"presence":        device.SubtypePresence,
}

// Decode parses body and normalises it against the routing key it arrived
// on. Any failure wraps ErrMalformedMessage.
func Decode(body []byte, routingKey string) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(body, &w); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	m := w.Message
	if m.ID == "" {
		m.ID = w.DeviceID
	}
	if m.Name == "" {
		m.Name = w.DeviceName
	}
	if m.Type == "" {
		m.Type = w.DeviceType
	}

	if err := m.Normalize(routingKey); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Normalize fills the subtype and state from the other fields and checks
// that the message identifies a known device.
//
// The subtype comes from "subtype", else from a "type" alias, else from
// the routing key. A presence reading without a state becomes on/off.
func (m *Message) Normalize(routingKey string) error {
	m.ID = strings.TrimSpace(m.ID)
	if m.ID == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedMessage)
	}

	if m.Subtype == "" {
		if s, ok := typeAliases[strings.ToLower(m.Type)]; ok {
			m.Subtype = string(s)
		} else {
			m.Subtype = string(subtypeFromKey(routingKey))
		}
	}
	subtype := device.Subtype(m.Subtype)
	if !subtype.Valid() {
		return fmt.Errorf("%w: unknown subtype %q for %s", ErrMalformedMessage, m.Subtype, m.ID)
	}

	kind := device.Kind(strings.ToLower(m.Type))
	if (kind == device.KindSensor || kind == device.KindActuator) && kind != subtype.Kind() {
		return fmt.Errorf("%w: %s is not a %s", ErrMalformedMessage, subtype, kind)
	}

	if m.State == "" && m.Presence != nil {
		m.State = device.StateOff
		if *m.Presence {
			m.State = device.StateOn
		}
	}
	return nil
}

// Kind returns the device kind implied by the subtype.
func (m Message) Kind() device.Kind {
	return device.Subtype(m.Subtype).Kind()
}

// ObservedAt parses the timestamp. It returns the zero time when the field
// is missing or unparseable.
func (m Message) ObservedAt() time.Time {
	if m.Timestamp == "" {
		return time.Time{}
	}
	if t, err := time.Parse(timestampLayout, m.Timestamp); err == nil {
		return t
	}
	if t, err := time.ParseInLocation(legacyTimestampLayout, m.Timestamp, time.Local); err == nil {
		return t
	}
	return time.Time{}
}

// FormatTimestamp renders t the way HomeSim publishers do.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ShutdownCommand is the body sent on ShutdownExchange.
type ShutdownCommand struct {
	Command string `json:"command"`
}

// CommandShutdown is the only shutdown command value.
const CommandShutdown = "shutdown"
