package device

import (
	"net"
	"strconv"
	"time"
)

// Kind separates devices that report readings from devices that act.
type Kind string

// Kind constants.
const (
	KindSensor   Kind = "sensor"
	KindActuator Kind = "actuator"
)

// Subtype is the closed set of device classes known to HomeSim.
type Subtype string

// Sensor subtypes.
const (
	SubtypeTemperature Subtype = "temperature"
	SubtypeLuminosity  Subtype = "luminosity"
	SubtypePresence    Subtype = "presence"
)

// Actuator subtypes.
const (
	SubtypeLamp           Subtype = "lamp"
	SubtypeAirConditioner Subtype = "air_conditioner"
	SubtypeDoor           Subtype = "door"
	SubtypeSprinkler      Subtype = "sprinkler"
)

// State values. Binary devices use on/off, doors use open/closed.
const (
	StateOn     = "on"
	StateOff    = "off"
	StateOpen   = "open"
	StateClosed = "closed"
)

// SensorSubtypes returns every sensor subtype.
func SensorSubtypes() []Subtype {
	return []Subtype{SubtypeTemperature, SubtypeLuminosity, SubtypePresence}
}

// ActuatorSubtypes returns every actuator subtype.
func ActuatorSubtypes() []Subtype {
	return []Subtype{SubtypeLamp, SubtypeAirConditioner, SubtypeDoor, SubtypeSprinkler}
}

// AllSubtypes returns every known subtype, sensors first.
func AllSubtypes() []Subtype {
	return append(SensorSubtypes(), ActuatorSubtypes()...)
}

// Kind returns the kind implied by the subtype, or "" if the subtype is
// unknown.
func (s Subtype) Kind() Kind {
	switch s {
	case SubtypeTemperature, SubtypeLuminosity, SubtypePresence:
		return KindSensor
	case SubtypeLamp, SubtypeAirConditioner, SubtypeDoor, SubtypeSprinkler:
		return KindActuator
	default:
		return ""
	}
}

// Valid reports whether s is a known subtype.
func (s Subtype) Valid() bool {
	return s.Kind() != ""
}

// ValidState reports whether state is meaningful for the subtype.
func (s Subtype) ValidState(state string) bool {
	switch s {
	case SubtypeDoor:
		return state == StateOpen || state == StateClosed
	case "":
		return false
	default:
		return state == StateOn || state == StateOff
	}
}

// Endpoint is the RPC address of an actuator.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Record is the last known state of one device.
type Record struct {
	ID      string  `json:"id"`
	Name    string  `json:"name,omitempty"`
	Kind    Kind    `json:"kind"`
	Subtype Subtype `json:"subtype"`
	State   string  `json:"state,omitempty"`

	// Readings and setpoints, present when the subtype carries them.
	Temperature *float64 `json:"temperature,omitempty"`
	Luminosity  *float64 `json:"luminosity,omitempty"`
	Brightness  *float64 `json:"brightness,omitempty"`

	RelatedDeviceID string    `json:"related_device,omitempty"`
	Endpoint        *Endpoint `json:"endpoint,omitempty"`
	LastUpdated     time.Time `json:"last_updated"`

	// Revision counts merges into the record, starting at 1. Change
	// events for one device carry increasing revisions.
	Revision uint64 `json:"revision"`
}

// Clone returns a copy that shares no pointers with r.
func (r Record) Clone() Record {
	r.Temperature = cloneFloat(r.Temperature)
	r.Luminosity = cloneFloat(r.Luminosity)
	r.Brightness = cloneFloat(r.Brightness)
	if r.Endpoint != nil {
		ep := *r.Endpoint
		r.Endpoint = &ep
	}
	return r
}

// HasEndpoint reports whether the record carries a usable RPC port.
func (r Record) HasEndpoint() bool {
	return r.Endpoint != nil && r.Endpoint.Port > 0
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	ID      string
	Name    *string
	Kind    Kind
	Subtype Subtype
	State   *string

	Temperature *float64
	Luminosity  *float64
	Brightness  *float64

	RelatedDeviceID *string
	Endpoint        *Endpoint

	// Timestamp is when the data was observed. Zero means now.
	Timestamp time.Time
}

// Float returns a pointer to v, for building patches.
func Float(v float64) *float64 { return &v }

// String returns a pointer to v, for building patches.
func String(v string) *string { return &v }

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
