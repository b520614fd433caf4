package telemetry

import (
	"strings"

	"github.com/nerrad567/gray-logic-homesim/internal/device"
)

// Exchange names used by HomeSim.
const (
	// SensorExchange carries sensor readings and actuator status.
	SensorExchange = "sensors_exchange"

	// ShutdownExchange carries shutdown commands for sensors.
	ShutdownExchange = "shutdown_exchange"
)

// Routing key prefixes.
const (
	prefixSensor   = "sensor"
	prefixCommand  = "command"
	prefixShutdown = "shutdown"
	prefixQueue    = "queue"
)

// Keys provides builders for HomeSim routing keys and queue names.
// Using these helpers keeps key naming consistent across processes.
//
//	keys := telemetry.Keys{}
//	key := keys.ActuatorStatus(device.SubtypeLamp, "lamp_1")
//	// Returns: "command.lamp.lamp_1"
type Keys struct{}

// =============================================================================
// Sensor Keys
// =============================================================================

// Sensor returns the routing key for readings of a sensor subtype.
//
// Example: sensor.temperature
func (Keys) Sensor(subtype device.Subtype) string {
	return prefixSensor + "." + string(subtype)
}

// Shutdown returns the routing key for a sensor's shutdown command.
//
// Example: shutdown.temp_sensor_01
func (Keys) Shutdown(deviceID string) string {
	return prefixShutdown + "." + deviceID
}

// ShutdownQueue returns the queue a sensor listens on for shutdown.
//
// Example: shutdown_temp_sensor_01
func (Keys) ShutdownQueue(deviceID string) string {
	return prefixShutdown + "_" + deviceID
}

// =============================================================================
// Actuator Keys
// =============================================================================

// ActuatorStatus returns the routing key an actuator publishes status on.
//
// Example: command.air_conditioner.ac_1
func (Keys) ActuatorStatus(subtype device.Subtype, deviceID string) string {
	return prefixCommand + "." + string(subtype) + "." + deviceID
}

// AllActuatorStatus returns the pattern matching status of every actuator
// of a subtype.
//
// Example: command.lamp.*
func (Keys) AllActuatorStatus(subtype device.Subtype) string {
	return prefixCommand + "." + string(subtype) + ".*"
}

// =============================================================================
// Queues
// =============================================================================

// Queue returns the coordinator queue for a subtype.
//
// Example: queue.presence
func (Keys) Queue(subtype device.Subtype) string {
	return prefixQueue + "." + string(subtype)
}

// CoordinatorQueues returns the queue to pattern map the coordinator binds
// on SensorExchange: one queue per sensor subtype bound to its readings and
// one per actuator subtype bound to the status of every actuator of it.
func CoordinatorQueues() map[string]string {
	keys := Keys{}
	queues := make(map[string]string, len(device.AllSubtypes()))
	for _, s := range device.SensorSubtypes() {
		queues[keys.Queue(s)] = keys.Sensor(s)
	}
	for _, s := range device.ActuatorSubtypes() {
		queues[keys.Queue(s)] = keys.AllActuatorStatus(s)
	}
	return queues
}

// subtypeFromKey recovers the subtype from a sensor or actuator status key.
func subtypeFromKey(routingKey string) device.Subtype {
	tokens := strings.Split(routingKey, ".")
	if len(tokens) < 2 {
		return ""
	}
	switch tokens[0] {
	case prefixSensor, prefixCommand:
		return device.Subtype(tokens[1])
	}
	return ""
}
