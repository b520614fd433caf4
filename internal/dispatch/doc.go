// Package dispatch sends commands to actuators.
//
// Send maps a device subtype and action onto the actuator's RPC method:
//
//	lamp             on/off      -> ControlLightBulb (optional brightness)
//	air_conditioner  on/off      -> ControlAC (temperature)
//	sprinkler        on/off      -> ControlSprinkler
//	door             open/closed -> ControlDoor
//
// A successful call updates the registry optimistically; the actuator's own
// status telemetry later confirms or overwrites it. Failures come back as a
// Result with Success=false and are never retried. Only one dispatch per
// device runs at a time.
package dispatch
