// Package device provides the Device Registry for HomeSim.
//
// The registry is the coordinator's in-memory table of last-known device
// state. It is fed by broker telemetry (see package ingest), by actuator
// registration pushes and by successful command dispatches, and it is read
// by the automation loop and the HTTP API.
//
// # Key Types
//
//   - Record: last-known state of one device
//   - Patch: a partial update; nil fields are left alone
//   - Subtype: closed set of device classes (temperature, lamp, door, ...)
//   - Kind: sensor or actuator, implied by the subtype
//
// # Invariants
//
//   - IDs are unique; records are never deleted
//   - Kind and subtype are fixed at first registration (ErrClassChanged)
//   - A patch is applied all or nothing
//   - Readers always get copies taken under the lock
//
// # Usage
//
//	reg := device.NewRegistry()
//	rec, err := reg.Upsert(device.Patch{
//	    ID:          "temp_sensor_01",
//	    Subtype:     device.SubtypeTemperature,
//	    Temperature: device.Float(26.0),
//	})
package device
