// Package simulator runs simulated HomeSim devices against a broker.
//
// A Sensor publishes a reading on sensor.<subtype> every interval and stops
// when a shutdown command arrives on shutdown.<id>. An Actuator serves the
// gRPC method for its subtype, keeps its own state, and publishes its status
// on command.<subtype>.<id> every interval and after each accepted command.
//
// Both run until their context is cancelled and are driven by cmd/sensor and
// cmd/actuator.
package simulator
