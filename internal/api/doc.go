// Package api implements the coordinator's HTTP API and WebSocket stream.
//
// Endpoints (all under /api/v1):
//
//	GET  /health                 component health and device count
//	GET  /devices                registry snapshot (?kind=, ?subtype=)
//	GET  /devices/{id}           one device
//	POST /devices/register       registration push from an actuator
//	POST /devices/{id}/command   {state, parameters} -> dispatch result
//	POST /devices/{id}/shutdown  stop a sensor process
//	GET  /dispatches             dispatch audit log
//	GET  /ws                     event stream
//
// WebSocket clients subscribe to channels and receive events:
// device.state_changed carries the merged device record after every
// registry change, automation.fired carries each control-loop decision and
// its dispatch result.
//
// There is no authentication. Dependencies other than the registry are
// optional; their endpoints answer 503 when absent.
package api
