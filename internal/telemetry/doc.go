// Package telemetry carries device state between HomeSim processes.
//
// Sensors and actuators publish JSON Messages on SensorExchange with a
// Publisher; the coordinator receives them through a Consumer bound to
// the queues returned by CoordinatorQueues:
//
//	queue.temperature      sensor.temperature
//	queue.luminosity       sensor.luminosity
//	queue.presence         sensor.presence
//	queue.lamp             command.lamp.*
//	queue.air_conditioner  command.air_conditioner.*
//	queue.door             command.door.*
//	queue.sprinkler        command.sprinkler.*
//
// Sensors also listen on ShutdownExchange under shutdown.<id>.
//
// # Delivery Semantics
//
// A Consumer handles one message at a time, so messages from one
// publisher reach the handler in publish order. Messages are acknowledged
// after the handler returns. Malformed messages (ErrMalformedMessage) are
// always logged and dropped; other handler failures follow the consumer's
// FailurePolicy.
package telemetry
