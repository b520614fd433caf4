// Package broker provides the message bus session used by every HomeSim
// process.
//
// The bus is presented as exchanges, routing keys and queues:
//   - Exchanges are named topic exchanges declared on the session
//   - Routing keys are dot-separated tokens ("sensor.temperature")
//   - Queues are bound to an exchange under a pattern with "*" and "#"
//   - Deliveries carry an Ack; unacknowledged messages are redelivered
//
// # Architecture
//
// The transport is MQTT. An exchange is the first topic level and the
// routing key tokens follow it, so "sensor.temperature" on
// "sensors_exchange" travels as "sensors_exchange/sensor/temperature".
// Persistent publication maps to QoS 1, durable queues to a persistent
// (clean-session=false) client session, and acknowledgement to paho's
// manual ack mode.
//
//	Sensor/Actuator ──Publish──▶ Broker ──Delivery──▶ Coordinator queues
//
// The Session owns one logical connection. It records declarations and
// bindings so that any replacement connection is restored to the same
// shape, and it performs reconnection itself rather than relying on paho.
//
// # Failure Model
//
//   - Connect retries a fixed number of times, then returns ErrConnection
//   - A lost stream triggers Reconnect under the exponential reconnect policy
//   - Publish that hits a lost stream reconnects and retries once
//   - An exhausted reconnect fails the session for good; Done is closed
//
// # Testing
//
// MemoryBroker implements the transport in-process with MQTT matching
// rules and fault injection, so sessions can be tested without Mosquitto.
//
// # Usage
//
//	sess, err := broker.Connect(ctx, cfg.Broker, broker.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	_ = sess.Declare(broker.Exchange{Name: "sensors_exchange", Durable: true})
//	_ = sess.Bind(ctx, broker.Binding{
//	    Queue:    "queue.temperature",
//	    Exchange: "sensors_exchange",
//	    Pattern:  "sensor.temperature",
//	}, func(d broker.Delivery) {
//	    handle(d.Body)
//	    d.Ack()
//	})
package broker
