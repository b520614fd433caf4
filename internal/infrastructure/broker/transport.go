package broker

import (
	"context"

	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/config"
)

// Message is a message received from the transport.
// paho's mqtt.Message satisfies it.
type Message interface {
	Topic() string
	Payload() []byte
	Duplicate() bool
	Ack()
}

// Conn is one live transport connection. A Conn is never reopened; the
// Session replaces it on reconnect.
type Conn interface {
	// Publish sends payload to topic. A dead connection returns an error
	// wrapping ErrStreamLost.
	Publish(ctx context.Context, topic string, payload []byte, qos byte) error

	// Subscribe registers handler for every message matching filter.
	// Messages must be acknowledged by the handler.
	Subscribe(ctx context.Context, filter string, qos byte, handler func(Message)) error

	// Unsubscribe removes the subscription for filter.
	Unsubscribe(ctx context.Context, filter string) error

	// IsConnected reports whether the connection is still usable.
	IsConnected() bool

	// Close tears the connection down. It does not invoke the lost callback.
	Close()
}

// Dialer opens a Conn. onLost is invoked at most once if the connection
// drops unexpectedly.
type Dialer func(ctx context.Context, cfg config.BrokerConfig, onLost func(error)) (Conn, error)

// Delivery is a message routed to one bound queue.
type Delivery struct {
	Exchange    string
	RoutingKey  string
	Queue       string
	Body        []byte
	Redelivered bool

	ack func()
}

// Ack acknowledges the delivery. Calling it more than once has no effect
// beyond the first call.
func (d Delivery) Ack() {
	if d.ack != nil {
		d.ack()
	}
}

// Sink receives deliveries for a queue. It runs on the transport's delivery
// goroutine, so it should hand work off rather than process inline.
type Sink func(Delivery)
