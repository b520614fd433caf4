package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/broker"
)

// Logger is the logging interface used by telemetry.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Bus is the part of broker.Session telemetry needs.
type Bus interface {
	Declare(ex broker.Exchange) error
	Bind(ctx context.Context, b broker.Binding, sink broker.Sink) error
	Unbind(ctx context.Context, b broker.Binding) error
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
	Done() <-chan struct{}
	Err() error
}

// Publisher emits JSON device state on one exchange.
//
// Publishing is fire and forget: a failed publish is returned to the
// caller and not retried here. The session's own stream-lost recovery is
// the only retry.
type Publisher struct {
	bus      Bus
	exchange string
	logger   Logger

	mu     sync.Mutex
	queues map[string]string
}

// NewPublisher creates a publisher for exchange on bus.
func NewPublisher(bus Bus, exchange string, logger Logger) *Publisher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Publisher{
		bus:      bus,
		exchange: exchange,
		logger:   logger,
		queues:   make(map[string]string),
	}
}

// Exchange returns the exchange the publisher writes to.
func (p *Publisher) Exchange() string {
	return p.exchange
}

// Declare declares the publisher's exchange as a topic exchange.
func (p *Publisher) Declare(durable bool) error {
	return p.bus.Declare(broker.Exchange{Name: p.exchange, Kind: broker.ExchangeTopic, Durable: durable})
}

// Bind records the queue that messages published under routingKey are
// meant for. On an MQTT transport queues belong to their consumers, so
// the pair is validated and kept for Queues but no subscription is made.
func (p *Publisher) Bind(queue, routingKey string) error {
	if queue == "" {
		return broker.ErrInvalidQueue
	}
	if err := broker.ValidateRoutingKey(routingKey, true); err != nil {
		return err
	}
	p.mu.Lock()
	p.queues[queue] = routingKey
	p.mu.Unlock()
	return nil
}

// Queues returns the queue to routing key pairs recorded by Bind.
func (p *Publisher) Queues() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.queues))
	for q, k := range p.queues {
		out[q] = k
	}
	return out
}

// Publish encodes payload as JSON and publishes it as a persistent message.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", routingKey, err)
	}
	if err := p.bus.Publish(ctx, p.exchange, routingKey, body); err != nil {
		p.logger.Warn("publish failed", "exchange", p.exchange, "routing_key", routingKey, "error", err)
		return err
	}
	p.logger.Debug("published", "exchange", p.exchange, "routing_key", routingKey, "bytes", len(body))
	return nil
}
