package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/broker"
)

// defaultBufferSize is the number of deliveries queued ahead of the handler.
const defaultBufferSize = 256

// Handler processes one delivered message. Returning an error, or
// panicking, counts as a failed delivery.
type Handler func(ctx context.Context, body []byte, exchange, routingKey, queue string) error

// FailurePolicy decides what happens to a message whose handler failed.
type FailurePolicy int

const (
	// DropOnFailure logs the failure and acknowledges the message anyway,
	// so it is never redelivered. Malformed messages are dropped this way.
	DropOnFailure FailurePolicy = iota

	// HoldOnFailure leaves the message unacknowledged. A durable broker
	// session redelivers it after the next reconnect.
	HoldOnFailure
)

// String returns the policy name.
func (p FailurePolicy) String() string {
	switch p {
	case DropOnFailure:
		return "drop"
	case HoldOnFailure:
		return "hold"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithFailurePolicy sets the failure policy. The default is DropOnFailure.
func WithFailurePolicy(p FailurePolicy) ConsumerOption {
	return func(c *Consumer) { c.policy = p }
}

// WithConsumerLogger sets the consumer logger.
func WithConsumerLogger(l Logger) ConsumerOption {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBufferSize sets how many deliveries may wait for the handler.
func WithBufferSize(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// Consumer binds queues on one exchange and feeds their messages to a
// handler.
//
// A single goroutine runs the handler, so messages are handled one at a
// time in arrival order. A message is acknowledged after the handler
// returns; see FailurePolicy for failures.
//
// Thread Safety:
//   - AddQueue, RemoveQueue, UpdateRoutingKey and Queues may be called at
//     any time, including while the consume loop runs.
type Consumer struct {
	bus        Bus
	exchange   string
	handler    Handler
	logger     Logger
	policy     FailurePolicy
	bufferSize int

	mu      sync.Mutex
	queues  map[string]string // queue -> routing key pattern
	started bool

	deliveries chan broker.Delivery
	done       chan struct{}
	err        error
}

// NewConsumer creates a consumer for exchange. queues maps each queue name
// to the routing key pattern it is bound under.
func NewConsumer(bus Bus, exchange string, queues map[string]string, handler Handler, opts ...ConsumerOption) (*Consumer, error) {
	if handler == nil {
		return nil, ErrNoHandler
	}
	if err := broker.ValidateExchange(exchange); err != nil {
		return nil, err
	}

	c := &Consumer{
		bus:        bus,
		exchange:   exchange,
		handler:    handler,
		logger:     noopLogger{},
		policy:     DropOnFailure,
		bufferSize: defaultBufferSize,
		queues:     make(map[string]string, len(queues)),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	for q, pattern := range queues {
		if err := validateQueue(q, pattern); err != nil {
			return nil, err
		}
		c.queues[q] = pattern
	}
	c.deliveries = make(chan broker.Delivery, c.bufferSize)
	return c, nil
}

func validateQueue(queue, pattern string) error {
	if queue == "" {
		return broker.ErrInvalidQueue
	}
	return broker.ValidateRoutingKey(pattern, true)
}

// Exchange returns the exchange the consumer is bound to.
func (c *Consumer) Exchange() string {
	return c.exchange
}

// Policy returns the failure policy in effect.
func (c *Consumer) Policy() FailurePolicy {
	return c.policy
}

// Start declares the exchange, binds every queue and launches the consume
// loop in its own goroutine. The loop runs until ctx is cancelled or the
// bus fails for good; Wait returns how it ended.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	queues := make([]string, 0, len(c.queues))
	for q := range c.queues {
		queues = append(queues, q)
	}
	patterns := make(map[string]string, len(c.queues))
	for q, p := range c.queues {
		patterns[q] = p
	}
	c.mu.Unlock()

	if err := c.bus.Declare(broker.Exchange{Name: c.exchange, Kind: broker.ExchangeTopic, Durable: true}); err != nil {
		c.abort(err)
		return fmt.Errorf("declaring %s: %w", c.exchange, err)
	}

	sort.Strings(queues)
	for _, q := range queues {
		if err := c.bind(ctx, q, patterns[q]); err != nil {
			c.abort(err)
			return err
		}
	}

	c.logger.Info("consumer started", "exchange", c.exchange, "queues", len(queues), "failure_policy", c.policy.String())
	go c.loop(ctx)
	return nil
}

// abort ends a consumer whose Start failed.
func (c *Consumer) abort(err error) {
	c.err = err
	close(c.done)
}

func (c *Consumer) bind(ctx context.Context, queue, pattern string) error {
	b := broker.Binding{Queue: queue, Exchange: c.exchange, Pattern: pattern}
	if err := c.bus.Bind(ctx, b, c.enqueue); err != nil {
		return fmt.Errorf("binding %s to %s: %w", queue, pattern, err)
	}
	return nil
}

// enqueue is the broker sink. It blocks while the buffer is full. Once the
// loop has stopped, deliveries are left unacknowledged for the broker to
// redeliver.
func (c *Consumer) enqueue(d broker.Delivery) {
	select {
	case c.deliveries <- d:
	case <-c.done:
	}
}

// Wait blocks until the consume loop stops. It returns nil when the loop
// stopped because its context ended, otherwise the bus error.
func (c *Consumer) Wait() error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return nil
	}
	<-c.done
	return c.err
}

// Done is closed when the consume loop stops.
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

func (c *Consumer) loop(ctx context.Context) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopped", "exchange", c.exchange)
			return
		case <-c.bus.Done():
			c.err = c.bus.Err()
			c.logger.Error("consumer stopped: broker session ended", "exchange", c.exchange, "error", c.err)
			return
		case d := <-c.deliveries:
			c.handle(ctx, d)
		}
	}
}

// handle runs the handler for d and settles it.
func (c *Consumer) handle(ctx context.Context, d broker.Delivery) {
	c.mu.Lock()
	pattern, ok := c.queues[d.Queue]
	c.mu.Unlock()

	// Deliveries queued before a queue was removed or rebound.
	if !ok || !broker.MatchRoutingKey(pattern, d.RoutingKey) {
		c.logger.Debug("discarding delivery for inactive binding", "queue", d.Queue, "routing_key", d.RoutingKey)
		d.Ack()
		return
	}

	err := c.invoke(ctx, d)
	if err == nil {
		d.Ack()
		return
	}

	if errors.Is(err, ErrMalformedMessage) {
		c.logger.Warn("dropping malformed message",
			"queue", d.Queue,
			"routing_key", d.RoutingKey,
			"error", err,
		)
		d.Ack()
		return
	}

	c.logger.Error("message handler failed",
		"queue", d.Queue,
		"routing_key", d.RoutingKey,
		"redelivered", d.Redelivered,
		"failure_policy", c.policy.String(),
		"error", err,
	)
	if c.policy == DropOnFailure {
		d.Ack()
	}
}

// invoke calls the handler, converting a panic into an error.
func (c *Consumer) invoke(ctx context.Context, d broker.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.handler(ctx, d.Body, d.Exchange, d.RoutingKey, d.Queue)
}

// AddQueue binds another queue. Before Start it is only recorded.
// Adding a queue that already exists rebinds it like UpdateRoutingKey.
func (c *Consumer) AddQueue(ctx context.Context, queue, pattern string) error {
	if err := validateQueue(queue, pattern); err != nil {
		return err
	}

	c.mu.Lock()
	prev, existed := c.queues[queue]
	c.queues[queue] = pattern
	started := c.started
	c.mu.Unlock()

	if !started || (existed && prev == pattern) {
		return nil
	}
	if err := c.bind(ctx, queue, pattern); err != nil {
		c.mu.Lock()
		if existed {
			c.queues[queue] = prev
		} else {
			delete(c.queues, queue)
		}
		c.mu.Unlock()
		return err
	}
	if existed {
		return c.unbind(ctx, queue, prev)
	}
	return nil
}

// RemoveQueue drops a queue and, once started, retracts its broker
// binding, so the broker stops routing to it. Deliveries already in flight
// for it are acknowledged and discarded.
// Returns ErrUnknownQueue if the queue is not present.
func (c *Consumer) RemoveQueue(ctx context.Context, queue string) error {
	c.mu.Lock()
	pattern, ok := c.queues[queue]
	delete(c.queues, queue)
	started := c.started
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	if !started {
		return nil
	}
	return c.unbind(ctx, queue, pattern)
}

// UpdateRoutingKey rebinds an existing queue under a new pattern.
// Returns ErrUnknownQueue if the queue is not present.
func (c *Consumer) UpdateRoutingKey(ctx context.Context, queue, pattern string) error {
	c.mu.Lock()
	_, ok := c.queues[queue]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	return c.AddQueue(ctx, queue, pattern)
}

func (c *Consumer) unbind(ctx context.Context, queue, pattern string) error {
	b := broker.Binding{Queue: queue, Exchange: c.exchange, Pattern: pattern}
	if err := c.bus.Unbind(ctx, b); err != nil {
		return fmt.Errorf("unbinding %s from %s: %w", queue, pattern, err)
	}
	return nil
}

// Queues returns a copy of the queue to pattern map.
func (c *Consumer) Queues() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.queues))
	for q, p := range c.queues {
		out[q] = p
	}
	return out
}
