package broker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// Declare registers an exchange on the session. Declaring the same
// exchange again is a no-op; redeclaring it with different properties
// returns ErrExchangeConflict.
func (s *Session) Declare(ex Exchange) error {
	if err := ValidateExchange(ex.Name); err != nil {
		return err
	}
	if ex.Kind == "" {
		ex.Kind = ExchangeTopic
	}
	if ex.Kind != ExchangeTopic {
		return fmt.Errorf("%w: unsupported kind %q", ErrInvalidExchange, ex.Kind)
	}

	s.declMu.Lock()
	defer s.declMu.Unlock()

	if existing, ok := s.exchanges[ex.Name]; ok {
		if existing != ex {
			return fmt.Errorf("%w: %s", ErrExchangeConflict, ex.Name)
		}
		return nil
	}
	s.exchanges[ex.Name] = ex
	s.logger.Debug("exchange declared", "exchange", ex.Name, "durable", ex.Durable)
	return nil
}

// Bind attaches queue to an exchange under pattern and routes matching
// messages to sink.
//
// Binding the same (queue, exchange, pattern) again only replaces the sink.
// A queue may be bound under several patterns. Bindings survive reconnects.
func (s *Session) Bind(ctx context.Context, b Binding, sink Sink) error {
	if b.Queue == "" {
		return ErrInvalidQueue
	}
	if err := ValidateRoutingKey(b.Pattern, true); err != nil {
		return err
	}
	if sink == nil {
		return fmt.Errorf("%w: nil sink for queue %s", ErrInvalidQueue, b.Queue)
	}

	// Hold opMu so a concurrent reconnect cannot miss this binding.
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.declMu.Lock()
	if _, ok := s.exchanges[b.Exchange]; !ok {
		s.declMu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownExchange, b.Exchange)
	}

	s.sinks[b.Queue] = sink
	if _, ok := s.bindings[b]; ok {
		s.declMu.Unlock()
		return nil
	}

	filter := TopicFilter(b.Exchange, b.Pattern)
	queues, subscribed := s.filters[filter]
	s.bindings[b] = struct{}{}
	s.filters[filter] = append(queues, b.Queue)
	s.declMu.Unlock()

	if subscribed {
		return nil
	}

	conn, err := s.current()
	if errors.Is(err, ErrStreamLost) {
		// Recorded; the next connection restores it.
		return nil
	}
	if err != nil {
		return err
	}

	if err := conn.Subscribe(ctx, filter, s.qos(), s.route(filter)); err != nil {
		if errors.Is(err, ErrStreamLost) {
			return nil
		}
		s.unbind(b, filter)
		return err
	}

	s.logger.Debug("queue bound", "queue", b.Queue, "exchange", b.Exchange, "pattern", b.Pattern)
	return nil
}

// Unbind removes a binding. The transport subscription is dropped once no
// queue is bound under its filter. Unbinding an unknown binding is a no-op.
func (s *Session) Unbind(ctx context.Context, b Binding) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.declMu.RLock()
	_, ok := s.bindings[b]
	s.declMu.RUnlock()
	if !ok {
		return nil
	}

	filter := TopicFilter(b.Exchange, b.Pattern)
	if remaining := s.unbind(b, filter); remaining > 0 {
		return nil
	}

	conn, err := s.current()
	if errors.Is(err, ErrStreamLost) {
		// Not restored on the next connection.
		return nil
	}
	if err != nil {
		return err
	}
	if err := conn.Unsubscribe(ctx, filter); err != nil && !errors.Is(err, ErrStreamLost) {
		return err
	}

	s.logger.Debug("queue unbound", "queue", b.Queue, "exchange", b.Exchange, "pattern", b.Pattern)
	return nil
}

// unbind removes b from the declarations and returns how many queues are
// still bound under filter.
func (s *Session) unbind(b Binding, filter string) int {
	s.declMu.Lock()
	defer s.declMu.Unlock()

	delete(s.bindings, b)
	queues := s.filters[filter]
	for i, q := range queues {
		if q == b.Queue {
			queues = append(queues[:i:i], queues[i+1:]...)
			break
		}
	}
	if len(queues) == 0 {
		delete(s.filters, filter)
	} else {
		s.filters[filter] = queues
	}

	stillBound := false
	for other := range s.bindings {
		if other.Queue == b.Queue {
			stillBound = true
			break
		}
	}
	if !stillBound {
		delete(s.sinks, b.Queue)
	}
	return len(queues)
}

// Bindings returns the bindings recorded on the session.
func (s *Session) Bindings() []Binding {
	s.declMu.RLock()
	defer s.declMu.RUnlock()
	out := make([]Binding, 0, len(s.bindings))
	for b := range s.bindings {
		out = append(out, b)
	}
	return out
}

// Publish sends body to exchange under routingKey as a persistent message.
//
// If the stream is lost the session reconnects under its reconnect policy
// and retries the publish once. Any other failure is returned as is.
func (s *Session) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	if err := ValidateRoutingKey(routingKey, false); err != nil {
		return err
	}
	if len(body) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(body), maxPayloadSize)
	}

	s.declMu.RLock()
	_, declared := s.exchanges[exchange]
	s.declMu.RUnlock()
	if !declared {
		return fmt.Errorf("%w: %s", ErrUnknownExchange, exchange)
	}

	topic := Topic(exchange, routingKey)
	err := s.publishOnce(ctx, topic, body)
	if !errors.Is(err, ErrStreamLost) {
		return err
	}

	s.logger.Warn("publish interrupted, reconnecting", "exchange", exchange, "routing_key", routingKey, "error", err)
	if rerr := s.Reconnect(ctx); rerr != nil {
		return rerr
	}
	return s.publishOnce(ctx, topic, body)
}

func (s *Session) publishOnce(ctx context.Context, topic string, body []byte) error {
	conn, err := s.current()
	if err != nil {
		return err
	}
	return conn.Publish(ctx, topic, body, s.qos())
}

// route returns the transport handler for filter. It fans each message out
// to every queue bound under that filter and acknowledges the transport
// message once all of them have acknowledged.
func (s *Session) route(filter string) func(Message) {
	return func(m Message) {
		exchange, key := SplitTopic(m.Topic())

		s.declMu.RLock()
		queues := s.filters[filter]
		sinks := make([]Sink, len(queues))
		names := make([]string, len(queues))
		for i, q := range queues {
			sinks[i] = s.sinks[q]
			names[i] = q
		}
		s.declMu.RUnlock()

		if len(names) == 0 {
			m.Ack()
			return
		}

		pending := int32(len(names))
		ack := func() {
			if atomic.AddInt32(&pending, -1) == 0 {
				m.Ack()
			}
		}

		for i, q := range names {
			var once atomic.Bool
			d := Delivery{
				Exchange:    exchange,
				RoutingKey:  key,
				Queue:       q,
				Body:        m.Payload(),
				Redelivered: m.Duplicate(),
				ack: func() {
					if once.CompareAndSwap(false, true) {
						ack()
					}
				},
			}
			if sinks[i] == nil {
				d.Ack()
				continue
			}
			sinks[i](d)
		}
	}
}
