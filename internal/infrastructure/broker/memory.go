package broker

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/config"
)

// memoryQueueSize is the per-connection delivery buffer.
const memoryQueueSize = 4096

// errMemoryOffline is returned by dials while the memory broker is offline.
var errMemoryOffline = errors.New("memory broker offline")

// MemoryBroker is an in-process broker with MQTT topic semantics.
//
// It backs tests and single-process simulations. Fault injection
// (FailNextDials, SetOffline, DropConnections) exercises the session's
// reconnect path without a real broker.
type MemoryBroker struct {
	mu           sync.Mutex
	conns        map[*memoryConn]struct{}
	failDials    int
	offline      bool
	dials        int
	acks         int
	publications int
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{conns: make(map[*memoryConn]struct{})}
}

// Dialer returns a Dialer connected to this broker.
func (b *MemoryBroker) Dialer() Dialer {
	return func(ctx context.Context, cfg config.BrokerConfig, onLost func(error)) (Conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		b.mu.Lock()
		defer b.mu.Unlock()

		b.dials++
		if b.offline {
			return nil, errMemoryOffline
		}
		if b.failDials > 0 {
			b.failDials--
			return nil, errMemoryOffline
		}

		c := &memoryConn{
			broker:    b,
			clientID:  cfg.ClientID,
			onLost:    onLost,
			connected: true,
			subs:      make(map[string]func(Message)),
			queue:     make(chan *memoryMessage, memoryQueueSize),
			done:      make(chan struct{}),
		}
		b.conns[c] = struct{}{}
		go c.deliverLoop()
		return c, nil
	}
}

// FailNextDials makes the next n dial attempts fail.
func (b *MemoryBroker) FailNextDials(n int) {
	b.mu.Lock()
	b.failDials = n
	b.mu.Unlock()
}

// SetOffline makes every dial fail until it is switched back.
func (b *MemoryBroker) SetOffline(offline bool) {
	b.mu.Lock()
	b.offline = offline
	b.mu.Unlock()
}

// DropConnections severs every live connection as a network fault would,
// invoking each connection's lost callback.
func (b *MemoryBroker) DropConnections() {
	b.drop(func(*memoryConn) bool { return true })
}

// DropClient severs the connections opened with the given client ID.
func (b *MemoryBroker) DropClient(clientID string) {
	b.drop(func(c *memoryConn) bool { return c.clientID == clientID })
}

func (b *MemoryBroker) drop(match func(*memoryConn) bool) {
	b.mu.Lock()
	var conns []*memoryConn
	for c := range b.conns {
		if match(c) {
			conns = append(conns, c)
			delete(b.conns, c)
		}
	}
	b.mu.Unlock()

	for _, c := range conns {
		if c.shutdown() && c.onLost != nil {
			c.onLost(errors.New("connection reset by memory broker"))
		}
	}
}

// Dials returns how many dial attempts have been made.
func (b *MemoryBroker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// Acks returns how many deliveries have been acknowledged.
func (b *MemoryBroker) Acks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acks
}

// Publications returns how many messages have been accepted for routing.
func (b *MemoryBroker) Publications() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.publications
}

// Connections returns the number of live connections.
func (b *MemoryBroker) Connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// route fans a message out to every matching subscription.
func (b *MemoryBroker) route(topic string, payload []byte) {
	type target struct {
		conn    *memoryConn
		handler func(Message)
	}

	b.mu.Lock()
	b.publications++
	var targets []target
	for c := range b.conns {
		c.mu.Lock()
		for filter, h := range c.subs {
			if matchFilter(filter, topic) {
				targets = append(targets, target{conn: c, handler: h})
			}
		}
		c.mu.Unlock()
	}
	b.mu.Unlock()

	for _, t := range targets {
		body := make([]byte, len(payload))
		copy(body, payload)
		t.conn.enqueue(&memoryMessage{
			broker:  b,
			topic:   topic,
			payload: body,
			handler: t.handler,
		})
	}
}

func (b *MemoryBroker) recordAck() {
	b.mu.Lock()
	b.acks++
	b.mu.Unlock()
}

// memoryConn is one client connection to a MemoryBroker.
type memoryConn struct {
	broker   *MemoryBroker
	clientID string
	onLost   func(error)

	mu        sync.Mutex
	connected bool
	subs      map[string]func(Message)

	queue chan *memoryMessage
	done  chan struct{}
}

func (c *memoryConn) Publish(ctx context.Context, topic string, payload []byte, _ byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrStreamLost
	}
	c.broker.route(topic, payload)
	return nil
}

func (c *memoryConn) Subscribe(ctx context.Context, filter string, _ byte, handler func(Message)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrStreamLost
	}
	c.subs[filter] = handler
	return nil
}

func (c *memoryConn) Unsubscribe(ctx context.Context, filter string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrStreamLost
	}
	delete(c.subs, filter)
	return nil
}

func (c *memoryConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *memoryConn) Close() {
	c.broker.mu.Lock()
	delete(c.broker.conns, c)
	c.broker.mu.Unlock()
	c.shutdown()
}

// shutdown marks the connection dead. It reports whether this call did it.
func (c *memoryConn) shutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return false
	}
	c.connected = false
	close(c.done)
	return true
}

func (c *memoryConn) enqueue(m *memoryMessage) {
	select {
	case c.queue <- m:
	case <-c.done:
	}
}

// deliverLoop hands messages to handlers one at a time, preserving order.
func (c *memoryConn) deliverLoop() {
	for {
		select {
		case <-c.done:
			return
		case m := <-c.queue:
			m.handler(m)
		}
	}
}

// memoryMessage implements Message.
type memoryMessage struct {
	broker  *MemoryBroker
	topic   string
	payload []byte
	handler func(Message)
	once    sync.Once
}

func (m *memoryMessage) Topic() string   { return m.topic }
func (m *memoryMessage) Payload() []byte { return m.payload }
func (m *memoryMessage) Duplicate() bool { return false }
func (m *memoryMessage) Ack()            { m.once.Do(m.broker.recordAck) }
