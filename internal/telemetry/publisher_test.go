package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/broker"
)

func TestPublisherBind(t *testing.T) {
	b := broker.NewMemoryBroker()
	p := testPublisher(t, b)

	require.NoError(t, p.Bind("queue.temperature", "sensor.temperature"))
	assert.ErrorIs(t, p.Bind("", "sensor.temperature"), broker.ErrInvalidQueue)
	assert.ErrorIs(t, p.Bind("q", "sensor..x"), broker.ErrInvalidRoutingKey)

	assert.Equal(t, map[string]string{"queue.temperature": "sensor.temperature"}, p.Queues())
	assert.Equal(t, SensorExchange, p.Exchange())
}

func TestPublisherDeclareConflict(t *testing.T) {
	b := broker.NewMemoryBroker()
	p := testPublisher(t, b)

	require.NoError(t, p.Declare(true))
	assert.ErrorIs(t, p.Declare(false), broker.ErrExchangeConflict)
}

func TestPublishRequiresDeclare(t *testing.T) {
	b := broker.NewMemoryBroker()
	p := NewPublisher(testSession(t, b, "p"), ShutdownExchange, nil)

	err := p.Publish(context.Background(), "shutdown.s1", ShutdownCommand{Command: CommandShutdown})
	assert.ErrorIs(t, err, broker.ErrUnknownExchange)
}

func TestPublishRejectsUnencodablePayload(t *testing.T) {
	b := broker.NewMemoryBroker()
	p := testPublisher(t, b)

	err := p.Publish(context.Background(), "sensor.temperature", map[string]any{"bad": make(chan int)})
	require.Error(t, err)
	assert.Equal(t, 0, b.Publications())
}
