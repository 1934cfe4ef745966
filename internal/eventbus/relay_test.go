package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/ticketcore/internal/eventstore"
	"github.com/prohmpiriya/ticketcore/internal/retry"
)

func staticRouter(topic string) TopicRouter {
	return func(eventType string) string { return topic }
}

func TestRelay_PublishesNewEventsAndAdvancesCheckpoint(t *testing.T) {
	store := eventstore.NewMemoryStore()
	bus := NewInMemoryBus()
	checkpoint := NewMemoryCheckpointStore()
	ctx := context.Background()

	_, err := store.Append(ctx, "order-1", nil, []eventstore.EventRecord{
		{EventType: "OrderCreated", Payload: []byte(`{}`)},
		{EventType: "OrderConfirmed", Payload: []byte(`{}`)},
	})
	require.NoError(t, err)

	relay := NewRelay(store, bus, checkpoint, staticRouter("orders"), RelayConfig{
		PollInterval: 10 * time.Millisecond,
		Retry:        &retry.Config{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	})

	relay.relayOnce(ctx)

	last, ok, err := checkpoint.LastPublished(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, eventstore.Version(1), last)

	topics, err := bus.ListTopics(ctx)
	require.NoError(t, err)
	assert.Contains(t, topics, "orders")
}

func TestRelay_DoesNotRepublishAlreadyCheckpointedEvents(t *testing.T) {
	store := eventstore.NewMemoryStore()
	bus := NewInMemoryBus()
	checkpoint := NewMemoryCheckpointStore()
	ctx := context.Background()

	_, err := store.Append(ctx, "order-1", nil, []eventstore.EventRecord{{EventType: "OrderCreated"}})
	require.NoError(t, err)

	relay := NewRelay(store, bus, checkpoint, staticRouter("orders"), RelayConfig{
		Retry: &retry.Config{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	})
	relay.relayOnce(ctx)
	relay.relayOnce(ctx)

	last, ok, err := checkpoint.LastPublished(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, eventstore.Version(0), last)
}
