package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBus_PublishThenSubscribeDeliversInOrder(t *testing.T) {
	bus := NewInMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Publish(ctx, "events", SerializedEvent{StreamID: "s1", Version: 0, EventType: "A"}))
	require.NoError(t, bus.Publish(ctx, "events", SerializedEvent{StreamID: "s1", Version: 1, EventType: "B"}))

	var mu sync.Mutex
	var received []string

	go func() {
		_ = bus.Subscribe(ctx, []string{"events"}, "group-1", func(ctx context.Context, ev SerializedEvent) error {
			mu.Lock()
			received = append(received, ev.EventType)
			mu.Unlock()
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"A", "B"}, received)
}

func TestInMemoryBus_IndependentConsumerGroups(t *testing.T) {
	bus := NewInMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Publish(ctx, "events", SerializedEvent{StreamID: "s1", EventType: "A"}))

	var mu sync.Mutex
	countA, countB := 0, 0

	go func() {
		_ = bus.Subscribe(ctx, []string{"events"}, "group-a", func(ctx context.Context, ev SerializedEvent) error {
			mu.Lock()
			countA++
			mu.Unlock()
			return nil
		})
	}()
	go func() {
		_ = bus.Subscribe(ctx, []string{"events"}, "group-b", func(ctx context.Context, ev SerializedEvent) error {
			mu.Lock()
			countB++
			mu.Unlock()
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return countA == 1 && countB == 1
	}, time.Second, 5*time.Millisecond)
}

func TestInMemoryBus_ListTopics(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	_ = bus.Publish(ctx, "events", SerializedEvent{StreamID: "s1"})
	_ = bus.Publish(ctx, "payments", SerializedEvent{StreamID: "s2"})

	topics, err := bus.ListTopics(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"events", "payments"}, topics)
}
