package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/ticketcore/internal/dlq"
	"github.com/prohmpiriya/ticketcore/internal/eventbus"
	"github.com/prohmpiriya/ticketcore/internal/retry"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRuntime_ParksEventAfterRetriesExhausted(t *testing.T) {
	bus := eventbus.NewInMemoryBus()
	dlqStore := dlq.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Publish(ctx, "domain-events", eventbus.SerializedEvent{
		StreamID: "reservation-r1", EventType: "ReservationInitiated", CreatedAt: time.Now(),
	}))

	rt := NewRuntime(bus, dlqStore, Config{
		Retry: &retry.Config{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	})

	go rt.Run(ctx, "projection-updater", []string{"domain-events"}, func(ctx context.Context, event eventbus.SerializedEvent) error {
		return errors.New("handler exploded")
	})

	waitFor(t, time.Second, func() bool {
		stats, err := dlqStore.Stats(ctx)
		require.NoError(t, err)
		return stats.Pending == 1
	})

	pending, err := dlqStore.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "reservation-r1", pending[0].StreamID)
	assert.Equal(t, "handler exploded", pending[0].LastError)
	assert.Equal(t, 3, pending[0].RetryCount) // initial attempt + 2 retries
}

func TestRuntime_CommitsOnHandlerSuccess(t *testing.T) {
	bus := eventbus.NewInMemoryBus()
	dlqStore := dlq.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Publish(ctx, "domain-events", eventbus.SerializedEvent{StreamID: "reservation-r2", EventType: "ReservationInitiated"}))

	processed := make(chan string, 1)
	rt := NewRuntime(bus, dlqStore, Config{Retry: &retry.Config{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}})

	go rt.Run(ctx, "projection-updater", []string{"domain-events"}, func(ctx context.Context, event eventbus.SerializedEvent) error {
		processed <- event.StreamID
		return nil
	})

	select {
	case id := <-processed:
		assert.Equal(t, "reservation-r2", id)
	case <-time.After(time.Second):
		t.Fatal("event was never processed")
	}

	stats, err := dlqStore.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Pending)
}
