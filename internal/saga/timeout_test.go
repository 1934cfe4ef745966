package saga

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTimeoutStore_DueBeforeReturnsAndClearsExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTimeoutStore()

	past := Timeout{SagaID: "r1", Step: "reserve_seats", DeadlineAt: time.Now().Add(-time.Minute)}
	future := Timeout{SagaID: "r2", Step: "reserve_seats", DeadlineAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Schedule(ctx, past))
	require.NoError(t, store.Schedule(ctx, future))

	due, err := store.DueBefore(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "r1", due[0].SagaID)

	due, err = store.DueBefore(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due, "already-dispatched timeout must not fire twice")
}

func TestMemoryTimeoutStore_CancelPreventsFiring(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTimeoutStore()

	t1 := Timeout{SagaID: "r1", Step: "reserve_seats", DeadlineAt: time.Now().Add(-time.Minute)}
	require.NoError(t, store.Schedule(ctx, t1))
	require.NoError(t, store.Cancel(ctx, "r1", "reserve_seats"))

	due, err := store.DueBefore(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestScheduler_DispatchesDueTimeouts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemoryTimeoutStore()
	require.NoError(t, store.Schedule(ctx, Timeout{SagaID: "r1", Step: "reserve_seats", DeadlineAt: time.Now().Add(-time.Millisecond)}))

	var mu sync.Mutex
	var dispatched []string
	sched := NewScheduler(store, func(ctx context.Context, t Timeout) error {
		mu.Lock()
		defer mu.Unlock()
		dispatched = append(dispatched, t.SagaID)
		return nil
	}, SchedulerConfig{CheckInterval: time.Millisecond})

	go sched.Run(ctx)
	defer sched.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(dispatched) == 1
	}, time.Second, time.Millisecond)
}

func TestIdempotencyKeyIsStableForSameStep(t *testing.T) {
	assert.Equal(t, IdempotencyKey("r1", "reserve_seats"), IdempotencyKey("r1", "reserve_seats"))
	assert.NotEqual(t, IdempotencyKey("r1", "reserve_seats"), IdempotencyKey("r1", "process_payment"))
}
