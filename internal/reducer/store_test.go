package reducer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/ticketcore/internal/eventbus"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
	"github.com/prohmpiriya/ticketcore/internal/saga"
)

// testState and testAction model a minimal counter aggregate: enough
// surface to exercise every effect variant without pulling in a real
// domain aggregate.
type testState struct {
	Version eventstore.Version
	Count   int
	LastErr string
}

type testAction struct {
	Kind    string
	Payload int
	Err     string
}

func newTestEnv(store eventstore.Store, bus eventbus.Bus) *Environment {
	return &Environment{Store: store, Bus: bus}
}

func testReducer(state *testState, action testAction, env *Environment) []Effect[testAction] {
	switch action.Kind {
	case "Increment":
		return []Effect[testAction]{
			AppendEvents[testAction]{
				Stream:          "counter-1",
				ExpectedVersion: versionPtrOrNil(state),
				Events:          []eventstore.EventRecord{{EventType: "Incremented", Payload: []byte(`{}`)}},
				OnSuccess: func(v eventstore.Version) testAction {
					return testAction{Kind: "VersionUpdated", Payload: int(v)}
				},
				OnError: func(err error) testAction {
					return testAction{Kind: "ValidationFailed", Err: err.Error()}
				},
			},
		}
	case "VersionUpdated":
		state.Version = eventstore.Version(action.Payload)
		state.Count++
		return nil
	case "ValidationFailed":
		state.LastErr = action.Err
		return nil
	case "PublishThenNone":
		return []Effect[testAction]{
			PublishEvent[testAction]{
				Topic: "counters",
				Event: eventbus.SerializedEvent{StreamID: "counter-1"},
				OnSuccess: func() testAction {
					return testAction{Kind: "Published"}
				},
			},
		}
	case "Published":
		state.Count++
		return nil
	case "RunSequential":
		return []Effect[testAction]{
			Sequential[testAction]{Effects: []Effect[testAction]{
				None[testAction]{},
				Future[testAction]{Run: func() (testAction, bool, error) {
					return testAction{Kind: "SequentialHit"}, true, nil
				}},
				Future[testAction]{Run: func() (testAction, bool, error) {
					return testAction{Kind: "ShouldNotRun"}, true, nil
				}},
			}},
		}
	case "SequentialHit":
		state.Count += 100
		return nil
	case "ShouldNotRun":
		state.Count += 10000
		return nil
	case "RunDelay":
		return []Effect[testAction]{
			Delay[testAction]{Duration: 5 * time.Millisecond, Action: testAction{Kind: "DelayFired"}},
		}
	case "DelayFired":
		state.Count += 7
		return nil
	case "RunScheduleTimeout":
		return []Effect[testAction]{
			ScheduleTimeout[testAction]{SagaID: "saga-1", Step: "step-1", DeadlineAt: time.Now().Add(time.Hour)},
		}
	}
	return nil
}

func versionPtrOrNil(state *testState) *eventstore.Version {
	if state.Count == 0 {
		return nil
	}
	v := state.Version
	return &v
}

func TestStore_AppendEventsSuccessUpdatesVersion(t *testing.T) {
	store := eventstore.NewMemoryStore()
	bus := eventbus.NewInMemoryBus()
	s := New(testState{}, testReducer, newTestEnv(store, bus))

	err := s.Send(context.Background(), testAction{Kind: "Increment"})
	require.NoError(t, err)

	state := s.State()
	assert.Equal(t, 1, state.Count)
	assert.Equal(t, eventstore.Version(0), state.Version)
}

func TestStore_AppendEventsConflictYieldsValidationFailed(t *testing.T) {
	store := eventstore.NewMemoryStore()
	bus := eventbus.NewInMemoryBus()

	// Pre-seed the stream at version 0 so expected_version=nil conflicts.
	_, err := store.Append(context.Background(), "counter-1", nil, []eventstore.EventRecord{{EventType: "Seeded"}})
	require.NoError(t, err)

	s := New(testState{}, testReducer, newTestEnv(store, bus))
	err = s.Send(context.Background(), testAction{Kind: "Increment"})
	require.NoError(t, err)

	state := s.State()
	assert.NotEmpty(t, state.LastErr)
	assert.Equal(t, 0, state.Count)
}

func TestStore_PublishEventEffect(t *testing.T) {
	store := eventstore.NewMemoryStore()
	bus := eventbus.NewInMemoryBus()
	s := New(testState{}, testReducer, newTestEnv(store, bus))

	err := s.Send(context.Background(), testAction{Kind: "PublishThenNone"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.State().Count)
}

func TestStore_SequentialShortCircuitsOnFirstAction(t *testing.T) {
	store := eventstore.NewMemoryStore()
	bus := eventbus.NewInMemoryBus()
	s := New(testState{}, testReducer, newTestEnv(store, bus))

	err := s.Send(context.Background(), testAction{Kind: "RunSequential"})
	require.NoError(t, err)
	assert.Equal(t, 100, s.State().Count, "only the first effect that produces an action should run")
}

func TestStore_DelayDispatchesAfterDuration(t *testing.T) {
	store := eventstore.NewMemoryStore()
	bus := eventbus.NewInMemoryBus()
	s := New(testState{}, testReducer, newTestEnv(store, bus))

	err := s.Send(context.Background(), testAction{Kind: "RunDelay"})
	require.NoError(t, err)
	assert.Equal(t, 7, s.State().Count)
}

func TestStore_ScheduleTimeoutSurvivesClose(t *testing.T) {
	store := eventstore.NewMemoryStore()
	bus := eventbus.NewInMemoryBus()
	timeouts := saga.NewMemoryTimeoutStore()
	env := newTestEnv(store, bus)
	env.Timeouts = timeouts
	s := New(testState{}, testReducer, env)

	err := s.Send(context.Background(), testAction{Kind: "RunScheduleTimeout"})
	require.NoError(t, err)
	s.Close()

	due, err := timeouts.DueBefore(context.Background(), time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1, "a scheduled timeout must outlive the Store that armed it")
	assert.Equal(t, "saga-1", due[0].SagaID)
}

func TestStore_ScheduleTimeoutWithNilTimeoutsIsNoOp(t *testing.T) {
	store := eventstore.NewMemoryStore()
	bus := eventbus.NewInMemoryBus()
	s := New(testState{}, testReducer, newTestEnv(store, bus))

	err := s.Send(context.Background(), testAction{Kind: "RunScheduleTimeout"})
	require.NoError(t, err)
}

func TestStore_SendAndWaitForResolvesOnMatchingAction(t *testing.T) {
	store := eventstore.NewMemoryStore()
	bus := eventbus.NewInMemoryBus()
	s := New(testState{}, testReducer, newTestEnv(store, bus))

	action, err := s.SendAndWaitFor(context.Background(), testAction{Kind: "Increment"},
		func(a testAction) bool { return a.Kind == "VersionUpdated" }, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "VersionUpdated", action.Kind)
}

func TestStore_SendAndWaitForTimesOut(t *testing.T) {
	store := eventstore.NewMemoryStore()
	bus := eventbus.NewInMemoryBus()
	s := New(testState{}, testReducer, newTestEnv(store, bus))

	_, err := s.SendAndWaitFor(context.Background(), testAction{Kind: "PublishThenNone"},
		func(a testAction) bool { return a.Kind == "NeverHappens" }, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

func TestStore_CloseCancelsDelay(t *testing.T) {
	store := eventstore.NewMemoryStore()
	bus := eventbus.NewInMemoryBus()
	s := New(testState{}, testReducer, newTestEnv(store, bus))

	done := make(chan error, 1)
	go func() {
		done <- s.Send(context.Background(), testAction{Kind: "RunDelay"})
	}()

	s.Close()
	<-done

	assert.Equal(t, 0, s.State().Count, "closed store must not apply the delayed action")
}

func TestStore_SendAfterCloseFails(t *testing.T) {
	store := eventstore.NewMemoryStore()
	bus := eventbus.NewInMemoryBus()
	s := New(testState{}, testReducer, newTestEnv(store, bus))
	s.Close()

	err := s.Send(context.Background(), testAction{Kind: "Increment"})
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestStore_ParallelMergesActionsInCompletionOrder(t *testing.T) {
	store := eventstore.NewMemoryStore()
	bus := eventbus.NewInMemoryBus()
	var order []string
	s := New(testState{}, func(state *testState, action testAction, env *Environment) []Effect[testAction] {
		if action.Kind == "RunParallel" {
			return []Effect[testAction]{
				Parallel[testAction]{Effects: []Effect[testAction]{
					Future[testAction]{Run: func() (testAction, bool, error) {
						time.Sleep(2 * time.Millisecond)
						return testAction{Kind: "Slow"}, true, nil
					}},
					Future[testAction]{Run: func() (testAction, bool, error) {
						return testAction{Kind: "Fast"}, true, nil
					}},
				}},
			}
		}
		order = append(order, action.Kind)
		state.Count++
		return nil
	}, newTestEnv(store, bus))

	err := s.Send(context.Background(), testAction{Kind: "RunParallel"})
	require.NoError(t, err)
	assert.Equal(t, 2, s.State().Count, "both completed actions should be dispatched, not just the first winner")
	assert.Equal(t, []string{"Fast", "Slow"}, order, "actions should be merged in completion order")
}

func TestStore_FutureErrorPropagates(t *testing.T) {
	store := eventstore.NewMemoryStore()
	bus := eventbus.NewInMemoryBus()
	boom := errors.New("boom")
	s := New(testState{}, func(state *testState, action testAction, env *Environment) []Effect[testAction] {
		return []Effect[testAction]{
			Future[testAction]{Run: func() (testAction, bool, error) { return testAction{}, false, boom }},
		}
	}, newTestEnv(store, bus))

	err := s.Send(context.Background(), testAction{Kind: "Anything"})
	assert.ErrorIs(t, err, boom)
}
