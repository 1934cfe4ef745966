package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/ticketcore/internal/eventstore"
	"github.com/prohmpiriya/ticketcore/internal/reducer"
)

func newEnv(store eventstore.Store) *reducer.Environment {
	return &reducer.Environment{Store: store}
}

func applyEffects(t *testing.T, ctx context.Context, env *reducer.Environment, effects []reducer.Effect[Action]) Action {
	t.Helper()
	require.Len(t, effects, 1)
	if f, ok := effects[0].(reducer.Future[Action]); ok {
		action, produced, err := f.Run()
		require.NoError(t, err)
		require.True(t, produced)
		return action
	}
	ae, ok := effects[0].(reducer.AppendEvents[Action])
	require.True(t, ok)
	version, err := env.Store.Append(ctx, ae.Stream, ae.ExpectedVersion, ae.Events)
	if err != nil {
		return ae.OnError(err)
	}
	return ae.OnSuccess(version)
}

func TestReduce_CreateEvent(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	env := newEnv(store)

	var state State
	effects := Reduce(&state, Action{Kind: KindCreateEvent, CreateEvent: &CreateEventCmd{
		EventID: "evt-1",
		Name:    "Concert",
		VenueID: "venue-1",
	}}, env)

	assert.True(t, state.Loaded)
	assert.Equal(t, StatusDraft, state.Status)

	result := applyEffects(t, ctx, env, effects)
	assert.Equal(t, KindVersionUpdated, result.Kind)

	Reduce(&state, result, env)
	assert.Equal(t, eventstore.Version(0), state.Version)
}

func TestReduce_LifecycleHappyPath(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	env := newEnv(store)

	var state State
	create := func(action Action) {
		effects := Reduce(&state, action, env)
		result := applyEffects(t, ctx, env, effects)
		require.Equal(t, KindVersionUpdated, result.Kind)
		Reduce(&state, result, env)
	}

	create(Action{Kind: KindCreateEvent, CreateEvent: &CreateEventCmd{EventID: "evt-1", Name: "Concert"}})
	create(Action{Kind: KindPublishEvent, PublishEvent: &PublishEventCmd{EventID: "evt-1"}})
	assert.Equal(t, StatusPublished, state.Status)

	create(Action{Kind: KindOpenSales, OpenSales: &OpenSalesCmd{EventID: "evt-1"}})
	assert.Equal(t, StatusSalesOpen, state.Status)

	create(Action{Kind: KindCloseSales, CloseSales: &CloseSalesCmd{EventID: "evt-1"}})
	assert.Equal(t, StatusSalesClosed, state.Status)
	assert.True(t, state.Status.IsTerminal())
}

func TestReduce_CannotPublishTwice(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	env := newEnv(store)

	state := State{Loaded: true, ID: "evt-1", Status: StatusPublished, Version: 1}
	effects := Reduce(&state, Action{Kind: KindPublishEvent, PublishEvent: &PublishEventCmd{EventID: "evt-1"}}, env)
	result := applyEffects(t, ctx, env, effects)
	assert.Equal(t, KindValidationFailed, result.Kind)
	assert.Contains(t, result.ValidationFailed.Error, "cannot transition")
}

func TestReduce_CancelFromAnyNonTerminalState(t *testing.T) {
	ctx := context.Background()

	for _, status := range []Status{StatusDraft, StatusPublished, StatusSalesOpen} {
		store := eventstore.NewMemoryStore()
		env := newEnv(store)
		_, err := store.Append(ctx, StreamID("evt-1"), nil, []eventstore.EventRecord{{EventType: EventTypeCreated, EventSchemaVersion: SchemaVersion, Payload: []byte(`{}`)}})
		require.NoError(t, err)
		state := State{Loaded: true, ID: "evt-1", Status: status, Version: 0}
		effects := Reduce(&state, Action{Kind: KindCancelEvent, CancelEvent: &CancelEventCmd{EventID: "evt-1", Reason: "refund"}}, env)
		result := applyEffects(t, ctx, env, effects)
		require.Equal(t, KindVersionUpdated, result.Kind)
		Reduce(&state, result, env)
		assert.Equal(t, StatusCancelled, state.Status)
	}
}

func TestReduce_CannotCancelTerminalEvent(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	env := newEnv(store)

	state := State{Loaded: true, ID: "evt-1", Status: StatusCancelled, Version: 2}
	effects := Reduce(&state, Action{Kind: KindCancelEvent, CancelEvent: &CancelEventCmd{EventID: "evt-1", Reason: "refund"}}, env)
	result := applyEffects(t, ctx, env, effects)
	assert.Equal(t, KindValidationFailed, result.Kind)
}

func TestReduce_UpdateRestrictedToDraftOrPublished(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	env := newEnv(store)

	newName := "Updated Concert"
	state := State{Loaded: true, ID: "evt-1", Status: StatusSalesOpen, Version: 3}
	effects := Reduce(&state, Action{Kind: KindUpdateEvent, UpdateEvent: &UpdateEventCmd{EventID: "evt-1", Name: &newName}}, env)
	result := applyEffects(t, ctx, env, effects)
	assert.Equal(t, KindValidationFailed, result.Kind)
}

func TestReduce_UpdateAppliesFieldsAndPersistsEvent(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	env := newEnv(store)

	newName := "Updated Concert"
	newStart := time.Date(2026, 9, 1, 20, 0, 0, 0, time.UTC)
	state := State{Loaded: true, ID: "evt-1", Status: StatusDraft, Name: "Concert", Version: 0}

	_, err := store.Append(ctx, StreamID("evt-1"), nil, []eventstore.EventRecord{{EventType: EventTypeCreated, EventSchemaVersion: SchemaVersion, Payload: []byte(`{}`)}})
	require.NoError(t, err)

	effects := Reduce(&state, Action{Kind: KindUpdateEvent, UpdateEvent: &UpdateEventCmd{
		EventID:   "evt-1",
		Name:      &newName,
		StartTime: &newStart,
	}}, env)

	assert.Equal(t, newName, state.Name)
	assert.Equal(t, newStart, state.StartTime)

	result := applyEffects(t, ctx, env, effects)
	require.Equal(t, KindVersionUpdated, result.Kind)
}

func TestHydrate_ReplaysEventsIntoState(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	env := newEnv(store)

	var state State
	create := func(action Action) {
		effects := Reduce(&state, action, env)
		result := applyEffects(t, ctx, env, effects)
		require.Equal(t, KindVersionUpdated, result.Kind)
		Reduce(&state, result, env)
	}

	create(Action{Kind: KindCreateEvent, CreateEvent: &CreateEventCmd{EventID: "evt-9", Name: "Opera", VenueID: "venue-2"}})
	create(Action{Kind: KindPublishEvent, PublishEvent: &PublishEventCmd{EventID: "evt-9"}})
	create(Action{Kind: KindOpenSales, OpenSales: &OpenSalesCmd{EventID: "evt-9"}})

	hydrated, err := Hydrate(ctx, store, "evt-9")
	require.NoError(t, err)
	assert.Equal(t, "Opera", hydrated.Name)
	assert.Equal(t, StatusSalesOpen, hydrated.Status)
	assert.Equal(t, eventstore.Version(2), hydrated.Version)
}

func TestStatus_IsValidAndIsTerminal(t *testing.T) {
	assert.True(t, StatusDraft.IsValid())
	assert.False(t, Status("bogus").IsValid())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusSalesOpen.IsTerminal())
}
