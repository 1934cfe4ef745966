package inventory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/ticketcore/internal/eventstore"
	"github.com/prohmpiriya/ticketcore/internal/reducer"
)

type stubProjections struct {
	snapshot Snapshot
	found    bool
	err      error
}

func (s stubProjections) AvailableSeats(ctx context.Context, eventID, section string) (Snapshot, bool, error) {
	return s.snapshot, s.found, s.err
}

func newEnv(store eventstore.Store) *reducer.Environment {
	return &reducer.Environment{Store: store}
}

func run(t *testing.T, ctx context.Context, env *reducer.Environment, rdc reducer.Reducer[State, Action], state *State, action Action) Action {
	t.Helper()
	effects := rdc(state, action, env)
	return applyEffects(t, ctx, env, rdc, state, effects)
}

// applyEffects interprets the effects a real Store would, including
// Sequential's load-then-retry shortcut, without pulling in the full
// generic Store machinery.
func applyEffects(t *testing.T, ctx context.Context, env *reducer.Environment, rdc reducer.Reducer[State, Action], state *State, effects []reducer.Effect[Action]) Action {
	t.Helper()
	var last Action
	for _, eff := range effects {
		action, ok := execOne(t, ctx, env, eff)
		if !ok {
			continue
		}
		last = action
		follow := rdc(state, action, env)
		if len(follow) > 0 {
			last = applyEffects(t, ctx, env, rdc, state, follow)
		}
	}
	return last
}

func execOne(t *testing.T, ctx context.Context, env *reducer.Environment, eff reducer.Effect[Action]) (Action, bool) {
	t.Helper()
	switch e := eff.(type) {
	case reducer.AppendEvents[Action]:
		v, err := env.Store.Append(ctx, e.Stream, e.ExpectedVersion, e.Events)
		if err != nil {
			return e.OnError(err), true
		}
		return e.OnSuccess(v), true
	case reducer.Future[Action]:
		action, ok, err := e.Run()
		require.NoError(t, err)
		return action, ok
	case reducer.Sequential[Action]:
		for _, sub := range e.Effects {
			action, ok := execOne(t, ctx, env, sub)
			if ok {
				return action, true
			}
		}
		return Action{}, false
	}
	return Action{}, false
}

func TestReduce_AddInventoryCreatesSeatsInOrder(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	env := newEnv(store)
	rdc := NewReducer(stubProjections{})

	var state State
	result := run(t, ctx, env, rdc, &state, Action{Kind: KindAddInventory, AddInventory: &AddInventoryCmd{
		EventID: "evt-1", Section: "GA", Capacity: 12, UnitPrice: 1000,
	}})

	assert.Equal(t, KindVersionUpdated, result.Kind)
	total, reserved, sold, available := state.Counters()
	assert.Equal(t, 12, total)
	assert.Equal(t, 0, reserved)
	assert.Equal(t, 0, sold)
	assert.Equal(t, 12, available)
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12"}, state.SeatOrder)
}

func TestReduce_ReserveSeatsAscendingOrder(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	env := newEnv(store)
	rdc := NewReducer(stubProjections{})

	var state State
	run(t, ctx, env, rdc, &state, Action{Kind: KindAddInventory, AddInventory: &AddInventoryCmd{EventID: "evt-1", Section: "GA", Capacity: 3, UnitPrice: 500}})

	result := run(t, ctx, env, rdc, &state, Action{Kind: KindReserveSeats, ReserveSeats: &ReserveSeatsCmd{
		EventID: "evt-1", Section: "GA", Quantity: 2, ReservationID: "res-1",
	}})

	require.Equal(t, KindVersionUpdated, result.Kind)
	assert.Equal(t, SeatReserved, state.Seats["1"].Status)
	assert.Equal(t, SeatReserved, state.Seats["2"].Status)
	assert.Equal(t, SeatAvailable, state.Seats["3"].Status)
}

func TestReduce_ReserveSpecificSeats(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	env := newEnv(store)
	rdc := NewReducer(stubProjections{})

	var state State
	run(t, ctx, env, rdc, &state, Action{Kind: KindAddInventory, AddInventory: &AddInventoryCmd{EventID: "evt-1", Section: "GA", Capacity: 3, UnitPrice: 500}})

	result := run(t, ctx, env, rdc, &state, Action{Kind: KindReserveSeats, ReserveSeats: &ReserveSeatsCmd{
		EventID: "evt-1", Section: "GA", SpecificSeats: []string{"3"}, ReservationID: "res-1",
	}})

	require.Equal(t, KindVersionUpdated, result.Kind)
	assert.Equal(t, SeatReserved, state.Seats["3"].Status)
	assert.Equal(t, SeatAvailable, state.Seats["1"].Status)
}

func TestReduce_InsufficientInventory(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	env := newEnv(store)
	rdc := NewReducer(stubProjections{})

	var state State
	run(t, ctx, env, rdc, &state, Action{Kind: KindAddInventory, AddInventory: &AddInventoryCmd{EventID: "evt-1", Section: "GA", Capacity: 1, UnitPrice: 500}})

	result := run(t, ctx, env, rdc, &state, Action{Kind: KindReserveSeats, ReserveSeats: &ReserveSeatsCmd{
		EventID: "evt-1", Section: "GA", Quantity: 2, ReservationID: "res-1",
	}})

	// The fast-fail path now durably appends an InsufficientInventory
	// event instead of dropping the failure, so the terminal action is
	// the same VersionUpdated every other append produces.
	require.Equal(t, KindVersionUpdated, result.Kind)

	events, err := store.Load(ctx, StreamID("evt-1", "GA"), nil)
	require.NoError(t, err)
	last := events[len(events)-1]
	require.Equal(t, EventTypeInsufficientInventory, last.EventType)

	var payload InsufficientInventoryPayload
	require.NoError(t, json.Unmarshal(last.Payload, &payload))
	assert.Equal(t, "res-1", payload.ReservationID)
	assert.Equal(t, 2, payload.Requested)
	assert.Equal(t, 1, payload.Available)
}

func TestReduce_ReleaseSeatsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	env := newEnv(store)
	rdc := NewReducer(stubProjections{})

	var state State
	run(t, ctx, env, rdc, &state, Action{Kind: KindAddInventory, AddInventory: &AddInventoryCmd{EventID: "evt-1", Section: "GA", Capacity: 2, UnitPrice: 500}})
	run(t, ctx, env, rdc, &state, Action{Kind: KindReserveSeats, ReserveSeats: &ReserveSeatsCmd{EventID: "evt-1", Section: "GA", Quantity: 1, ReservationID: "res-1"}})

	first := run(t, ctx, env, rdc, &state, Action{Kind: KindReleaseSeats, ReleaseSeats: &ReleaseSeatsCmd{EventID: "evt-1", Section: "GA", ReservationID: "res-1"}})
	require.Equal(t, KindVersionUpdated, first.Kind)
	assert.Equal(t, SeatAvailable, state.Seats["1"].Status)

	second := run(t, ctx, env, rdc, &state, Action{Kind: KindReleaseSeats, ReleaseSeats: &ReleaseSeatsCmd{EventID: "evt-1", Section: "GA", ReservationID: "res-1"}})
	require.Equal(t, KindVersionUpdated, second.Kind)
}

func TestReduce_ConfirmSaleMarksSeatsSold(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	env := newEnv(store)
	rdc := NewReducer(stubProjections{})

	var state State
	run(t, ctx, env, rdc, &state, Action{Kind: KindAddInventory, AddInventory: &AddInventoryCmd{EventID: "evt-1", Section: "GA", Capacity: 2, UnitPrice: 500}})
	run(t, ctx, env, rdc, &state, Action{Kind: KindReserveSeats, ReserveSeats: &ReserveSeatsCmd{EventID: "evt-1", Section: "GA", Quantity: 1, ReservationID: "res-1"}})

	result := run(t, ctx, env, rdc, &state, Action{Kind: KindConfirmSale, ConfirmSale: &ConfirmSaleCmd{EventID: "evt-1", Section: "GA", ReservationID: "res-1"}})
	require.Equal(t, KindVersionUpdated, result.Kind)
	assert.Equal(t, SeatSold, state.Seats["1"].Status)
}

func TestReduce_ProjectionAssistedHydrationRetriesCommand(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	env := newEnv(store)
	// The snapshot is caught up with the stream's only event (version 0).
	added, err := json.Marshal(InventoryAdded{Capacity: 2, UnitPrice: 750})
	require.NoError(t, err)
	_, err = store.Append(ctx, StreamID("evt-1", "GA"), nil, []eventstore.EventRecord{{EventType: EventTypeInventoryAdded, EventSchemaVersion: SchemaVersion, Payload: added}})
	require.NoError(t, err)
	rdc := NewReducer(stubProjections{
		found: true,
		snapshot: Snapshot{
			Version:   0,
			UnitPrice: 750,
			Seats: []SeatSnapshot{
				{ID: "1", Status: SeatAvailable},
				{ID: "2", Status: SeatAvailable},
			},
		},
	})

	state := State{EventID: "evt-1", Section: "GA"}
	result := run(t, ctx, env, rdc, &state, Action{Kind: KindReserveSeats, ReserveSeats: &ReserveSeatsCmd{
		EventID: "evt-1", Section: "GA", Quantity: 1, ReservationID: "res-1",
	}})

	require.Equal(t, KindVersionUpdated, result.Kind)
	assert.True(t, state.Loaded)
	assert.Equal(t, SeatReserved, state.Seats["1"].Status)
}

func TestHydrate_ReplaysSeatEvents(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	env := newEnv(store)
	rdc := NewReducer(stubProjections{})

	var state State
	run(t, ctx, env, rdc, &state, Action{Kind: KindAddInventory, AddInventory: &AddInventoryCmd{EventID: "evt-1", Section: "GA", Capacity: 3, UnitPrice: 500}})
	run(t, ctx, env, rdc, &state, Action{Kind: KindReserveSeats, ReserveSeats: &ReserveSeatsCmd{EventID: "evt-1", Section: "GA", Quantity: 1, ReservationID: "res-1"}})
	run(t, ctx, env, rdc, &state, Action{Kind: KindConfirmSale, ConfirmSale: &ConfirmSaleCmd{EventID: "evt-1", Section: "GA", ReservationID: "res-1"}})

	hydrated, err := Hydrate(ctx, store, "evt-1", "GA")
	require.NoError(t, err)
	assert.Equal(t, SeatSold, hydrated.Seats["1"].Status)
	total, _, sold, available := hydrated.Counters()
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, sold)
	assert.Equal(t, 2, available)
}

func TestSnapshot_Counters(t *testing.T) {
	snapshot := Snapshot{Seats: []SeatSnapshot{
		{ID: "1", Status: SeatReserved},
		{ID: "2", Status: SeatSold},
		{ID: "3", Status: SeatAvailable},
		{ID: "4", Status: SeatAvailable},
	}}

	c := snapshot.Counters()
	assert.Equal(t, 4, c.Total)
	assert.Equal(t, 1, c.Reserved)
	assert.Equal(t, 1, c.Sold)
	assert.Equal(t, 2, c.Available)
}
