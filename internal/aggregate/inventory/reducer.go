package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prohmpiriya/ticketcore/internal/corerr"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
	"github.com/prohmpiriya/ticketcore/internal/reducer"
)

// NewReducer builds the inventory reducer bound to a projection
// reader. A fresh State still has Loaded == false; any command other
// than AddInventory against an unloaded state triggers the
// projection-assisted hydration shortcut before the command is
// re-evaluated.
func NewReducer(projections ProjectionQuerier) reducer.Reducer[State, Action] {
	return func(state *State, action Action, env *reducer.Environment) []reducer.Effect[Action] {
		switch action.Kind {
		case KindAddInventory:
			return handleAddInventory(state, action.AddInventory)
		case KindReserveSeats:
			if !state.Loaded {
				return hydrateThenRetry(state, projections, action)
			}
			return handleReserveSeats(state, action.ReserveSeats)
		case KindReleaseSeats:
			if !state.Loaded {
				return hydrateThenRetry(state, projections, action)
			}
			return handleReleaseSeats(state, action.ReleaseSeats)
		case KindConfirmSale:
			if !state.Loaded {
				return hydrateThenRetry(state, projections, action)
			}
			return handleConfirmSale(state, action.ConfirmSale)
		case KindVersionUpdated:
			state.Version = action.VersionUpdated.Version
			return nil
		case KindValidationFailed:
			return nil
		case KindInsufficientInventory:
			return handleInsufficientInventory(state, action.InsufficientInventory)
		}
		return nil
	}
}

func handleAddInventory(state *State, cmd *AddInventoryCmd) []reducer.Effect[Action] {
	if state.Loaded && len(state.SeatOrder) > 0 {
		return failValidation("inventory already initialized for this section")
	}
	if cmd.Capacity <= 0 {
		return failValidation("capacity must be positive")
	}

	state.Loaded = true
	state.EventID = cmd.EventID
	state.Section = cmd.Section
	state.UnitPrice = cmd.UnitPrice
	state.Seats = make(map[string]*Seat, cmd.Capacity)
	state.SeatOrder = make([]string, 0, cmd.Capacity)
	for i := 1; i <= cmd.Capacity; i++ {
		id := fmt.Sprintf("%d", i)
		state.Seats[id] = &Seat{ID: id, Status: SeatAvailable}
		state.SeatOrder = append(state.SeatOrder, id)
	}

	return appendEffect(state, nil, EventTypeInventoryAdded, InventoryAdded{Capacity: cmd.Capacity, UnitPrice: cmd.UnitPrice})
}

func handleReserveSeats(state *State, cmd *ReserveSeatsCmd) []reducer.Effect[Action] {
	seats, available, err := selectSeats(state, cmd.Quantity, cmd.SpecificSeats)
	if err != nil {
		_, _, _, avail := state.Counters()
		return []reducer.Effect[Action]{reducer.Future[Action]{Run: func() (Action, bool, error) {
			return Action{Kind: KindInsufficientInventory, InsufficientInventory: &InsufficientInventoryEvt{
				ReservationID: cmd.ReservationID,
				Requested:     cmd.Quantity,
				Available:     avail,
			}}, true, nil
		}}}
	}
	_ = available

	expected := state.Version
	for _, id := range seats {
		state.Seats[id].Status = SeatReserved
		state.Seats[id].ReservationID = cmd.ReservationID
	}
	return appendEffect(state, &expected, EventTypeSeatsReserved, SeatsReservedPayload{ReservationID: cmd.ReservationID, SeatIDs: seats})
}

// handleInsufficientInventory records a failed reservation attempt as
// a real event on the inventory stream, rather than dropping it, so
// the relay republishes it and reservation.Translate can fail the
// saga instead of letting it sit until the timeout fires.
func handleInsufficientInventory(state *State, evt *InsufficientInventoryEvt) []reducer.Effect[Action] {
	var expected *eventstore.Version
	if len(state.SeatOrder) > 0 {
		v := state.Version
		expected = &v
	}
	return appendEffect(state, expected, EventTypeInsufficientInventory, InsufficientInventoryPayload{
		ReservationID: evt.ReservationID,
		Requested:     evt.Requested,
		Available:     evt.Available,
	})
}

func handleReleaseSeats(state *State, cmd *ReleaseSeatsCmd) []reducer.Effect[Action] {
	// Matches both Reserved (saga compensation before sale) and Sold
	// (post-sale refund) seats, since a refund arrives after the
	// ConfirmSale that already flipped them to Sold.
	held := seatsHeldBy(state, cmd.ReservationID, SeatReserved, SeatSold)
	if len(held) == 0 {
		// Already released or never reserved: idempotent no-op, still
		// acknowledged so the calling saga can proceed.
		var expected *eventstore.Version
		if len(state.SeatOrder) > 0 {
			v := state.Version
			expected = &v
		}
		return appendEffect(state, expected, EventTypeSeatsReleased, SeatsReleasedPayload{ReservationID: cmd.ReservationID, SeatIDs: nil})
	}

	expected := state.Version
	for _, id := range held {
		state.Seats[id].Status = SeatAvailable
		state.Seats[id].ReservationID = ""
	}
	return appendEffect(state, &expected, EventTypeSeatsReleased, SeatsReleasedPayload{ReservationID: cmd.ReservationID, SeatIDs: held})
}

func handleConfirmSale(state *State, cmd *ConfirmSaleCmd) []reducer.Effect[Action] {
	held := seatsHeldBy(state, cmd.ReservationID, SeatReserved)
	if len(held) == 0 {
		return failValidation(fmt.Sprintf("no reserved seats found for reservation %s", cmd.ReservationID))
	}

	expected := state.Version
	for _, id := range held {
		state.Seats[id].Status = SeatSold
	}
	return appendEffect(state, &expected, EventTypeSeatsSold, SeatsSoldPayload{ReservationID: cmd.ReservationID, SeatIDs: held})
}

// selectSeats implements the deterministic selection rule: specific
// seats if supplied and all available, otherwise the first quantity
// available seats in ascending seat id order. Both branches fail the
// same way if fewer than quantity seats can be satisfied.
func selectSeats(state *State, quantity int, specific []string) ([]string, int, error) {
	if len(specific) > 0 {
		for _, id := range specific {
			seat, ok := state.Seats[id]
			if !ok || seat.Status != SeatAvailable {
				return nil, 0, corerr.New(corerr.KindValidation, "requested seat is not available")
			}
		}
		return specific, len(specific), nil
	}

	selected := make([]string, 0, quantity)
	for _, id := range state.SeatOrder {
		if state.Seats[id].Status == SeatAvailable {
			selected = append(selected, id)
			if len(selected) == quantity {
				return selected, len(selected), nil
			}
		}
	}
	return nil, len(selected), corerr.New(corerr.KindValidation, "insufficient inventory")
}

func seatsHeldBy(state *State, reservationID string, statuses ...SeatStatus) []string {
	var held []string
	for _, id := range state.SeatOrder {
		seat := state.Seats[id]
		if seat.ReservationID != reservationID {
			continue
		}
		for _, status := range statuses {
			if seat.Status == status {
				held = append(held, id)
				break
			}
		}
	}
	return held
}

func appendEffect(state *State, expected *eventstore.Version, eventType string, payload interface{}) []reducer.Effect[Action] {
	body, err := json.Marshal(payload)
	if err != nil {
		return failValidation(err.Error())
	}
	return []reducer.Effect[Action]{
		reducer.AppendEvents[Action]{
			Stream:          StreamID(state.EventID, state.Section),
			ExpectedVersion: expected,
			Events: []eventstore.EventRecord{{
				EventType:          eventType,
				EventSchemaVersion: SchemaVersion,
				Payload:            body,
			}},
			OnSuccess: func(v eventstore.Version) Action {
				return Action{Kind: KindVersionUpdated, VersionUpdated: &VersionUpdatedEvt{Version: v}}
			},
			OnError: func(err error) Action {
				return Action{Kind: KindValidationFailed, ValidationFailed: &ValidationFailedEvt{Error: err.Error()}}
			},
		},
	}
}

func failValidation(msg string) []reducer.Effect[Action] {
	return []reducer.Effect[Action]{
		reducer.Future[Action]{Run: func() (Action, bool, error) {
			return Action{Kind: KindValidationFailed, ValidationFailed: &ValidationFailedEvt{Error: msg}}, true, nil
		}},
	}
}

// hydrateThenRetry implements the two-step projection-assisted
// hydration shortcut described in the design: load the projection
// snapshot and apply it to state directly (the first Future closes
// over state and runs while the Store's dispatch lock is held, so
// this mutation is safe), producing no action so Sequential continues
// to the second step, which replays the original command now that
// state is loaded.
func hydrateThenRetry(state *State, projections ProjectionQuerier, pending Action) []reducer.Effect[Action] {
	eventID, section := state.EventID, state.Section
	return []reducer.Effect[Action]{
		reducer.Sequential[Action]{Effects: []reducer.Effect[Action]{
			reducer.Future[Action]{Run: func() (Action, bool, error) {
				snapshot, found, err := projections.AvailableSeats(context.Background(), eventID, section)
				if err != nil {
					return Action{}, false, corerr.Wrap(corerr.KindStorage, "load available_seats projection", err)
				}
				applySnapshot(state, snapshot, found)
				return Action{}, false, nil
			}},
			reducer.Future[Action]{Run: func() (Action, bool, error) {
				return pending, true, nil
			}},
		}},
	}
}

func applySnapshot(state *State, snapshot Snapshot, found bool) {
	state.Loaded = true
	if !found {
		state.Seats = map[string]*Seat{}
		state.SeatOrder = nil
		return
	}
	state.Version = snapshot.Version
	state.UnitPrice = snapshot.UnitPrice
	state.Seats = make(map[string]*Seat, len(snapshot.Seats))
	state.SeatOrder = make([]string, 0, len(snapshot.Seats))
	for _, s := range snapshot.Seats {
		state.Seats[s.ID] = &Seat{ID: s.ID, Status: s.Status, ReservationID: s.ReservationID}
		state.SeatOrder = append(state.SeatOrder, s.ID)
	}
}

// Hydrate rebuilds State from the full event stream, the fallback
// path when no projection snapshot is available (e.g. during a
// projection rebuild).
func Hydrate(ctx context.Context, store eventstore.Store, eventID, section string) (State, error) {
	events, err := store.Load(ctx, StreamID(eventID, section), nil)
	if err != nil {
		return State{}, corerr.Wrap(corerr.KindStorage, "hydrate inventory aggregate", err)
	}

	state := State{EventID: eventID, Section: section}
	for _, ev := range events {
		applyStored(&state, ev)
	}
	return state, nil
}

func applyStored(state *State, ev eventstore.EventRecord) {
	state.Version = ev.Version
	switch ev.EventType {
	case EventTypeInventoryAdded:
		var payload InventoryAdded
		_ = json.Unmarshal(ev.Payload, &payload)
		state.Loaded = true
		state.UnitPrice = payload.UnitPrice
		state.Seats = make(map[string]*Seat, payload.Capacity)
		state.SeatOrder = make([]string, 0, payload.Capacity)
		for i := 1; i <= payload.Capacity; i++ {
			id := fmt.Sprintf("%d", i)
			state.Seats[id] = &Seat{ID: id, Status: SeatAvailable}
			state.SeatOrder = append(state.SeatOrder, id)
		}
	case EventTypeSeatsReserved:
		var payload SeatsReservedPayload
		_ = json.Unmarshal(ev.Payload, &payload)
		for _, id := range payload.SeatIDs {
			if seat, ok := state.Seats[id]; ok {
				seat.Status = SeatReserved
				seat.ReservationID = payload.ReservationID
			}
		}
	case EventTypeSeatsReleased:
		var payload SeatsReleasedPayload
		_ = json.Unmarshal(ev.Payload, &payload)
		for _, id := range payload.SeatIDs {
			if seat, ok := state.Seats[id]; ok {
				seat.Status = SeatAvailable
				seat.ReservationID = ""
			}
		}
	case EventTypeSeatsSold:
		var payload SeatsSoldPayload
		_ = json.Unmarshal(ev.Payload, &payload)
		for _, id := range payload.SeatIDs {
			if seat, ok := state.Seats[id]; ok {
				seat.Status = SeatSold
			}
		}
	}
}
