package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prohmpiriya/ticketcore/internal/aggregate/reservation"
	"github.com/prohmpiriya/ticketcore/internal/eventbus"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
)

// Translate turns a command delivered on reservation.TopicInventory
// into the Action to dispatch against this aggregate's Store. It is
// the EventHandler translate callback consumer.NewAggregateReactor
// wants; ok is false for any event type this aggregate doesn't react
// to, so a shared topic with unrelated traffic is safe to subscribe to
// as-is.
func Translate(event eventbus.SerializedEvent) (Action, bool, error) {
	switch event.EventType {
	case reservation.InventoryActionReserveSeats:
		var cmd reservation.ReserveSeatsCommand
		if err := json.Unmarshal(event.Payload, &cmd); err != nil {
			return Action{}, false, fmt.Errorf("decode ReserveSeatsCommand: %w", err)
		}
		return Action{Kind: KindReserveSeats, ReserveSeats: &ReserveSeatsCmd{
			EventID: cmd.EventID, Section: cmd.Section, Quantity: cmd.Quantity,
			SpecificSeats: cmd.SpecificSeats, ReservationID: cmd.ReservationID,
			CorrelationID: event.Metadata.CorrelationID,
		}}, true, nil

	case reservation.InventoryActionReleaseSeats:
		var cmd reservation.ReleaseSeatsCommand
		if err := json.Unmarshal(event.Payload, &cmd); err != nil {
			return Action{}, false, fmt.Errorf("decode ReleaseSeatsCommand: %w", err)
		}
		return Action{Kind: KindReleaseSeats, ReleaseSeats: &ReleaseSeatsCmd{
			EventID: cmd.EventID, Section: cmd.Section, ReservationID: cmd.ReservationID,
		}}, true, nil

	case reservation.InventoryActionConfirmSale:
		var cmd reservation.ConfirmSaleCommand
		if err := json.Unmarshal(event.Payload, &cmd); err != nil {
			return Action{}, false, fmt.Errorf("decode ConfirmSaleCommand: %w", err)
		}
		return Action{Kind: KindConfirmSale, ConfirmSale: &ConfirmSaleCmd{
			EventID: cmd.EventID, Section: cmd.Section, ReservationID: cmd.ReservationID,
		}}, true, nil
	}
	return Action{}, false, nil
}

// streamKey extracts the (event_id, section) pair a command addresses,
// shared by every command shape above.
func streamKey(event eventbus.SerializedEvent) (eventID, section string, err error) {
	var keyed struct {
		EventID string `json:"event_id"`
		Section string `json:"section"`
	}
	if err := json.Unmarshal(event.Payload, &keyed); err != nil {
		return "", "", fmt.Errorf("decode stream key: %w", err)
	}
	return keyed.EventID, keyed.Section, nil
}

// NewHydrate returns a hydrate callback for consumer.NewAggregateReactor,
// preferring the projection-assisted shortcut over a full replay the
// same way Hydrate's own callers do.
func NewHydrate(store eventstore.Store, projections ProjectionQuerier) func(ctx context.Context, event eventbus.SerializedEvent) (State, error) {
	return func(ctx context.Context, event eventbus.SerializedEvent) (State, error) {
		eventID, section, err := streamKey(event)
		if err != nil {
			return State{}, err
		}

		if projections != nil {
			if snapshot, found, err := projections.AvailableSeats(ctx, eventID, section); err == nil && found {
				state := State{EventID: eventID, Section: section}
				applySnapshot(&state, snapshot, found)
				return state, nil
			}
		}
		return Hydrate(ctx, store, eventID, section)
	}
}
