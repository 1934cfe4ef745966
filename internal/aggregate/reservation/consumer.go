package reservation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prohmpiriya/ticketcore/internal/aggregate/inventory"
	"github.com/prohmpiriya/ticketcore/internal/eventbus"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
)

// Translate turns a command or domain event the reservation reactor is
// subscribed to -- payment's commands on TopicReservations and the
// relayed inventory domain events on TopicEvents -- into the Action to
// dispatch. Event types are unambiguous strings across aggregates, so
// this switches on EventType alone regardless of which topic the
// message arrived on. It cannot import the payment package for its
// command types since payment imports this package for the topic
// constants, so the wire shapes for both directions live here instead.
func Translate(event eventbus.SerializedEvent) (Action, bool, error) {
	switch event.EventType {
	case ReservationActionConfirmPayment:
		var cmd ConfirmPaymentCommand
		if err := json.Unmarshal(event.Payload, &cmd); err != nil {
			return Action{}, false, fmt.Errorf("decode ConfirmPaymentCommand: %w", err)
		}
		return Action{Kind: KindConfirmPayment, ConfirmPayment: &ConfirmPaymentCmd{
			ReservationID: cmd.ReservationID, PaymentID: cmd.PaymentID,
		}}, true, nil

	case ReservationActionPaymentFailed:
		var cmd PaymentFailedCommand
		if err := json.Unmarshal(event.Payload, &cmd); err != nil {
			return Action{}, false, fmt.Errorf("decode PaymentFailedCommand: %w", err)
		}
		return Action{Kind: KindPaymentFailed, PaymentFailed: &PaymentFailedSignal{Reason: cmd.Reason}}, true, nil

	case ReservationActionCancelReservation:
		var cmd CancelReservationCommand
		if err := json.Unmarshal(event.Payload, &cmd); err != nil {
			return Action{}, false, fmt.Errorf("decode CancelReservationCommand: %w", err)
		}
		return Action{Kind: KindCancelReservation, CancelReservation: &CancelReservationCmd{
			ReservationID: cmd.ReservationID, Reason: cmd.Reason,
		}}, true, nil

	case inventory.EventTypeSeatsReserved:
		var payload inventory.SeatsReservedPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return Action{}, false, fmt.Errorf("decode SeatsReserved: %w", err)
		}
		return Action{Kind: KindInventoryReserved, InventoryReserved: &InventoryReservedSignal{SeatIDs: payload.SeatIDs}}, true, nil

	case inventory.EventTypeSeatsReleased:
		var payload inventory.SeatsReleasedPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return Action{}, false, fmt.Errorf("decode SeatsReleased: %w", err)
		}
		if payload.ReservationID == "" {
			return Action{}, false, nil
		}
		return Action{Kind: KindInventoryReleaseAcked, InventoryReleaseAcked: &InventoryReleaseAckedSignal{}}, true, nil

	case inventory.EventTypeSeatsSold:
		var payload inventory.SeatsSoldPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return Action{}, false, fmt.Errorf("decode SeatsSold: %w", err)
		}
		return Action{Kind: KindInventorySaleConfirmed, InventorySaleConfirmed: &InventorySaleConfirmedSignal{}}, true, nil

	case inventory.EventTypeInsufficientInventory:
		var payload inventory.InsufficientInventoryPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return Action{}, false, fmt.Errorf("decode InsufficientInventory: %w", err)
		}
		return Action{Kind: KindInventoryReserveFailed, InventoryReserveFailed: &InventoryReserveFailedSignal{
			Requested: payload.Requested, Available: payload.Available, Reason: "insufficient_inventory",
		}}, true, nil
	}
	return Action{}, false, nil
}

// reservationID extracts the id every translatable message above
// carries, so the reactor knows which reservation stream to hydrate
// before Reduce runs.
func reservationID(event eventbus.SerializedEvent) (string, error) {
	var keyed struct {
		ReservationID string `json:"reservation_id"`
	}
	if err := json.Unmarshal(event.Payload, &keyed); err != nil {
		return "", fmt.Errorf("decode reservation id: %w", err)
	}
	return keyed.ReservationID, nil
}

// NewHydrate returns the hydrate callback for consumer.NewAggregateReactor.
func NewHydrate(store eventstore.Store) func(ctx context.Context, event eventbus.SerializedEvent) (State, error) {
	return func(ctx context.Context, event eventbus.SerializedEvent) (State, error) {
		id, err := reservationID(event)
		if err != nil {
			return State{}, err
		}
		return Hydrate(ctx, store, id)
	}
}
