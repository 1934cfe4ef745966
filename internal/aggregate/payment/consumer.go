package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prohmpiriya/ticketcore/internal/aggregate/reservation"
	"github.com/prohmpiriya/ticketcore/internal/eventbus"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
)

// Translate turns a command delivered on reservation.TopicPayments
// into the Action to dispatch. A reservation only ever pays once, so
// the payment aggregate reuses the reservation id as its own payment
// id rather than minting a separate one -- StreamID("r-1") addresses
// the same payment every time the saga retries ProcessPayment.
func Translate(event eventbus.SerializedEvent) (Action, bool, error) {
	switch event.EventType {
	case reservation.PaymentActionProcessPayment:
		var cmd reservation.ProcessPaymentCommand
		if err := json.Unmarshal(event.Payload, &cmd); err != nil {
			return Action{}, false, fmt.Errorf("decode ProcessPaymentCommand: %w", err)
		}
		return Action{Kind: KindProcessPayment, ProcessPayment: &ProcessPaymentCmd{
			PaymentID:     cmd.ReservationID,
			ReservationID: cmd.ReservationID,
			Amount:        cmd.Amount,
			Method:        cmd.Method,
			CorrelationID: cmd.CorrelationID,
		}}, true, nil
	}
	return Action{}, false, nil
}

// paymentID extracts the id every translatable command above carries
// (the reservation id, doubling as the payment id).
func paymentID(event eventbus.SerializedEvent) (string, error) {
	var keyed struct {
		ReservationID string `json:"reservation_id"`
	}
	if err := json.Unmarshal(event.Payload, &keyed); err != nil {
		return "", fmt.Errorf("decode payment id: %w", err)
	}
	return keyed.ReservationID, nil
}

// NewHydrate returns the hydrate callback for consumer.NewAggregateReactor.
func NewHydrate(store eventstore.Store) func(ctx context.Context, event eventbus.SerializedEvent) (State, error) {
	return func(ctx context.Context, event eventbus.SerializedEvent) (State, error) {
		id, err := paymentID(event)
		if err != nil {
			return State{}, err
		}
		return Hydrate(ctx, store, id)
	}
}
