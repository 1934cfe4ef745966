package payment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prohmpiriya/ticketcore/internal/aggregate/payment/gateway"
	"github.com/prohmpiriya/ticketcore/internal/corerr"
	"github.com/prohmpiriya/ticketcore/internal/eventbus"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
	"github.com/prohmpiriya/ticketcore/internal/reducer"
)

// NewReducer binds the payment reducer to a gateway implementation.
// The charge itself runs inside a Future effect's closure, following
// the same synchronous-under-the-dispatch-lock pattern the inventory
// aggregate uses for its projection read — see design notes on
// internal/aggregate/inventory for why that's safe here too.
func NewReducer(gw gateway.PaymentGateway) reducer.Reducer[State, Action] {
	return func(state *State, action Action, env *reducer.Environment) []reducer.Effect[Action] {
		switch action.Kind {
		case KindProcessPayment:
			return handleProcessPayment(state, action.ProcessPayment)
		case KindRefundPayment:
			return handleRefundPayment(state, action.RefundPayment)
		case KindGatewayCaptured:
			return handleGatewayCaptured(state, action.GatewayCaptured)
		case KindGatewayFailed:
			return handleGatewayFailed(state, action.GatewayFailed)
		case kindStepAppended:
			return react(state, action.step, gw)
		case KindValidationFailed:
			return nil
		}
		return nil
	}
}

func handleProcessPayment(state *State, cmd *ProcessPaymentCmd) []reducer.Effect[Action] {
	if state.Loaded {
		return failValidation("payment already initiated")
	}
	state.Loaded = true
	state.PaymentID = cmd.PaymentID
	state.ReservationID = cmd.ReservationID
	state.Amount = cmd.Amount
	state.Method = cmd.Method
	state.CorrelationID = cmd.CorrelationID
	state.Status = StatusInitiated
	state.CreatedAt = time.Now().UTC()
	state.UpdatedAt = state.CreatedAt

	payload := PaymentInitiated{
		ReservationID: cmd.ReservationID, Amount: cmd.Amount, Method: cmd.Method, CorrelationID: cmd.CorrelationID,
	}
	return appendStep(state, nil, EventTypePaymentInitiated, payload, nextAfterInitiated)
}

func handleGatewayCaptured(state *State, sig *GatewayCapturedSignal) []reducer.Effect[Action] {
	if state.Status != StatusInitiated {
		return nil
	}
	state.Status = StatusCaptured
	state.TransactionID = sig.TransactionID
	state.UpdatedAt = time.Now().UTC()

	expected := state.Version
	return appendStep(state, &expected, EventTypePaymentCaptured, PaymentCaptured{TransactionID: sig.TransactionID}, nextAfterCaptured)
}

func handleGatewayFailed(state *State, sig *GatewayFailedSignal) []reducer.Effect[Action] {
	if state.Status != StatusInitiated {
		return nil
	}
	state.Status = StatusFailed
	state.FailureReason = sig.Reason
	state.UpdatedAt = time.Now().UTC()

	expected := state.Version
	return appendStep(state, &expected, EventTypePaymentFailed, PaymentFailed{Reason: sig.Reason}, nextAfterFailed)
}

func handleRefundPayment(state *State, cmd *RefundPaymentCmd) []reducer.Effect[Action] {
	if state.Status != StatusCaptured {
		return failValidation("refund is only valid for a captured payment")
	}
	state.Status = StatusRefunded
	state.RefundReason = cmd.Reason
	state.UpdatedAt = time.Now().UTC()

	expected := state.Version
	return appendStep(state, &expected, EventTypePaymentRefunded, PaymentRefunded{Reason: cmd.Reason}, nextAfterRefunded)
}

// react performs the side effect that follows a durably-appended step.
func react(state *State, step *stepAppended, gw gateway.PaymentGateway) []reducer.Effect[Action] {
	// A publish completion carries no Next and no version; only an
	// append step advances state.Version.
	if step.Next == "" {
		return nil
	}
	state.Version = step.Version

	switch step.Next {
	case nextAfterInitiated:
		return []reducer.Effect[Action]{captureEffect(state, gw)}

	case nextAfterCaptured:
		return []reducer.Effect[Action]{publishReservation(state, ReservationActionConfirmPayment, ConfirmPaymentCommand{
			ReservationID: state.ReservationID, PaymentID: state.PaymentID,
		})}

	case nextAfterFailed:
		return []reducer.Effect[Action]{publishReservation(state, ReservationActionPaymentFailed, PaymentFailedCommand{
			ReservationID: state.ReservationID, Reason: state.FailureReason,
		})}

	case nextAfterRefunded:
		return []reducer.Effect[Action]{publishReservation(state, ReservationActionCancelReservation, CancelReservationCommand{
			ReservationID: state.ReservationID, Reason: "refunded",
		})}
	}
	return nil
}

// captureEffect calls the gateway synchronously inside the Future's
// closure. A gateway error (including a tripped circuit breaker) is
// domain GatewayFailed, not a reducer-level error.
func captureEffect(state *State, gw gateway.PaymentGateway) reducer.Effect[Action] {
	req := gateway.ChargeRequest{
		PaymentID: state.PaymentID, Amount: state.Amount, Method: state.Method, CorrelationID: state.CorrelationID,
	}
	return reducer.Future[Action]{Run: func() (Action, bool, error) {
		result, err := gw.Capture(context.Background(), req)
		if err != nil {
			return Action{Kind: KindGatewayFailed, GatewayFailed: &GatewayFailedSignal{Reason: err.Error()}}, true, nil
		}
		return Action{Kind: KindGatewayCaptured, GatewayCaptured: &GatewayCapturedSignal{TransactionID: result.TransactionID}}, true, nil
	}}
}

func publishReservation(state *State, actionType string, payload interface{}) reducer.Effect[Action] {
	body, err := json.Marshal(payload)
	if err != nil {
		return reducer.Future[Action]{Run: func() (Action, bool, error) {
			return Action{Kind: KindValidationFailed, ValidationFailed: &ValidationFailedEvt{Error: err.Error()}}, true, nil
		}}
	}
	return reducer.PublishEvent[Action]{
		Topic: TopicReservations,
		Event: eventbus.SerializedEvent{
			EventType:          actionType,
			EventSchemaVersion: SchemaVersion,
			Payload:            body,
			Metadata:           eventstore.Metadata{CorrelationID: state.CorrelationID},
		},
		OnSuccess: func() Action { return Action{Kind: kindStepAppended, step: &stepAppended{}} },
		OnError: func(err error) Action {
			return Action{Kind: KindValidationFailed, ValidationFailed: &ValidationFailedEvt{Error: err.Error()}}
		},
	}
}

func appendStep(state *State, expected *eventstore.Version, eventType string, payload interface{}, next string) []reducer.Effect[Action] {
	body, err := json.Marshal(payload)
	if err != nil {
		return failValidation(err.Error())
	}
	return []reducer.Effect[Action]{
		reducer.AppendEvents[Action]{
			Stream:          StreamID(state.PaymentID),
			ExpectedVersion: expected,
			Events: []eventstore.EventRecord{{
				EventType:          eventType,
				EventSchemaVersion: SchemaVersion,
				Payload:            body,
			}},
			OnSuccess: func(v eventstore.Version) Action {
				return Action{Kind: kindStepAppended, step: &stepAppended{Version: v, Next: next}}
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

// Hydrate rebuilds State by replaying a payment's full stream.
func Hydrate(ctx context.Context, store eventstore.Store, paymentID string) (State, error) {
	events, err := store.Load(ctx, StreamID(paymentID), nil)
	if err != nil {
		return State{}, corerr.Wrap(corerr.KindStorage, "hydrate payment aggregate", err)
	}

	state := State{PaymentID: paymentID}
	for _, ev := range events {
		applyStored(&state, ev)
	}
	return state, nil
}

func applyStored(state *State, ev eventstore.EventRecord) {
	state.Version = ev.Version
	switch ev.EventType {
	case EventTypePaymentInitiated:
		var payload PaymentInitiated
		_ = json.Unmarshal(ev.Payload, &payload)
		state.Loaded = true
		state.ReservationID = payload.ReservationID
		state.Amount = payload.Amount
		state.Method = payload.Method
		state.CorrelationID = payload.CorrelationID
		state.Status = StatusInitiated
	case EventTypePaymentCaptured:
		var payload PaymentCaptured
		_ = json.Unmarshal(ev.Payload, &payload)
		state.TransactionID = payload.TransactionID
		state.Status = StatusCaptured
	case EventTypePaymentFailed:
		var payload PaymentFailed
		_ = json.Unmarshal(ev.Payload, &payload)
		state.FailureReason = payload.Reason
		state.Status = StatusFailed
	case EventTypePaymentRefunded:
		var payload PaymentRefunded
		_ = json.Unmarshal(ev.Payload, &payload)
		state.RefundReason = payload.Reason
		state.Status = StatusRefunded
	}
}
