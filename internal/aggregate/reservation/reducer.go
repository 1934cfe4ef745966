package reservation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prohmpiriya/ticketcore/internal/corerr"
	"github.com/prohmpiriya/ticketcore/internal/eventbus"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
	"github.com/prohmpiriya/ticketcore/internal/reducer"
)

// Reduce drives the reservation saga state machine (design §4.4.4).
// Every command handler that has follow-up work gated on its append
// succeeding returns a single AppendEvents effect whose OnSuccess
// produces a stepAppended action carrying a Next marker; the
// corresponding react* function then runs once dispatch recurses into
// it with the append durably confirmed.
func Reduce(state *State, action Action, env *reducer.Environment) []reducer.Effect[Action] {
	switch action.Kind {
	case KindInitiateReservation:
		return handleInitiate(state, action.InitiateReservation)
	case KindExpireReservation:
		return handleExpire(state, action.ExpireReservation)
	case KindConfirmPayment:
		return handleConfirmPayment(state, action.ConfirmPayment)
	case KindCancelReservation:
		return handleCancel(state, action.CancelReservation)
	case KindInventoryReserved:
		return handleInventoryReserved(state, action.InventoryReserved)
	case KindInventoryReserveFailed:
		return handleInventoryReserveFailed(state, action.InventoryReserveFailed)
	case KindInventoryReleaseAcked:
		return handleInventoryReleaseAcked(state)
	case KindInventorySaleConfirmed:
		return handleInventorySaleConfirmed(state)
	case KindPaymentFailed:
		return handlePaymentFailed(state, action.PaymentFailed)
	case kindStepAppended:
		return react(state, action.step)
	case kindPublished:
		return nil
	case KindValidationFailed:
		return nil
	}
	return nil
}

func handleInitiate(state *State, cmd *InitiateReservationCmd) []reducer.Effect[Action] {
	if state.Loaded {
		return failValidation("reservation already initiated")
	}
	state.Loaded = true
	state.ReservationID = cmd.ReservationID
	state.CustomerID = cmd.CustomerID
	state.EventID = cmd.EventID
	state.Section = cmd.Section
	state.Quantity = cmd.Quantity
	state.SpecificSeats = cmd.SpecificSeats
	state.Amount = cmd.Amount
	state.PaymentMethod = cmd.PaymentMethod
	state.CorrelationID = cmd.CorrelationID
	state.Status = StatusInitiated
	state.CreatedAt = time.Now().UTC()
	state.UpdatedAt = state.CreatedAt

	payload := ReservationInitiated{
		CustomerID: cmd.CustomerID, EventID: cmd.EventID, Section: cmd.Section,
		Quantity: cmd.Quantity, SpecificSeats: cmd.SpecificSeats,
		Amount: cmd.Amount, PaymentMethod: cmd.PaymentMethod, CorrelationID: cmd.CorrelationID,
	}
	return appendStep(state, nil, EventTypeReservationInitiated, payload, nextAfterInitiated)
}

func handleInventoryReserved(state *State, sig *InventoryReservedSignal) []reducer.Effect[Action] {
	if state.Status != StatusInitiated {
		return nil // stale or duplicate delivery
	}
	state.Status = StatusSeatsReserved
	state.SeatIDs = sig.SeatIDs
	state.UpdatedAt = time.Now().UTC()

	expected := state.Version
	return appendStep(state, &expected, EventTypeSeatsReserved, SeatsReservedOnReservation{SeatIDs: sig.SeatIDs}, nextAfterSeatsReserved)
}

func handleInventoryReserveFailed(state *State, sig *InventoryReserveFailedSignal) []reducer.Effect[Action] {
	if state.Status != StatusInitiated {
		return nil
	}
	state.Status = StatusFailed
	state.UpdatedAt = time.Now().UTC()

	expected := state.Version
	return appendStep(state, &expected, EventTypeReservationFailed, ReservationFailed{Reason: sig.Reason}, nextAfterFailed)
}

func handleConfirmPayment(state *State, cmd *ConfirmPaymentCmd) []reducer.Effect[Action] {
	if state.Status != StatusPaymentPending {
		return failValidation("payment confirmation received outside payment_pending state")
	}
	state.Status = StatusPaymentCompleted
	state.PaymentID = cmd.PaymentID
	state.UpdatedAt = time.Now().UTC()

	expected := state.Version
	return appendStep(state, &expected, EventTypePaymentCompleted, PaymentCompletedOnReservation{PaymentID: cmd.PaymentID}, nextAfterPaymentCompleted)
}

func handleInventorySaleConfirmed(state *State) []reducer.Effect[Action] {
	if state.Status != StatusPaymentCompleted {
		return nil
	}
	state.Status = StatusCompleted
	state.UpdatedAt = time.Now().UTC()

	expected := state.Version
	return appendStep(state, &expected, EventTypeReservationCompleted, ReservationCompleted{}, nextAfterCompleted)
}

func handlePaymentFailed(state *State, sig *PaymentFailedSignal) []reducer.Effect[Action] {
	if state.Status != StatusPaymentPending {
		return nil
	}
	state.Status = StatusPaymentFailed
	state.UpdatedAt = time.Now().UTC()

	expected := state.Version
	return appendStep(state, &expected, EventTypePaymentFailed, ReservationPaymentFailed{Reason: sig.Reason}, nextAfterPaymentFailedRec)
}

func handleExpire(state *State, cmd *ExpireReservationCmd) []reducer.Effect[Action] {
	switch state.Status {
	case StatusInitiated, StatusSeatsReserved, StatusPaymentPending:
	default:
		return nil // already progressed past the point a timeout can still fire meaningfully
	}
	state.UpdatedAt = time.Now().UTC()
	expected := state.Version

	if len(state.SeatIDs) == 0 {
		// Timed out before inventory ever held seats: nothing to
		// release, go straight to the compensated terminal state.
		state.Status = StatusCompensated
		return appendStep(state, &expected, EventTypeReservationCompensated, ReservationCompensated{}, nextAfterCompensated)
	}

	state.Status = StatusExpired
	return appendStep(state, &expected, EventTypeReservationExpired, ReservationExpired{}, nextAfterExpired)
}

func handleCancel(state *State, cmd *CancelReservationCmd) []reducer.Effect[Action] {
	if state.Status == StatusCompensated || state.Status == StatusFailed || state.Status == StatusCompensating {
		return nil // idempotent: already compensated or compensation already in flight
	}
	state.UpdatedAt = time.Now().UTC()
	expected := state.Version

	if len(state.SeatIDs) == 0 {
		state.Status = StatusCompensated
		return appendStep(state, &expected, EventTypeReservationCompensated, ReservationCompensated{}, nextAfterCompensated)
	}

	state.Status = StatusCompensating
	return appendStep(state, &expected, EventTypeReservationCancelled, ReservationCancelled{Reason: cmd.Reason}, nextAfterCancelled)
}

func handleInventoryReleaseAcked(state *State) []reducer.Effect[Action] {
	if state.Status == StatusCompensated {
		return nil // idempotent: ack for an already-compensated reservation is a no-op
	}
	state.Status = StatusCompensated
	state.UpdatedAt = time.Now().UTC()

	expected := state.Version
	return appendStep(state, &expected, EventTypeReservationCompensated, ReservationCompensated{}, nextAfterCompensated)
}

// react executes the side effects that follow a durably-appended
// step: publishing the next command and, for the initiating step,
// arming the expiry timer.
func react(state *State, step *stepAppended) []reducer.Effect[Action] {
	state.Version = step.Version

	switch step.Next {
	case nextAfterInitiated:
		return []reducer.Effect[Action]{
			publishInventory(state, InventoryActionReserveSeats, ReserveSeatsCommand{
				EventID: state.EventID, Section: state.Section, Quantity: state.Quantity,
				SpecificSeats: state.SpecificSeats, ReservationID: state.ReservationID,
			}),
			reducer.ScheduleTimeout[Action]{
				SagaID:     state.ReservationID,
				Step:       StepReservationExpiry,
				DeadlineAt: time.Now().UTC().Add(ReservationTimeout),
			},
		}

	case nextAfterSeatsReserved:
		// Immediately transitions into initiating payment (design
		// §4.4.4): SeatsReserved durably lands, then PaymentInitiated
		// does too, before the payment command goes out.
		state.Status = StatusPaymentPending
		expected := state.Version
		return appendStep(state, &expected, EventTypePaymentInitiated, PaymentInitiated{}, nextAfterPaymentPending)

	case nextAfterPaymentPending:
		return []reducer.Effect[Action]{
			publishPayment(state, ProcessPaymentCommand{
				ReservationID: state.ReservationID, Amount: state.Amount,
				Method: state.PaymentMethod, CorrelationID: state.CorrelationID,
			}),
		}

	case nextAfterPaymentCompleted:
		return []reducer.Effect[Action]{
			publishInventory(state, InventoryActionConfirmSale, ConfirmSaleCommand{
				EventID: state.EventID, Section: state.Section, ReservationID: state.ReservationID,
			}),
		}

	case nextAfterPaymentFailedRec, nextAfterExpired, nextAfterCancelled:
		return []reducer.Effect[Action]{
			publishInventory(state, InventoryActionReleaseSeats, ReleaseSeatsCommand{
				EventID: state.EventID, Section: state.Section, ReservationID: state.ReservationID,
			}),
		}

	case nextAfterFailed, nextAfterCompleted, nextAfterCompensated:
		return nil
	}
	return nil
}

func publishInventory(state *State, actionType string, payload interface{}) reducer.Effect[Action] {
	return publishTo(TopicInventory, state.CorrelationID, actionType, payload)
}

func publishPayment(state *State, payload interface{}) reducer.Effect[Action] {
	return publishTo(TopicPayments, state.CorrelationID, PaymentActionProcessPayment, payload)
}

func publishTo(topic, correlationID, actionType string, payload interface{}) reducer.Effect[Action] {
	body, err := json.Marshal(payload)
	if err != nil {
		return reducer.Future[Action]{Run: func() (Action, bool, error) {
			return Action{Kind: KindValidationFailed, ValidationFailed: &ValidationFailedEvt{Error: err.Error()}}, true, nil
		}}
	}
	return reducer.PublishEvent[Action]{
		Topic: topic,
		Event: eventbus.SerializedEvent{
			EventType:          actionType,
			EventSchemaVersion: SchemaVersion,
			Payload:            body,
			Metadata:           eventstore.Metadata{CorrelationID: correlationID},
		},
		// A bare kindPublished rather than kindStepAppended: react sets
		// state.Version from step.Version, and a publish carries no
		// version of its own, so routing this through react would reset
		// state.Version to zero.
		OnSuccess: func() Action { return Action{Kind: kindPublished} },
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
			Stream:          StreamID(state.ReservationID),
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

// Hydrate rebuilds State by replaying a reservation's full stream.
func Hydrate(ctx context.Context, store eventstore.Store, reservationID string) (State, error) {
	events, err := store.Load(ctx, StreamID(reservationID), nil)
	if err != nil {
		return State{}, corerr.Wrap(corerr.KindStorage, "hydrate reservation aggregate", err)
	}

	state := State{ReservationID: reservationID}
	for _, ev := range events {
		applyStored(&state, ev)
	}
	return state, nil
}

func applyStored(state *State, ev eventstore.EventRecord) {
	state.Version = ev.Version
	switch ev.EventType {
	case EventTypeReservationInitiated:
		var payload ReservationInitiated
		_ = json.Unmarshal(ev.Payload, &payload)
		state.Loaded = true
		state.CustomerID = payload.CustomerID
		state.EventID = payload.EventID
		state.Section = payload.Section
		state.Quantity = payload.Quantity
		state.SpecificSeats = payload.SpecificSeats
		state.Amount = payload.Amount
		state.PaymentMethod = payload.PaymentMethod
		state.CorrelationID = payload.CorrelationID
		state.Status = StatusInitiated
	case EventTypeSeatsReserved:
		var payload SeatsReservedOnReservation
		_ = json.Unmarshal(ev.Payload, &payload)
		state.SeatIDs = payload.SeatIDs
		state.Status = StatusSeatsReserved
	case EventTypePaymentInitiated:
		state.Status = StatusPaymentPending
	case EventTypePaymentCompleted:
		var payload PaymentCompletedOnReservation
		_ = json.Unmarshal(ev.Payload, &payload)
		state.PaymentID = payload.PaymentID
		state.Status = StatusPaymentCompleted
	case EventTypeReservationCompleted:
		state.Status = StatusCompleted
	case EventTypePaymentFailed:
		state.Status = StatusPaymentFailed
	case EventTypeReservationExpired:
		state.Status = StatusExpired
	case EventTypeReservationCancelled:
		state.Status = StatusCompensating
	case EventTypeReservationCompensated:
		state.Status = StatusCompensated
	case EventTypeReservationFailed:
		state.Status = StatusFailed
	}
}
