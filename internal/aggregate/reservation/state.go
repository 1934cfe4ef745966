// Package reservation implements the reservation saga coordinator:
// the state machine that drives seat inventory and payment through a
// reserve -> pay -> confirm (or compensate) workflow purely by
// publishing commands on the event bus and reacting to their answers.
package reservation

import (
	"time"

	"github.com/prohmpiriya/ticketcore/internal/eventstore"
)

type Status string

const (
	StatusInitiated        Status = "initiated"
	StatusSeatsReserved    Status = "seats_reserved"
	StatusPaymentPending   Status = "payment_pending"
	StatusPaymentCompleted Status = "payment_completed"
	StatusPaymentFailed    Status = "payment_failed"
	StatusExpired          Status = "expired"
	StatusCompensating     Status = "compensating"
	StatusCompensated      Status = "compensated"
	StatusFailed           Status = "failed"
	StatusCompleted        Status = "completed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusInitiated, StatusSeatsReserved, StatusPaymentPending, StatusPaymentCompleted,
		StatusPaymentFailed, StatusExpired, StatusCompensating, StatusCompensated, StatusFailed, StatusCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether the saga has reached a state from which
// no further progress is made. Completed deliberately stays mutable
// to CancelReservation — an admin refund after completion must still
// be able to drive compensation (design §4.4.4 Scenario E) — so it is
// excluded here and handled as a special case in the reducer.
func (s Status) IsTerminal() bool {
	return s == StatusCompensated || s == StatusFailed
}

// State is the in-memory projection of one reservation stream.
type State struct {
	Version       eventstore.Version
	Loaded        bool
	ReservationID string
	CustomerID    string
	EventID       string
	Section       string
	Quantity      int
	SpecificSeats []string
	SeatIDs       []string
	Amount        int64
	PaymentMethod string
	CorrelationID string
	PaymentID     string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StreamID returns the event store stream id for a reservation.
func StreamID(reservationID string) string { return "reservation-" + reservationID }

// ReservationTimeout is the saga's expiry window (design §6 table:
// "Saga timeout (5 min)").
const ReservationTimeout = 5 * time.Minute

// StepReservationExpiry names the saga.Timeout step armed when a
// reservation is initiated. Nothing cancels it when the saga finishes
// early: a saga.Scheduler polling a shared TimeoutStore dispatches
// ExpireReservation once DeadlineAt passes, and the reducer ignores it
// for a reservation that has already moved past the guarded step.
const StepReservationExpiry = "reservation_timeout"
