// Package payment implements the payment aggregate: capturing a
// reservation's charge through the payment gateway and, on a later
// refund, notifying the reservation saga so it can compensate.
package payment

import (
	"time"

	"github.com/prohmpiriya/ticketcore/internal/eventstore"
)

type Status string

const (
	StatusInitiated Status = "initiated"
	StatusCaptured  Status = "captured"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusInitiated, StatusCaptured, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether the payment can no longer transition.
// Captured is not terminal: it can still move to Refunded.
func (s Status) IsTerminal() bool {
	return s == StatusFailed || s == StatusRefunded
}

// State is the in-memory projection of one payment stream.
type State struct {
	Version       eventstore.Version
	Loaded        bool
	PaymentID     string
	ReservationID string
	Amount        int64
	Method        string
	CorrelationID string
	TransactionID string
	FailureReason string
	RefundReason  string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StreamID returns the event store stream id for a payment.
func StreamID(paymentID string) string { return "payment-" + paymentID }
