package reservation

import "github.com/prohmpiriya/ticketcore/internal/eventstore"

// Action is the reservation saga's sum type: external commands, bus
// signals translated from the inventory/payment topics, and the
// internal step-continuation kinds the append-then-react chain uses
// to gate a reaction on its append actually having succeeded.
type Action struct {
	Kind string

	// External commands
	InitiateReservation *InitiateReservationCmd
	ExpireReservation   *ExpireReservationCmd
	ConfirmPayment      *ConfirmPaymentCmd
	CancelReservation   *CancelReservationCmd

	// Bus signals (translated from inventory/payment topic events)
	InventoryReserved      *InventoryReservedSignal
	InventoryReserveFailed *InventoryReserveFailedSignal
	InventoryReleaseAcked  *InventoryReleaseAckedSignal
	InventorySaleConfirmed *InventorySaleConfirmedSignal
	PaymentFailed          *PaymentFailedSignal

	// Internal step continuations and terminal callbacks
	step             *stepAppended
	ValidationFailed *ValidationFailedEvt
}

const (
	KindInitiateReservation = "InitiateReservation"
	KindExpireReservation   = "ExpireReservation"
	KindConfirmPayment      = "ConfirmPayment"
	KindCancelReservation   = "CancelReservation"

	KindInventoryReserved      = "InventoryReserved"
	KindInventoryReserveFailed = "InventoryReserveFailed"
	KindInventoryReleaseAcked  = "InventoryReleaseAcked"
	KindInventorySaleConfirmed = "InventorySaleConfirmed"
	KindPaymentFailed          = "PaymentFailed"

	KindValidationFailed = "ValidationFailed"

	kindStepAppended = "stepAppended"
	kindPublished    = "published"
)

// stepAppended is the common "append confirmed, now react" signal:
// every command handler that needs to do something only after its
// event durably lands uses this instead of the bare VersionUpdated
// the non-saga aggregates use, since a saga step always has more work
// queued behind the append (design §4.4.1: "on_success ... yields a
// VersionUpdated{version} event ... or saga-specific compensation
// action").
type stepAppended struct {
	Version eventstore.Version
	Next    string
}

const (
	nextAfterInitiated        = "after_initiated"
	nextAfterSeatsReserved    = "after_seats_reserved"
	nextAfterPaymentPending   = "after_payment_pending"
	nextAfterPaymentCompleted = "after_payment_completed"
	nextAfterCompleted        = "after_completed"
	nextAfterPaymentFailedRec = "after_payment_failed"
	nextAfterExpired          = "after_expired"
	nextAfterCancelled        = "after_cancelled"
	nextAfterCompensated      = "after_compensated"
	nextAfterFailed           = "after_failed"
)

type InitiateReservationCmd struct {
	ReservationID string
	CustomerID    string
	EventID       string
	Section       string
	Quantity      int
	SpecificSeats []string
	Amount        int64
	PaymentMethod string
	CorrelationID string
}

type ExpireReservationCmd struct{ ReservationID string }

type ConfirmPaymentCmd struct {
	ReservationID string
	PaymentID     string
}

type CancelReservationCmd struct {
	ReservationID string
	Reason        string
}

type InventoryReservedSignal struct{ SeatIDs []string }
type InventoryReserveFailedSignal struct {
	Requested int
	Available int
	Reason    string
}
type InventoryReleaseAckedSignal struct{}
type InventorySaleConfirmedSignal struct{}
type PaymentFailedSignal struct{ Reason string }

type ValidationFailedEvt struct{ Error string }
