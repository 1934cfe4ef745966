package inventory

import "github.com/prohmpiriya/ticketcore/internal/eventstore"

// Action is the inventory aggregate's command/event/internal sum
// type, one populated field group per Kind.
type Action struct {
	Kind string

	// Commands
	AddInventory *AddInventoryCmd
	ReserveSeats *ReserveSeatsCmd
	ReleaseSeats *ReleaseSeatsCmd
	ConfirmSale  *ConfirmSaleCmd

	// Internal / effect callbacks
	VersionUpdated        *VersionUpdatedEvt
	ValidationFailed      *ValidationFailedEvt
	InsufficientInventory *InsufficientInventoryEvt
}

const (
	KindAddInventory = "AddInventory"
	KindReserveSeats = "ReserveSeats"
	KindReleaseSeats = "ReleaseSeats"
	KindConfirmSale  = "ConfirmSale"

	KindVersionUpdated        = "VersionUpdated"
	KindValidationFailed      = "ValidationFailed"
	KindInsufficientInventory = "InsufficientInventory"
)

type AddInventoryCmd struct {
	EventID   string
	Section   string
	Capacity  int
	UnitPrice int64
}

type ReserveSeatsCmd struct {
	EventID       string
	Section       string
	Quantity      int
	SpecificSeats []string
	ReservationID string
	CorrelationID string
}

type ReleaseSeatsCmd struct {
	EventID       string
	Section       string
	ReservationID string
}

type ConfirmSaleCmd struct {
	EventID       string
	Section       string
	ReservationID string
}

type VersionUpdatedEvt struct{ Version eventstore.Version }
type ValidationFailedEvt struct{ Error string }
type InsufficientInventoryEvt struct {
	ReservationID string
	Requested     int
	Available     int
}
