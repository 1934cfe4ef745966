package reservation

// Bus topics correspond to aggregate families (design §4.3): the saga
// talks to inventory and payment purely by publishing command-shaped
// events on their topics and reacting to what comes back.
const (
	TopicEvents       = "events"
	TopicInventory    = "inventory"
	TopicReservations = "reservations"
	TopicPayments     = "payments"
)

const (
	InventoryActionReserveSeats = "InventoryAction::ReserveSeats"
	InventoryActionReleaseSeats = "InventoryAction::ReleaseSeats"
	InventoryActionConfirmSale  = "InventoryAction::ConfirmSale"
	PaymentActionProcessPayment = "PaymentAction::ProcessPayment"

	ReservationActionConfirmPayment    = "ReservationAction::ConfirmPayment"
	ReservationActionPaymentFailed     = "ReservationAction::PaymentFailed"
	ReservationActionCancelReservation = "ReservationAction::CancelReservation"
)

// ReserveSeatsCommand is the wire payload published to the inventory
// topic to request a hold.
type ReserveSeatsCommand struct {
	EventID       string   `json:"event_id"`
	Section       string   `json:"section"`
	Quantity      int      `json:"quantity"`
	SpecificSeats []string `json:"specific_seats,omitempty"`
	ReservationID string   `json:"reservation_id"`
}

// ReleaseSeatsCommand is the wire payload published to the inventory
// topic to compensate a reservation.
type ReleaseSeatsCommand struct {
	EventID       string `json:"event_id"`
	Section       string `json:"section"`
	ReservationID string `json:"reservation_id"`
}

// ConfirmSaleCommand is the wire payload published to the inventory
// topic once payment has been captured.
type ConfirmSaleCommand struct {
	EventID       string `json:"event_id"`
	Section       string `json:"section"`
	ReservationID string `json:"reservation_id"`
}

// ProcessPaymentCommand is the wire payload published to the payment
// topic once seats are held.
type ProcessPaymentCommand struct {
	ReservationID string `json:"reservation_id"`
	Amount        int64  `json:"amount"`
	Method        string `json:"method"`
	CorrelationID string `json:"correlation_id"`
}

// ConfirmPaymentCommand is published to the reservation topic once a
// charge is captured.
type ConfirmPaymentCommand struct {
	ReservationID string `json:"reservation_id"`
	PaymentID     string `json:"payment_id"`
}

// PaymentFailedCommand is published to the reservation topic when the
// gateway declines the charge.
type PaymentFailedCommand struct {
	ReservationID string `json:"reservation_id"`
	Reason        string `json:"reason"`
}

// CancelReservationCommand is published to the reservation topic after
// a refund, driving the saga's post-completion compensation path.
type CancelReservationCommand struct {
	ReservationID string `json:"reservation_id"`
	Reason        string `json:"reason"`
}
