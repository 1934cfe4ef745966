package payment

import "github.com/prohmpiriya/ticketcore/internal/aggregate/reservation"

// Payment reacts on the payment topic and talks back to the
// reservation saga on the reservation topic. The reservation package
// owns the wire shapes for both directions, since the saga is the
// party that has to stay in sync with whichever aggregate it is
// talking to; payment only aliases them here so its own code can refer
// to "its" commands without spelling out the other package each time.
const (
	TopicPayments     = reservation.TopicPayments
	TopicReservations = reservation.TopicReservations
)

const (
	ReservationActionConfirmPayment    = reservation.ReservationActionConfirmPayment
	ReservationActionPaymentFailed     = reservation.ReservationActionPaymentFailed
	ReservationActionCancelReservation = reservation.ReservationActionCancelReservation
)

type ConfirmPaymentCommand = reservation.ConfirmPaymentCommand
type PaymentFailedCommand = reservation.PaymentFailedCommand
type CancelReservationCommand = reservation.CancelReservationCommand
