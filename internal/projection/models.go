// Package projection maintains the read models consumed by reducers
// and by a future API layer: available_seats, sales_analytics,
// customer_history, reservation_ownership, and payment_ownership.
// Each model is updated by a pure handle(event, current) -> next
// function (see handlers.go); Manager wires that contract to the
// event bus and a durable Store.
package projection

import (
	"github.com/prohmpiriya/ticketcore/internal/aggregate/inventory"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
)

// AvailableSeats mirrors inventory.Snapshot but is owned by the
// projection, not the aggregate: it is rebuilt independently from the
// same inventory events and is what inventory.ProjectionQuerier reads
// from.
type AvailableSeats struct {
	Version   eventstore.Version
	UnitPrice int64
	Seats     map[string]inventory.SeatSnapshot
}

// PurchaseStatus is a customer_history entry's lifecycle.
type PurchaseStatus string

const (
	PurchaseActive    PurchaseStatus = "active"
	PurchaseCancelled PurchaseStatus = "cancelled"
	PurchaseRefunded  PurchaseStatus = "refunded"
)

// Purchase is one entry in a customer's history.
type Purchase struct {
	ReservationID    string
	EventID          string
	Section          string
	Quantity         int
	Amount           int64
	ConfirmationCode string
	Status           PurchaseStatus
}

// CustomerHistory is the ordered purchase list for one customer.
type CustomerHistory struct {
	CustomerID string
	Purchases  []Purchase
}

// SectionSales is one section's revenue/volume within SalesAnalytics.
type SectionSales struct {
	Section      string
	Revenue      int64
	SeatsSold    int
	Reservations int
}

// SalesAnalytics is the per-event revenue and per-tier breakdown of
// completed reservations.
type SalesAnalytics struct {
	EventID      string
	TotalRevenue int64
	TotalSold    int
	BySection    map[string]SectionSales
}

// ReservationOwnership records who a reservation belongs to plus the
// fields later terminal events need but don't repeat in their own
// payload (ReservationCompleted etc. carry no data of their own),
// keeping every projection update self-contained without a side read
// of the event store.
type ReservationOwnership struct {
	ReservationID string
	CustomerID    string
	EventID       string
	Section       string
	Quantity      int
	Amount        int64
}

// PaymentOwnership records which reservation a payment belongs to.
type PaymentOwnership struct {
	PaymentID     string
	ReservationID string
}
