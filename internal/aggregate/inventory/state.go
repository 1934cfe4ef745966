// Package inventory implements the per-(event, section) seat
// inventory aggregate: adding capacity, reserving, releasing, and
// confirming the sale of seats.
package inventory

import "github.com/prohmpiriya/ticketcore/internal/eventstore"

// SeatStatus is the lifecycle of one seat.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatReserved  SeatStatus = "reserved"
	SeatSold      SeatStatus = "sold"
)

// Seat is one numbered seat within a section.
type Seat struct {
	ID            string
	Status        SeatStatus
	ReservationID string
}

// State is the in-memory projection of one (event_id, section)
// inventory stream.
type State struct {
	Version   eventstore.Version
	Loaded    bool
	EventID   string
	Section   string
	UnitPrice int64

	// SeatOrder holds every seat id in ascending creation order; seat
	// selection walks this slice rather than sorting map keys, which
	// would put "10" before "2" lexicographically.
	SeatOrder []string
	Seats     map[string]*Seat
}

// Counters returns the conservation-invariant tallies: available +
// reserved + sold == total.
func (s *State) Counters() (total, reserved, sold, available int) {
	total = len(s.SeatOrder)
	for _, id := range s.SeatOrder {
		switch s.Seats[id].Status {
		case SeatReserved:
			reserved++
		case SeatSold:
			sold++
		default:
			available++
		}
	}
	return
}

// StreamID returns the event store stream id for an (event, section)
// pair.
func StreamID(eventID, section string) string { return "inventory-" + eventID + "-" + section }
