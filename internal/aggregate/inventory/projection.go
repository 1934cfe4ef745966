package inventory

import (
	"context"

	"github.com/prohmpiriya/ticketcore/internal/eventstore"
)

// SeatSnapshot is one seat as reported by the available_seats
// projection.
type SeatSnapshot struct {
	ID            string
	Status        SeatStatus
	ReservationID string
}

// Snapshot is what the available_seats projection returns for one
// (event_id, section): enough to rehydrate State without replaying
// the full stream.
type Snapshot struct {
	Version   eventstore.Version
	UnitPrice int64
	Seats     []SeatSnapshot
}

// SeatCounters is the conservation-invariant tally a get_available_seats
// caller wants: available + reserved + sold == total.
type SeatCounters struct {
	Total     int
	Reserved  int
	Sold      int
	Available int
}

// Counters tallies Snapshot's seats the same way State.Counters does,
// so a projection read gives callers the summary view directly instead
// of making every caller re-derive it from the raw seat list.
func (s Snapshot) Counters() SeatCounters {
	c := SeatCounters{Total: len(s.Seats)}
	for _, seat := range s.Seats {
		switch seat.Status {
		case SeatReserved:
			c.Reserved++
		case SeatSold:
			c.Sold++
		default:
			c.Available++
		}
	}
	return c
}

// ProjectionQuerier is consulted for the projection-assisted
// hydration shortcut: because inventory streams can be long and are
// updated frequently, the reducer prefers a cheap projection read
// over a full event replay when its in-memory state is not loaded.
type ProjectionQuerier interface {
	AvailableSeats(ctx context.Context, eventID, section string) (Snapshot, bool, error)
}
