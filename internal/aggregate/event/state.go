// Package event implements the ticketed-show aggregate: the lifecycle
// a promoter takes an event through from draft to on-sale to closed.
package event

import (
	"time"

	"github.com/prohmpiriya/ticketcore/internal/eventstore"
)

// Status is the event lifecycle state, following the same
// string-constant-with-IsValid idiom used throughout the domain.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusPublished   Status = "published"
	StatusSalesOpen   Status = "sales_open"
	StatusSalesClosed Status = "sales_closed"
	StatusCancelled   Status = "cancelled"
)

// IsValid reports whether s is a recognized status.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusSalesOpen, StatusSalesClosed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further mutation is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusSalesClosed || s == StatusCancelled
}

// State is the in-memory projection of one event's stream.
type State struct {
	Version     eventstore.Version
	Loaded      bool
	ID          string
	Name        string
	Description string
	VenueID     string
	StartTime   time.Time
	EndTime     time.Time
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StreamID returns the event store stream id for event id.
func StreamID(eventID string) string { return "event-" + eventID }
