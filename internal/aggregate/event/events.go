package event

import "time"

// Stored event payloads (schema version 1, additive fields only so
// far — no upcaster registered yet).
const SchemaVersion = 1

type EventCreated struct {
	EventID     string    `json:"event_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	VenueID     string    `json:"venue_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

type EventPublished struct{}
type SalesOpened struct{}
type SalesClosed struct{}
type EventCancelled struct{ Reason string }

type EventUpdated struct {
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
}

const (
	EventTypeCreated     = "EventCreated"
	EventTypePublished   = "EventPublished"
	EventTypeSalesOpen   = "SalesOpened"
	EventTypeSalesClosed = "SalesClosed"
	EventTypeCancelled   = "EventCancelled"
	EventTypeUpdated     = "EventUpdated"
)
