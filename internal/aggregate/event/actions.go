package event

import (
	"time"

	"github.com/prohmpiriya/ticketcore/internal/eventstore"
)

// Action is the sum type of commands and events the event aggregate's
// reducer handles. Exactly one field group is populated per Kind, the
// same "one struct, tagged union by string kind" shape the example
// domain packages use for their event enums.
type Action struct {
	Kind string

	// Commands
	CreateEvent  *CreateEventCmd
	PublishEvent *PublishEventCmd
	OpenSales    *OpenSalesCmd
	CloseSales   *CloseSalesCmd
	CancelEvent  *CancelEventCmd
	UpdateEvent  *UpdateEventCmd

	// Internal / effect callbacks
	VersionUpdated   *VersionUpdatedEvt
	ValidationFailed *ValidationFailedEvt
}

const (
	KindCreateEvent  = "CreateEvent"
	KindPublishEvent = "PublishEvent"
	KindOpenSales    = "OpenSales"
	KindCloseSales   = "CloseSales"
	KindCancelEvent  = "CancelEvent"
	KindUpdateEvent  = "UpdateEvent"

	KindVersionUpdated   = "VersionUpdated"
	KindValidationFailed = "ValidationFailed"
)

type CreateEventCmd struct {
	EventID     string
	Name        string
	Description string
	VenueID     string
	StartTime   time.Time
	EndTime     time.Time
}

type PublishEventCmd struct{ EventID string }
type OpenSalesCmd struct{ EventID string }
type CloseSalesCmd struct{ EventID string }
type CancelEventCmd struct {
	EventID string
	Reason  string
}

type UpdateEventCmd struct {
	EventID     string
	Name        *string
	Description *string
	StartTime   *time.Time
	EndTime     *time.Time
}

type VersionUpdatedEvt struct{ Version eventstore.Version }
type ValidationFailedEvt struct{ Error string }
