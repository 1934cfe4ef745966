package reducer

import (
	"time"

	"github.com/prohmpiriya/ticketcore/internal/eventbus"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
	"github.com/prohmpiriya/ticketcore/internal/logging"
	"github.com/prohmpiriya/ticketcore/internal/saga"
)

// Environment binds the handles a Store needs to execute effects: the
// event store, the event bus, a clock (overridable in tests), a
// logger, and a timeout store for reducers that arm durable saga
// deadlines. Timeouts is nil for aggregates that never schedule one;
// executing ScheduleTimeout against a nil Timeouts is a no-op. It
// never holds per-request state.
type Environment struct {
	Store    eventstore.Store
	Bus      eventbus.Bus
	Clock    func() time.Time
	Logger   logging.Logger
	Timeouts saga.TimeoutStore
}

func (e *Environment) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now().UTC()
}

func (e *Environment) logger() logging.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return logging.NoOpLogger{}
}
