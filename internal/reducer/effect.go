package reducer

import (
	"time"

	"github.com/prohmpiriya/ticketcore/internal/eventbus"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
)

// Effect describes a side effect a reducer wants performed, without
// performing it. The runtime interprets effect values; reducers never
// touch the event store, bus, or clock directly, which is what keeps
// reducer unit tests I/O-free and deterministic.
type Effect[A any] interface {
	isEffect()
}

// AppendEvents asks the runtime to append events to a stream under an
// optimistic-concurrency check. OnSuccess and OnError both produce the
// next action to feed back into the reducer.
type AppendEvents[A any] struct {
	Stream          string
	ExpectedVersion *eventstore.Version
	Events          []eventstore.EventRecord
	OnSuccess       func(version eventstore.Version) A
	OnError         func(err error) A
}

func (AppendEvents[A]) isEffect() {}

// PublishEvent asks the runtime to publish a serialized event to a bus
// topic.
type PublishEvent[A any] struct {
	Topic     string
	Event     eventbus.SerializedEvent
	OnSuccess func() A
	OnError   func(err error) A
}

func (PublishEvent[A]) isEffect() {}

// Future runs an arbitrary async operation (e.g. a payment gateway
// call) and dispatches the action it produces, if any.
type Future[A any] struct {
	Run func() (action A, ok bool, err error)
}

func (Future[A]) isEffect() {}

// Delay schedules action to be dispatched after duration. Cancelled
// automatically if the owning Store is closed before it fires.
type Delay[A any] struct {
	Duration time.Duration
	Action   A
}

func (Delay[A]) isEffect() {}

// ScheduleTimeout asks the runtime to arm a durable saga timeout via
// Environment.Timeouts. Unlike Delay, whose timer lives only as long as
// this Store instance, a scheduled timeout is persisted and picked up
// by whatever process polls Environment.Timeouts later, so it survives
// this Store being closed the moment Send returns.
type ScheduleTimeout[A any] struct {
	SagaID     string
	Step       string
	DeadlineAt time.Time
	OnError    func(err error) A
}

func (ScheduleTimeout[A]) isEffect() {}

// Sequential runs its effects in order. Execution stops at the first
// sub-effect whose completion produces an action — that action is
// dispatched and the remaining effects in the sequence do not run.
// Used for "try X, only proceed to Y if X produced nothing".
type Sequential[A any] struct {
	Effects []Effect[A]
}

func (Sequential[A]) isEffect() {}

// Parallel runs its effects concurrently. Returned directly by a
// reducer, every action its effects produce is dispatched, in
// completion order. Nested inside a Sequential or another Parallel,
// only the action of whichever effect finishes first (and produces
// one) is surfaced; the others still run to completion but their
// actions, if any, are discarded.
type Parallel[A any] struct {
	Effects []Effect[A]
}

func (Parallel[A]) isEffect() {}

// None performs no side effect.
type None[A any] struct{}

func (None[A]) isEffect() {}
