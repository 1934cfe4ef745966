// Package consumer implements the reusable subscribe-deserialize-invoke
// execution loop described in the core runtime design: the same
// runtime type backs both aggregate reactors and projection updaters,
// parameterized only by the EventHandler it is given, the way
// apps/booking-service/internal/consumer.BookingConsumer's poll loop
// is reused across every topic it subscribes to, just with a
// configurable handler in place of one hardcoded callback.
package consumer

import (
	"context"
	"time"

	"github.com/prohmpiriya/ticketcore/internal/corerr"
	"github.com/prohmpiriya/ticketcore/internal/dlq"
	"github.com/prohmpiriya/ticketcore/internal/eventbus"
	"github.com/prohmpiriya/ticketcore/internal/logging"
	"github.com/prohmpiriya/ticketcore/internal/retry"
)

// EventHandler processes one delivered event. It has the same shape as
// eventbus.Handler; kept as its own type so this package's exported
// surface doesn't force callers to import eventbus just to reference a
// function type.
type EventHandler func(ctx context.Context, event eventbus.SerializedEvent) error

// Config controls one Runtime's retry/backoff and reconnect behavior.
type Config struct {
	Retry          *retry.Config
	ReconnectDelay time.Duration
	Logger         logging.Logger
}

// Runtime subscribes a named handler to a set of topics, retrying
// failures with exponential backoff before handing the event to the
// dead-letter queue, and reconnecting after a broker disconnect.
type Runtime struct {
	bus     eventbus.Bus
	dlq     dlq.Store
	retrier *retry.Retrier
	logger  logging.Logger

	reconnectDelay time.Duration
}

// NewRuntime constructs a Runtime. dlqStore may be nil, in which case
// events that exhaust their retry budget are logged and dropped
// instead of parked — used by components that have no DLQ wired, such
// as tests exercising retry behavior in isolation.
func NewRuntime(bus eventbus.Bus, dlqStore dlq.Store, cfg Config) *Runtime {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	return &Runtime{
		bus:            bus,
		dlq:            dlqStore,
		retrier:        retry.New(cfg.Retry),
		logger:         cfg.Logger,
		reconnectDelay: cfg.ReconnectDelay,
	}
}

// Run subscribes name to topics and invokes handler for each delivered
// event until ctx is cancelled. On a Subscribe error (broker
// disconnect, stream end) it waits reconnectDelay and resubscribes, so
// callers only need to call Run once at startup.
func (r *Runtime) Run(ctx context.Context, name string, topics []string, handler EventHandler) error {
	for {
		err := r.bus.Subscribe(ctx, topics, name, r.wrap(name, topics, handler))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			r.logger.ErrorContext(ctx, "consumer: subscribe ended, reconnecting", "consumer", name, "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.reconnectDelay):
		}
	}
}

// wrap adapts an EventHandler into the retry-then-DLQ policy: retried
// with exponential backoff, then parked and the offset still advanced
// (returning nil from an eventbus.Handler commits it) once the retry
// budget is exhausted.
func (r *Runtime) wrap(name string, topics []string, handler EventHandler) eventbus.Handler {
	return func(ctx context.Context, event eventbus.SerializedEvent) error {
		result := r.retrier.DoWithCallback(ctx, func(ctx context.Context) error {
			return handler(ctx, event)
		}, func(attempt int, err error, next time.Duration) {
			r.logger.WarnContext(ctx, "consumer: handler failed, retrying",
				"consumer", name, "stream_id", event.StreamID, "event_type", event.EventType,
				"attempt", attempt, "err", err, "next_retry_in", next)
		})
		if result.Err == nil {
			return nil
		}

		r.logger.ErrorContext(ctx, "consumer: retries exhausted, parking to dlq",
			"consumer", name, "stream_id", event.StreamID, "event_type", event.EventType, "err", result.LastError)

		if r.dlq == nil {
			return nil
		}

		topic := ""
		if len(topics) > 0 {
			topic = topics[0]
		}
		lastErr := result.LastError
		if lastErr == nil {
			lastErr = result.Err
		}
		_, parkErr := r.dlq.Park(ctx, dlq.Entry{
			Topic:         topic,
			StreamID:      event.StreamID,
			EventType:     event.EventType,
			Payload:       event.Payload,
			Metadata:      event.Metadata,
			LastError:     lastErr.Error(),
			RetryCount:    result.Attempts,
			FirstFailedAt: event.CreatedAt,
			LastFailedAt:  time.Now(),
		})
		if parkErr != nil {
			r.logger.ErrorContext(ctx, "consumer: failed to park event to dlq", "consumer", name, "stream_id", event.StreamID, "err", parkErr)
			return corerr.Wrap(corerr.KindStorage, "park event to dlq", parkErr)
		}
		return nil
	}
}
