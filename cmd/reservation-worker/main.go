// Command reservation-worker runs the reservation saga coordinator: an
// aggregate reactor bound to the payment-reply and relayed-domain-event
// topics, plus a saga.Scheduler that expires a reservation whose step
// never acknowledged in time. The scheduler exists because a per-message
// reducer.Store is closed right after handling one message -- the
// InitiateReservation handler arms the expiry via reducer.ScheduleTimeout
// against a durable saga.TimeoutStore instead of an in-process Delay, so
// the deadline survives this process restarting before it fires.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prohmpiriya/ticketcore/internal/aggregate/reservation"
	"github.com/prohmpiriya/ticketcore/internal/config"
	"github.com/prohmpiriya/ticketcore/internal/consumer"
	"github.com/prohmpiriya/ticketcore/internal/dlq"
	"github.com/prohmpiriya/ticketcore/internal/eventbus"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
	"github.com/prohmpiriya/ticketcore/internal/logging"
	"github.com/prohmpiriya/ticketcore/internal/reducer"
	"github.com/prohmpiriya/ticketcore/internal/retry"
	"github.com/prohmpiriya/ticketcore/internal/saga"
	"github.com/prohmpiriya/ticketcore/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := logging.Init(cfg.App.LogLevel); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logging.Sync()

	appLog := logging.NewZapLogger(logging.ForComponent("reservation-worker"))
	appLog.Info("starting reservation worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:       cfg.OTel.Enabled,
		ServiceName:   "reservation-worker",
		Environment:   cfg.App.Environment,
		CollectorAddr: cfg.OTel.CollectorAddr,
		SampleRatio:   cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Error("failed to initialize telemetry", "err", err)
		os.Exit(1)
	}
	defer telemetry.Shutdown(context.Background())

	store, err := eventstore.NewPostgresStore(ctx, eventstore.PostgresConfig{
		DSN:             cfg.EventStore.DSN(),
		MaxConns:        cfg.EventStore.MaxOpenConns,
		MinConns:        cfg.EventStore.MaxIdleConns,
		MaxConnLifetime: cfg.EventStore.ConnMaxLifetime,
		MaxConnIdleTime: cfg.EventStore.ConnMaxIdleTime,
		EnableTracing:   cfg.OTel.Enabled,
	})
	if err != nil {
		appLog.Error("failed to connect to event store", "err", err)
		os.Exit(1)
	}
	defer store.Close()
	appLog.Info("event store connected")

	bus, err := eventbus.NewKafkaBus(ctx, eventbus.KafkaConfig{
		Brokers:  cfg.Kafka.Brokers,
		ClientID: cfg.Kafka.ClientID,
	}, appLog)
	if err != nil {
		appLog.Error("failed to connect to event bus", "err", err)
		os.Exit(1)
	}
	defer bus.Close()
	appLog.Info("event bus connected")

	timeouts, err := saga.NewPostgresTimeoutStore(ctx, store.Pool())
	if err != nil {
		appLog.Error("failed to set up saga timeout store", "err", err)
		os.Exit(1)
	}

	env := &reducer.Environment{Store: store, Bus: bus, Timeouts: timeouts}

	retrierCfg := &retry.Config{
		MaxRetries:      cfg.Retry.MaxRetries,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}
	dlqStore := dlq.NewMemoryStore()
	runtime := consumer.NewRuntime(bus, dlqStore, consumer.Config{Retry: retrierCfg, Logger: appLog})

	handler := consumer.NewAggregateReactor[reservation.State, reservation.Action](
		env,
		reservation.NewHydrate(store),
		reservation.Reduce,
		reservation.Translate,
	)

	go func() {
		topics := []string{reservation.TopicReservations, reservation.TopicEvents}
		if err := runtime.Run(ctx, "reservation-worker", topics, handler); err != nil && ctx.Err() == nil {
			appLog.Error("reservation worker runtime stopped", "err", err)
		}
	}()

	scheduler := saga.NewScheduler(timeouts, expireReservation(env), saga.SchedulerConfig{
		CheckInterval: 5 * time.Second,
		Logger:        appLog,
	})
	go scheduler.Run(ctx)
	appLog.Info("reservation worker started", "saga_timeout", cfg.Saga.ReservationTimeout)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("shutting down reservation worker")
	scheduler.Stop()
	cancel()
}

// expireReservation builds the saga.Dispatch a due timeout invokes: it
// hydrates the reservation fresh and sends ExpireReservation, the same
// one-Store-per-message shape every other aggregate reactor uses.
// handleExpire is a no-op once the saga has already progressed past
// the step the timeout was guarding, so a timeout that fires after the
// saga already completed normally is harmless.
func expireReservation(env *reducer.Environment) saga.Dispatch {
	return func(ctx context.Context, t saga.Timeout) error {
		state, err := reservation.Hydrate(ctx, env.Store, t.SagaID)
		if err != nil {
			return err
		}

		agg := reducer.New(state, reservation.Reduce, env)
		defer agg.Close()

		return agg.Send(ctx, reservation.Action{
			Kind:              reservation.KindExpireReservation,
			ExpireReservation: &reservation.ExpireReservationCmd{ReservationID: t.SagaID},
		})
	}
}
