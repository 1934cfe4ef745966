// Command inventory-worker runs the inventory aggregate reactor: one
// consumer.Runtime bound to the inventory topic, translating
// ReserveSeats/ReleaseSeats/ConfirmSale commands into dispatches
// against a fresh per-message reducer.Store, per design §4.2/§4.3.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prohmpiriya/ticketcore/internal/aggregate/inventory"
	"github.com/prohmpiriya/ticketcore/internal/aggregate/reservation"
	"github.com/prohmpiriya/ticketcore/internal/config"
	"github.com/prohmpiriya/ticketcore/internal/consumer"
	"github.com/prohmpiriya/ticketcore/internal/dlq"
	"github.com/prohmpiriya/ticketcore/internal/eventbus"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
	"github.com/prohmpiriya/ticketcore/internal/logging"
	"github.com/prohmpiriya/ticketcore/internal/projection"
	"github.com/prohmpiriya/ticketcore/internal/reducer"
	"github.com/prohmpiriya/ticketcore/internal/retry"
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

	appLog := logging.NewZapLogger(logging.ForComponent("inventory-worker"))
	appLog.Info("starting inventory worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:       cfg.OTel.Enabled,
		ServiceName:   "inventory-worker",
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

	projStore, err := projection.NewPostgresStore(ctx, projection.PostgresConfig{DSN: cfg.EventStore.DSN()})
	if err != nil {
		appLog.Error("failed to connect to projection store", "err", err)
		os.Exit(1)
	}
	defer projStore.Close()
	// Manager is only consulted here for its AvailableSeats read path
	// (the projection-updater binary owns the write path); a nil
	// Checkpoint/eventStore is safe since Handle/Rebuild are never
	// called from this process.
	projections := projection.NewManager(projStore, nil, nil, nil, appLog)

	retrierCfg := &retry.Config{
		MaxRetries:      cfg.Retry.MaxRetries,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}
	dlqStore := dlq.NewMemoryStore()
	runtime := consumer.NewRuntime(bus, dlqStore, consumer.Config{Retry: retrierCfg, Logger: appLog})

	env := &reducer.Environment{Store: store, Bus: bus}
	handler := consumer.NewAggregateReactor[inventory.State, inventory.Action](
		env,
		inventory.NewHydrate(store, projections),
		inventory.NewReducer(projections),
		inventory.Translate,
	)

	go func() {
		if err := runtime.Run(ctx, "inventory-worker", []string{reservation.TopicInventory}, handler); err != nil && ctx.Err() == nil {
			appLog.Error("inventory worker runtime stopped", "err", err)
		}
	}()
	appLog.Info("inventory worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("shutting down inventory worker")
	cancel()
}
