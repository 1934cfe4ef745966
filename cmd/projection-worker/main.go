// Command projection-worker owns the read side: it relays newly
// committed events from the event store onto the bus (the outbox
// pattern eventbus.Relay documents) and drives a projection.Manager
// that folds them into available_seats, sales_analytics,
// customer_history and the ownership indexes. Every other worker that
// reacts to domain events it didn't append itself (reservation's
// inventory signals, payment's reservation replies) depends on this
// process running, since the relay is the only thing that ever
// publishes those events onto the bus in the first place.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/prohmpiriya/ticketcore/internal/aggregate/reservation"
	"github.com/prohmpiriya/ticketcore/internal/config"
	"github.com/prohmpiriya/ticketcore/internal/consumer"
	"github.com/prohmpiriya/ticketcore/internal/dlq"
	"github.com/prohmpiriya/ticketcore/internal/eventbus"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
	"github.com/prohmpiriya/ticketcore/internal/logging"
	"github.com/prohmpiriya/ticketcore/internal/projection"
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

	appLog := logging.NewZapLogger(logging.ForComponent("projection-worker"))
	appLog.Info("starting projection worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:       cfg.OTel.Enabled,
		ServiceName:   "projection-worker",
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

	relayCheckpoint, err := eventbus.NewPostgresCheckpointStore(ctx, store.Pool())
	if err != nil {
		appLog.Error("failed to set up relay checkpoint store", "err", err)
		os.Exit(1)
	}

	// Every domain event lands on the same topic regardless of which
	// aggregate appended it: reservation.Translate and payment.Translate
	// both switch on EventType alone, not on topic, so there is nothing
	// a per-event-type route would buy here.
	router := eventbus.TopicRouter(func(eventType string) string { return reservation.TopicEvents })
	relay := eventbus.NewRelay(store, bus, relayCheckpoint, router, eventbus.RelayConfig{
		Retry:  &retry.Config{MaxRetries: cfg.Retry.MaxRetries, InitialInterval: cfg.Retry.InitialInterval, MaxInterval: cfg.Retry.MaxInterval},
		Logger: appLog,
	})
	if err := relay.Start(ctx); err != nil {
		appLog.Error("failed to start relay", "err", err)
		os.Exit(1)
	}
	defer relay.Stop()
	appLog.Info("relay started", "topic", reservation.TopicEvents)

	projStore, err := projection.NewPostgresStore(ctx, projection.PostgresConfig{DSN: cfg.EventStore.DSN()})
	if err != nil {
		appLog.Error("failed to connect to projection store", "err", err)
		os.Exit(1)
	}
	defer projStore.Close()

	projCheckpoint, err := projection.NewPostgresCheckpoint(ctx, store.Pool())
	if err != nil {
		appLog.Error("failed to set up projection checkpoint store", "err", err)
		os.Exit(1)
	}

	cache := projectionCache(ctx, cfg, appLog)

	manager := projection.NewManager(projStore, projCheckpoint, store, cache, appLog)

	if os.Getenv("PROJECTION_REBUILD") == "true" {
		appLog.Info("rebuilding projections from event store")
		if err := manager.Rebuild(ctx); err != nil {
			appLog.Error("failed to rebuild projections", "err", err)
			os.Exit(1)
		}
		appLog.Info("projection rebuild complete")
	}

	retrierCfg := &retry.Config{MaxRetries: cfg.Retry.MaxRetries, InitialInterval: cfg.Retry.InitialInterval, MaxInterval: cfg.Retry.MaxInterval}
	dlqStore := dlq.NewMemoryStore()
	runtime := consumer.NewRuntime(bus, dlqStore, consumer.Config{Retry: retrierCfg, Logger: appLog})

	go func() {
		topics := []string{reservation.TopicEvents}
		if err := runtime.Run(ctx, "projection-worker", topics, manager.Handle); err != nil && ctx.Err() == nil {
			appLog.Error("projection worker runtime stopped", "err", err)
		}
	}()
	appLog.Info("projection worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("shutting down projection worker")
	cancel()
}

// projectionCache wires a RedisCache when Redis is configured and
// returns nil otherwise, which Manager treats as "no cache" and falls
// through to the store on every read.
func projectionCache(ctx context.Context, cfg *config.Config, log logging.Logger) *projection.RedisCache {
	if cfg.Redis.Host == "" {
		log.Info("no redis host configured, projections will read uncached")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to redis, projections will read uncached", "err", err)
		return nil
	}
	log.Info("redis cache connected", "addr", cfg.Redis.Addr())
	return projection.NewRedisCache(client)
}
