// Command payment-worker runs the payment aggregate reactor: a
// consumer.Runtime bound to reservation's payment topic, charging
// through a PaymentGateway and replying with ConfirmPayment or
// PaymentFailed on the reservation topic.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prohmpiriya/ticketcore/internal/aggregate/payment"
	"github.com/prohmpiriya/ticketcore/internal/aggregate/payment/gateway"
	"github.com/prohmpiriya/ticketcore/internal/aggregate/reservation"
	"github.com/prohmpiriya/ticketcore/internal/config"
	"github.com/prohmpiriya/ticketcore/internal/consumer"
	"github.com/prohmpiriya/ticketcore/internal/dlq"
	"github.com/prohmpiriya/ticketcore/internal/eventbus"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
	"github.com/prohmpiriya/ticketcore/internal/logging"
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

	appLog := logging.NewZapLogger(logging.ForComponent("payment-worker"))
	appLog.Info("starting payment worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:       cfg.OTel.Enabled,
		ServiceName:   "payment-worker",
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

	gw := paymentGateway(cfg, appLog)

	retrierCfg := &retry.Config{
		MaxRetries:      cfg.Retry.MaxRetries,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}
	dlqStore := dlq.NewMemoryStore()
	runtime := consumer.NewRuntime(bus, dlqStore, consumer.Config{Retry: retrierCfg, Logger: appLog})

	env := &reducer.Environment{Store: store, Bus: bus}
	handler := consumer.NewAggregateReactor[payment.State, payment.Action](
		env,
		payment.NewHydrate(store),
		payment.NewReducer(gw),
		payment.Translate,
	)

	go func() {
		if err := runtime.Run(ctx, "payment-worker", []string{reservation.TopicPayments}, handler); err != nil && ctx.Err() == nil {
			appLog.Error("payment worker runtime stopped", "err", err)
		}
	}()
	appLog.Info("payment worker started", "gateway", gw.Name())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("shutting down payment worker")
	cancel()
}

// paymentGateway picks Stripe when PAYMENT_GATEWAY=stripe and a secret
// key is configured, falling back to the mock gateway otherwise --
// the same env-gated switch the teacher's saga-payment-worker uses so
// local/dev runs never need a live Stripe account. A real gateway is
// always wrapped in a circuit breaker; the mock isn't, since there is
// no outage to protect against in a simulated one.
func paymentGateway(cfg *config.Config, log logging.Logger) gateway.PaymentGateway {
	if os.Getenv("PAYMENT_GATEWAY") == "stripe" && cfg.Stripe.SecretKey != "" {
		stripeGw, err := gateway.NewStripeGateway(gateway.StripeConfig{SecretKey: cfg.Stripe.SecretKey})
		if err == nil {
			return gateway.NewBreakerGateway(stripeGw)
		}
		log.Error("failed to construct stripe gateway, falling back to mock", "err", err)
	}
	log.Info("using mock payment gateway")
	return gateway.NewMockGateway(0.95, 100*time.Millisecond)
}
