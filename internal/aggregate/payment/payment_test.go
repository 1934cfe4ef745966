package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/ticketcore/internal/aggregate/payment/gateway"
	"github.com/prohmpiriya/ticketcore/internal/eventbus"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
	"github.com/prohmpiriya/ticketcore/internal/reducer"
)

func newEnv(store eventstore.Store, bus eventbus.Bus) *reducer.Environment {
	return &reducer.Environment{Store: store, Bus: bus}
}

func drive(t *testing.T, ctx context.Context, reduce reducer.Reducer[State, Action], env *reducer.Environment, state *State, action Action) []Action {
	t.Helper()
	effects := reduce(state, action, env)
	var produced []Action
	for _, eff := range effects {
		next, ok := execOne(t, ctx, env, eff)
		if !ok {
			continue
		}
		produced = append(produced, next)
		produced = append(produced, drive(t, ctx, reduce, env, state, next)...)
	}
	return produced
}

func execOne(t *testing.T, ctx context.Context, env *reducer.Environment, eff reducer.Effect[Action]) (Action, bool) {
	t.Helper()
	switch e := eff.(type) {
	case reducer.AppendEvents[Action]:
		v, err := env.Store.Append(ctx, e.Stream, e.ExpectedVersion, e.Events)
		if err != nil {
			return e.OnError(err), true
		}
		return e.OnSuccess(v), true
	case reducer.PublishEvent[Action]:
		err := env.Bus.Publish(ctx, e.Topic, e.Event)
		if err != nil {
			return e.OnError(err), true
		}
		return e.OnSuccess(), true
	case reducer.Future[Action]:
		action, ok, err := e.Run()
		require.NoError(t, err)
		return action, ok
	}
	return Action{}, false
}

func lastEventType(t *testing.T, store eventstore.Store, streamID string) string {
	t.Helper()
	events, err := store.Load(context.Background(), streamID, nil)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	return events[len(events)-1].EventType
}

func TestPayment_HappyPath(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	bus := eventbus.NewInMemoryBus()
	env := newEnv(store, bus)
	reduce := NewReducer(gateway.NewMockGateway(1.0, 0))

	var state State
	drive(t, ctx, reduce, env, &state, Action{Kind: KindProcessPayment, ProcessPayment: &ProcessPaymentCmd{
		PaymentID: "p1", ReservationID: "r1", Amount: 2000, Method: "card", CorrelationID: "c1",
	}})

	assert.Equal(t, StatusCaptured, state.Status)
	assert.NotEmpty(t, state.TransactionID)
	assert.Equal(t, EventTypePaymentCaptured, lastEventType(t, store, StreamID("p1")))
}

func TestPayment_GatewayDeclineRecordsFailure(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	bus := eventbus.NewInMemoryBus()
	env := newEnv(store, bus)
	reduce := NewReducer(gateway.NewMockGateway(0.0, 0))

	var state State
	drive(t, ctx, reduce, env, &state, Action{Kind: KindProcessPayment, ProcessPayment: &ProcessPaymentCmd{
		PaymentID: "p2", ReservationID: "r2", Amount: 1000, Method: "card", CorrelationID: "c2",
	}})

	assert.Equal(t, StatusFailed, state.Status)
	assert.NotEmpty(t, state.FailureReason)
	assert.True(t, state.Status.IsTerminal())
}

func TestPayment_RefundOnlyValidFromCaptured(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	bus := eventbus.NewInMemoryBus()
	env := newEnv(store, bus)
	reduce := NewReducer(gateway.NewMockGateway(1.0, 0))

	var state State
	drive(t, ctx, reduce, env, &state, Action{Kind: KindProcessPayment, ProcessPayment: &ProcessPaymentCmd{
		PaymentID: "p3", ReservationID: "r3", Amount: 500, Method: "card", CorrelationID: "c3",
	}})
	require.Equal(t, StatusCaptured, state.Status)

	drive(t, ctx, reduce, env, &state, Action{Kind: KindRefundPayment, RefundPayment: &RefundPaymentCmd{PaymentID: "p3", Reason: "customer request"}})
	assert.Equal(t, StatusRefunded, state.Status)
	assert.Equal(t, EventTypePaymentRefunded, lastEventType(t, store, StreamID("p3")))

	// refunding again is rejected, not silently accepted
	produced := drive(t, ctx, reduce, env, &state, Action{Kind: KindRefundPayment, RefundPayment: &RefundPaymentCmd{PaymentID: "p3", Reason: "again"}})
	require.Len(t, produced, 1)
	assert.Equal(t, KindValidationFailed, produced[0].Kind)
}

func TestPayment_RefundPublishesCancelReservation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := eventstore.NewMemoryStore()
	bus := eventbus.NewInMemoryBus()
	env := newEnv(store, bus)
	reduce := NewReducer(gateway.NewMockGateway(1.0, 0))

	received := make(chan eventbus.SerializedEvent, 1)
	go bus.Subscribe(ctx, []string{TopicReservations}, "test-consumer", func(_ context.Context, ev eventbus.SerializedEvent) error {
		received <- ev
		return nil
	})

	var state State
	drive(t, ctx, reduce, env, &state, Action{Kind: KindProcessPayment, ProcessPayment: &ProcessPaymentCmd{
		PaymentID: "p4", ReservationID: "r4", Amount: 700, Method: "card", CorrelationID: "c4",
	}})
	drive(t, ctx, reduce, env, &state, Action{Kind: KindRefundPayment, RefundPayment: &RefundPaymentCmd{PaymentID: "p4", Reason: "refunded"}})

	// The capture step publishes ConfirmPayment on the same topic first.
	select {
	case msg := <-received:
		assert.Equal(t, ReservationActionConfirmPayment, msg.EventType)
	case <-time.After(time.Second):
		t.Fatal("expected a ConfirmPayment command to be published")
	}

	select {
	case msg := <-received:
		assert.Equal(t, ReservationActionCancelReservation, msg.EventType)
	case <-time.After(time.Second):
		t.Fatal("expected a CancelReservation command to be published")
	}
}

func TestHydrate_ReplaysPaymentEvents(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	bus := eventbus.NewInMemoryBus()
	env := newEnv(store, bus)
	reduce := NewReducer(gateway.NewMockGateway(1.0, 0))

	var state State
	drive(t, ctx, reduce, env, &state, Action{Kind: KindProcessPayment, ProcessPayment: &ProcessPaymentCmd{
		PaymentID: "p5", ReservationID: "r5", Amount: 900, Method: "card", CorrelationID: "c5",
	}})

	hydrated, err := Hydrate(ctx, store, "p5")
	require.NoError(t, err)
	assert.Equal(t, StatusCaptured, hydrated.Status)
	assert.Equal(t, "r5", hydrated.ReservationID)
	assert.NotEmpty(t, hydrated.TransactionID)
}
