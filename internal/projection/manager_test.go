package projection

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/ticketcore/internal/aggregate/inventory"
	"github.com/prohmpiriya/ticketcore/internal/aggregate/reservation"
	"github.com/prohmpiriya/ticketcore/internal/eventbus"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
)

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func newTestManager() (*Manager, *eventstore.MemoryStore) {
	es := eventstore.NewMemoryStore()
	m := NewManager(NewMemoryStore(), NewMemoryCheckpoint(), es, nil, nil)
	return m, es
}

func TestManager_InventoryEventsBuildAvailableSeats(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	streamID := inventory.StreamID("evt-1", "ga")

	require.NoError(t, m.Handle(ctx, eventbus.SerializedEvent{
		StreamID: streamID, Version: 0, EventType: inventory.EventTypeInventoryAdded,
		Payload: mustMarshal(t, inventory.InventoryAdded{Capacity: 3, UnitPrice: 1000}),
	}))
	require.NoError(t, m.Handle(ctx, eventbus.SerializedEvent{
		StreamID: streamID, Version: 1, EventType: inventory.EventTypeSeatsReserved,
		Payload: mustMarshal(t, inventory.SeatsReservedPayload{ReservationID: "r1", SeatIDs: []string{"1", "2"}}),
	}))

	snapshot, found, err := m.AvailableSeats(ctx, "evt-1", "ga")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1000), snapshot.UnitPrice)
	assert.Len(t, snapshot.Seats, 3)

	var reserved, available int
	for _, s := range snapshot.Seats {
		switch s.Status {
		case inventory.SeatReserved:
			reserved++
			assert.Equal(t, "r1", s.ReservationID)
		case inventory.SeatAvailable:
			available++
		}
	}
	assert.Equal(t, 2, reserved)
	assert.Equal(t, 1, available)

	counters := snapshot.Counters()
	assert.Equal(t, 3, counters.Total)
	assert.Equal(t, 2, counters.Reserved)
	assert.Equal(t, 0, counters.Sold)
	assert.Equal(t, 1, counters.Available)
}

func TestManager_HandleIsIdempotentOnRedelivery(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()
	streamID := inventory.StreamID("evt-1", "ga")

	event := eventbus.SerializedEvent{
		StreamID: streamID, Version: 0, EventType: inventory.EventTypeInventoryAdded,
		Payload: mustMarshal(t, inventory.InventoryAdded{Capacity: 2, UnitPrice: 500}),
	}
	require.NoError(t, m.Handle(ctx, event))
	require.NoError(t, m.Handle(ctx, event)) // redelivery of the same version

	snapshot, found, err := m.AvailableSeats(ctx, "evt-1", "ga")
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, snapshot.Seats, 2)
}

func TestManager_ReservationCompletedRecordsPurchaseAndSales(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()
	streamID := "reservation-r1"

	require.NoError(t, m.Handle(ctx, eventbus.SerializedEvent{
		StreamID: streamID, Version: 0, EventType: reservation.EventTypeReservationInitiated,
		Payload: mustMarshal(t, reservation.ReservationInitiated{
			CustomerID: "cust-1", EventID: "evt-1", Section: "ga", Quantity: 2, Amount: 2500,
		}),
	}))
	require.NoError(t, m.Handle(ctx, eventbus.SerializedEvent{
		StreamID: streamID, Version: 1, EventType: reservation.EventTypeReservationCompleted,
		Payload: mustMarshal(t, reservation.ReservationCompleted{}),
	}))

	history, found, err := m.store.GetCustomerHistory(ctx, "cust-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, history.Purchases, 1)
	assert.Equal(t, "r1", history.Purchases[0].ReservationID)
	assert.Equal(t, 2, history.Purchases[0].Quantity)
	assert.Equal(t, PurchaseActive, history.Purchases[0].Status)
	assert.NotEmpty(t, history.Purchases[0].ConfirmationCode)

	analytics, found, err := m.store.GetSalesAnalytics(ctx, "evt-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2500), analytics.TotalRevenue)
	assert.Equal(t, 2, analytics.TotalSold)
	assert.Equal(t, int64(2500), analytics.BySection["ga"].Revenue)
	assert.Equal(t, 2, analytics.BySection["ga"].SeatsSold)
}

func TestManager_ReservationCompensatedRefundsPurchase(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()
	streamID := "reservation-r1"

	require.NoError(t, m.Handle(ctx, eventbus.SerializedEvent{
		StreamID: streamID, Version: 0, EventType: reservation.EventTypeReservationInitiated,
		Payload: mustMarshal(t, reservation.ReservationInitiated{CustomerID: "cust-1", EventID: "evt-1", Section: "ga", Amount: 2500}),
	}))
	require.NoError(t, m.Handle(ctx, eventbus.SerializedEvent{
		StreamID: streamID, Version: 1, EventType: reservation.EventTypeReservationCompleted,
		Payload: mustMarshal(t, reservation.ReservationCompleted{}),
	}))
	require.NoError(t, m.Handle(ctx, eventbus.SerializedEvent{
		StreamID: streamID, Version: 2, EventType: reservation.EventTypeReservationCompensated,
		Payload: mustMarshal(t, reservation.ReservationCompensated{}),
	}))

	history, found, err := m.store.GetCustomerHistory(ctx, "cust-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, history.Purchases, 1)
	assert.Equal(t, PurchaseRefunded, history.Purchases[0].Status)
}

func TestManager_RebuildReplaysFromEventStore(t *testing.T) {
	ctx := context.Background()
	m, es := newTestManager()

	streamID := inventory.StreamID("evt-1", "ga")
	_, err := es.Append(ctx, streamID, nil, []eventstore.EventRecord{
		{EventType: inventory.EventTypeInventoryAdded, Payload: mustMarshal(t, inventory.InventoryAdded{Capacity: 2, UnitPrice: 750})},
	})
	require.NoError(t, err)

	require.NoError(t, m.Rebuild(ctx))

	snapshot, found, err := m.AvailableSeats(ctx, "evt-1", "ga")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(750), snapshot.UnitPrice)
	assert.Len(t, snapshot.Seats, 2)
}
