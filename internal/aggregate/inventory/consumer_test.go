package inventory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/ticketcore/internal/aggregate/reservation"
	"github.com/prohmpiriya/ticketcore/internal/eventbus"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
)

func mustMarshalEvent(t *testing.T, eventType string, payload any) eventbus.SerializedEvent {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return eventbus.SerializedEvent{EventType: eventType, Payload: body}
}

func TestTranslate_ReserveSeatsCommand(t *testing.T) {
	event := mustMarshalEvent(t, reservation.InventoryActionReserveSeats, reservation.ReserveSeatsCommand{
		EventID: "evt-1", Section: "A", Quantity: 2, ReservationID: "r-1",
	})
	event.Metadata.CorrelationID = "corr-1"

	action, ok, err := Translate(event)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, KindReserveSeats, action.Kind)
	assert.Equal(t, "evt-1", action.ReserveSeats.EventID)
	assert.Equal(t, "A", action.ReserveSeats.Section)
	assert.Equal(t, 2, action.ReserveSeats.Quantity)
	assert.Equal(t, "r-1", action.ReserveSeats.ReservationID)
	assert.Equal(t, "corr-1", action.ReserveSeats.CorrelationID)
}

func TestTranslate_ReleaseAndConfirmSale(t *testing.T) {
	release := mustMarshalEvent(t, reservation.InventoryActionReleaseSeats, reservation.ReleaseSeatsCommand{
		EventID: "evt-1", Section: "A", ReservationID: "r-1",
	})
	action, ok, err := Translate(release)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, KindReleaseSeats, action.Kind)

	confirm := mustMarshalEvent(t, reservation.InventoryActionConfirmSale, reservation.ConfirmSaleCommand{
		EventID: "evt-1", Section: "A", ReservationID: "r-1",
	})
	action, ok, err = Translate(confirm)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, KindConfirmSale, action.Kind)
}

func TestTranslate_UnknownEventTypeIsSkipped(t *testing.T) {
	event := eventbus.SerializedEvent{EventType: "SomethingElse", Payload: []byte(`{}`)}
	_, ok, err := Translate(event)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewHydrate_PrefersProjectionSnapshot(t *testing.T) {
	store := eventstore.NewMemoryStore()
	snapshot := Snapshot{
		Version:   3,
		UnitPrice: 1500,
		Seats:     []SeatSnapshot{{ID: "1", Status: SeatAvailable}},
	}
	hydrate := NewHydrate(store, stubProjections{snapshot: snapshot, found: true})

	event := mustMarshalEvent(t, reservation.InventoryActionReserveSeats, reservation.ReserveSeatsCommand{
		EventID: "evt-1", Section: "A",
	})
	state, err := hydrate(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, state.Loaded)
	assert.Equal(t, eventstore.Version(3), state.Version)
	assert.Equal(t, int64(1500), state.UnitPrice)
}

func TestNewHydrate_FallsBackToReplayWhenNoProjection(t *testing.T) {
	store := eventstore.NewMemoryStore()
	hydrate := NewHydrate(store, nil)

	event := mustMarshalEvent(t, reservation.InventoryActionReserveSeats, reservation.ReserveSeatsCommand{
		EventID: "evt-9", Section: "B",
	})
	state, err := hydrate(context.Background(), event)
	require.NoError(t, err)
	assert.False(t, state.Loaded)
	assert.Equal(t, "evt-9", state.EventID)
	assert.Equal(t, "B", state.Section)
}
