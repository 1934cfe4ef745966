package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"

	"github.com/prohmpiriya/ticketcore/internal/aggregate/inventory"
	"github.com/prohmpiriya/ticketcore/internal/aggregate/payment"
	"github.com/prohmpiriya/ticketcore/internal/aggregate/reservation"
	"github.com/prohmpiriya/ticketcore/internal/corerr"
	"github.com/prohmpiriya/ticketcore/internal/eventbus"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
	"github.com/prohmpiriya/ticketcore/internal/logging"
)

// Manager applies committed domain events to every read model this
// package owns. It is the EventHandler a projection-updater consumer
// role binds to internal/consumer.Runtime, and it also implements
// inventory.ProjectionQuerier so the inventory aggregate can read
// available_seats directly without going through the bus.
type Manager struct {
	store      Store
	cache      *RedisCache
	checkpoint Checkpoint
	eventStore eventstore.Store
	logger     logging.Logger
}

// NewManager constructs a Manager. cache may be nil to run without a
// hot-cache tier (the durable Store alone is always correct, just
// slower under load).
func NewManager(store Store, checkpoint Checkpoint, eventStore eventstore.Store, cache *RedisCache, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Manager{store: store, cache: cache, checkpoint: checkpoint, eventStore: eventStore, logger: logger}
}

// Handle applies one delivered event, skipping it if its version was
// already applied for that stream (idempotent replay) and advancing
// the checkpoint only once every model write has committed.
func (m *Manager) Handle(ctx context.Context, event eventbus.SerializedEvent) error {
	last, ok, err := m.checkpoint.LastApplied(ctx, event.StreamID)
	if err != nil {
		return corerr.Wrap(corerr.KindStorage, "read projection checkpoint", err)
	}
	if ok && event.Version <= last {
		return nil
	}

	if err := m.apply(ctx, event); err != nil {
		return err
	}

	return m.checkpoint.SetLastApplied(ctx, event.StreamID, event.Version)
}

func (m *Manager) apply(ctx context.Context, event eventbus.SerializedEvent) error {
	switch {
	case strings.HasPrefix(event.StreamID, "inventory-"):
		return m.applyInventoryEvent(ctx, event)
	case strings.HasPrefix(event.StreamID, "reservation-"):
		return m.applyReservationEvent(ctx, event)
	case strings.HasPrefix(event.StreamID, "payment-"):
		return m.applyPaymentEvent(ctx, event)
	}
	return nil
}

// --- available_seats, from the inventory stream ---

func (m *Manager) applyInventoryEvent(ctx context.Context, event eventbus.SerializedEvent) error {
	key := event.StreamID
	model, found, err := m.store.GetAvailableSeats(ctx, key)
	if err != nil {
		return corerr.Wrap(corerr.KindStorage, "load available_seats", err)
	}
	if !found {
		model = AvailableSeats{Seats: map[string]inventory.SeatSnapshot{}}
	}

	switch event.EventType {
	case inventory.EventTypeInventoryAdded:
		var payload inventory.InventoryAdded
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return corerr.Wrap(corerr.KindSerialization, "unmarshal InventoryAdded", err)
		}
		model.UnitPrice = payload.UnitPrice
		model.Seats = make(map[string]inventory.SeatSnapshot, payload.Capacity)
		for i := 1; i <= payload.Capacity; i++ {
			id := strconv.Itoa(i)
			model.Seats[id] = inventory.SeatSnapshot{ID: id, Status: inventory.SeatAvailable}
		}

	case inventory.EventTypeSeatsReserved:
		var payload inventory.SeatsReservedPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return corerr.Wrap(corerr.KindSerialization, "unmarshal SeatsReserved", err)
		}
		for _, id := range payload.SeatIDs {
			model.Seats[id] = inventory.SeatSnapshot{ID: id, Status: inventory.SeatReserved, ReservationID: payload.ReservationID}
		}

	case inventory.EventTypeSeatsReleased:
		var payload inventory.SeatsReleasedPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return corerr.Wrap(corerr.KindSerialization, "unmarshal SeatsReleased", err)
		}
		for _, id := range payload.SeatIDs {
			model.Seats[id] = inventory.SeatSnapshot{ID: id, Status: inventory.SeatAvailable}
		}

	case inventory.EventTypeSeatsSold:
		var payload inventory.SeatsSoldPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return corerr.Wrap(corerr.KindSerialization, "unmarshal SeatsSold", err)
		}
		for _, id := range payload.SeatIDs {
			model.Seats[id] = inventory.SeatSnapshot{ID: id, Status: inventory.SeatSold, ReservationID: payload.ReservationID}
		}

	default:
		return nil
	}

	model.Version = event.Version
	if err := m.store.PutAvailableSeats(ctx, key, model); err != nil {
		return corerr.Wrap(corerr.KindStorage, "write available_seats", err)
	}
	if m.cache != nil {
		if err := m.cache.Put(ctx, key, model); err != nil {
			m.logger.WarnContext(ctx, "projection: cache write failed, durable store remains correct", "key", key, "err", err)
		}
	}
	return nil
}

// AvailableSeats implements inventory.ProjectionQuerier: the
// projection-assisted hydration shortcut's cheap read path. The cache
// is consulted first; a miss or a disabled cache falls back to Store.
func (m *Manager) AvailableSeats(ctx context.Context, eventID, section string) (inventory.Snapshot, bool, error) {
	key := inventory.StreamID(eventID, section)

	if m.cache != nil {
		if cached, found, err := m.cache.Get(ctx, key); err == nil && found {
			return toSnapshot(cached), true, nil
		}
	}

	model, found, err := m.store.GetAvailableSeats(ctx, key)
	if err != nil {
		return inventory.Snapshot{}, false, err
	}
	if !found {
		return inventory.Snapshot{}, false, nil
	}
	return toSnapshot(model), true, nil
}

// toSnapshot orders seats numerically by id (they are allocated "1"
// through capacity) since the reducer's seat selection walks this
// order to pick the lowest-numbered available seats first; a map's
// iteration order is not a substitute for that.
func toSnapshot(model AvailableSeats) inventory.Snapshot {
	seats := make([]inventory.SeatSnapshot, 0, len(model.Seats))
	for _, s := range model.Seats {
		seats = append(seats, s)
	}
	sort.Slice(seats, func(i, j int) bool {
		a, errA := strconv.Atoi(seats[i].ID)
		b, errB := strconv.Atoi(seats[j].ID)
		if errA != nil || errB != nil {
			return seats[i].ID < seats[j].ID
		}
		return a < b
	})
	return inventory.Snapshot{Version: model.Version, UnitPrice: model.UnitPrice, Seats: seats}
}

// --- reservation_ownership, customer_history, sales_analytics, from the reservation stream ---

func (m *Manager) applyReservationEvent(ctx context.Context, event eventbus.SerializedEvent) error {
	reservationID := strings.TrimPrefix(event.StreamID, "reservation-")

	switch event.EventType {
	case reservation.EventTypeReservationInitiated:
		var payload reservation.ReservationInitiated
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return corerr.Wrap(corerr.KindSerialization, "unmarshal ReservationInitiated", err)
		}
		ownership := ReservationOwnership{
			ReservationID: reservationID, CustomerID: payload.CustomerID,
			EventID: payload.EventID, Section: payload.Section,
			Quantity: payload.Quantity, Amount: payload.Amount,
		}
		return m.store.PutReservationOwnership(ctx, ownership)

	case reservation.EventTypeReservationCompleted:
		ownership, found, err := m.store.GetReservationOwnership(ctx, reservationID)
		if err != nil {
			return corerr.Wrap(corerr.KindStorage, "load reservation_ownership", err)
		}
		if !found {
			return nil
		}
		if err := m.recordPurchase(ctx, ownership, PurchaseActive); err != nil {
			return err
		}
		return m.recordSale(ctx, ownership)

	case reservation.EventTypeReservationCompensated:
		ownership, found, err := m.store.GetReservationOwnership(ctx, reservationID)
		if err != nil {
			return corerr.Wrap(corerr.KindStorage, "load reservation_ownership", err)
		}
		if !found {
			return nil
		}
		// Only a reservation that had previously completed has a
		// purchase row to refund; compensation from an earlier stage
		// of the saga never created one.
		history, found, err := m.store.GetCustomerHistory(ctx, ownership.CustomerID)
		if err != nil {
			return corerr.Wrap(corerr.KindStorage, "load customer_history", err)
		}
		if !found {
			return nil
		}
		updated := false
		for i := range history.Purchases {
			if history.Purchases[i].ReservationID == reservationID {
				history.Purchases[i].Status = PurchaseRefunded
				updated = true
			}
		}
		if !updated {
			return nil
		}
		return m.store.PutCustomerHistory(ctx, history)

	case reservation.EventTypeReservationCancelled, reservation.EventTypeReservationExpired, reservation.EventTypeReservationFailed:
		// A reservation that never completed never produced a purchase
		// row; nothing to update in customer_history or sales_analytics.
		return nil
	}
	return nil
}

func (m *Manager) recordPurchase(ctx context.Context, ownership ReservationOwnership, status PurchaseStatus) error {
	history, found, err := m.store.GetCustomerHistory(ctx, ownership.CustomerID)
	if err != nil {
		return corerr.Wrap(corerr.KindStorage, "load customer_history", err)
	}
	if !found {
		history = CustomerHistory{CustomerID: ownership.CustomerID}
	}
	for _, p := range history.Purchases {
		if p.ReservationID == ownership.ReservationID {
			return nil // already recorded, replay is a no-op
		}
	}
	history.Purchases = append(history.Purchases, Purchase{
		ReservationID:    ownership.ReservationID,
		EventID:          ownership.EventID,
		Section:          ownership.Section,
		Quantity:         ownership.Quantity,
		Amount:           ownership.Amount,
		ConfirmationCode: confirmationCode(ownership.ReservationID),
		Status:           status,
	})
	return m.store.PutCustomerHistory(ctx, history)
}

func (m *Manager) recordSale(ctx context.Context, ownership ReservationOwnership) error {
	analytics, found, err := m.store.GetSalesAnalytics(ctx, ownership.EventID)
	if err != nil {
		return corerr.Wrap(corerr.KindStorage, "load sales_analytics", err)
	}
	if !found {
		analytics = SalesAnalytics{EventID: ownership.EventID, BySection: map[string]SectionSales{}}
	}
	if analytics.BySection == nil {
		analytics.BySection = map[string]SectionSales{}
	}
	section := analytics.BySection[ownership.Section]
	section.Section = ownership.Section
	section.Revenue += ownership.Amount
	section.SeatsSold += ownership.Quantity
	section.Reservations++
	analytics.BySection[ownership.Section] = section

	analytics.TotalRevenue += ownership.Amount
	analytics.TotalSold += ownership.Quantity
	return m.store.PutSalesAnalytics(ctx, analytics)
}

// confirmationCode is deterministic in the reservation id so replaying
// ReservationCompleted always produces the same code.
func confirmationCode(reservationID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(reservationID))
	return fmt.Sprintf("TKT-%08X", h.Sum32())
}

// --- payment_ownership, from the payment stream ---

func (m *Manager) applyPaymentEvent(ctx context.Context, event eventbus.SerializedEvent) error {
	paymentID := strings.TrimPrefix(event.StreamID, "payment-")

	if event.EventType != payment.EventTypePaymentInitiated {
		return nil
	}
	var payload payment.PaymentInitiated
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return corerr.Wrap(corerr.KindSerialization, "unmarshal PaymentInitiated", err)
	}
	return m.store.PutPaymentOwnership(ctx, PaymentOwnership{PaymentID: paymentID, ReservationID: payload.ReservationID})
}

// Rebuild resets every read model and checkpoint, then replays the
// full event log stream by stream through the same Handle logic used
// for live consumption. It does not touch the bus: the rebuild
// protocol bypasses consumer delivery entirely and reads straight from
// the event store, so it is safe to run concurrently with live readers
// (in-flight reads just see stale data until the rebuild catches up,
// never a torn write, since each stream's events still apply in
// version order and Handle's idempotency check still holds).
func (m *Manager) Rebuild(ctx context.Context) error {
	if err := m.store.Reset(ctx); err != nil {
		return corerr.Wrap(corerr.KindStorage, "reset projection store for rebuild", err)
	}
	if err := m.checkpoint.Reset(ctx); err != nil {
		return corerr.Wrap(corerr.KindStorage, "reset projection checkpoint for rebuild", err)
	}

	streamIDs, err := m.eventStore.ListStreams(ctx, "")
	if err != nil {
		return corerr.Wrap(corerr.KindStorage, "list streams for rebuild", err)
	}

	for _, streamID := range streamIDs {
		records, err := m.eventStore.Load(ctx, streamID, nil)
		if err != nil {
			return corerr.Wrap(corerr.KindStorage, fmt.Sprintf("load stream %s for rebuild", streamID), err)
		}
		for _, record := range records {
			event := eventbus.FromEventRecord("", record)
			if err := m.Handle(ctx, event); err != nil {
				return corerr.Wrap(corerr.KindStorage, fmt.Sprintf("rebuild stream %s", streamID), err)
			}
		}
	}
	return nil
}

var _ inventory.ProjectionQuerier = (*Manager)(nil)
