package projection

import (
	"context"
	"sync"
)

// Store is the durable home for every read model, one method pair per
// model the way the teacher splits ReservationRepository/
// ZoneRepository/BookingRepository into one repository per aggregate
// rather than a single catch-all. The durable table is always the
// source of truth on restart; a hot cache (cache.go) may front reads
// for available_seats without changing this contract.
type Store interface {
	GetAvailableSeats(ctx context.Context, key string) (AvailableSeats, bool, error)
	PutAvailableSeats(ctx context.Context, key string, model AvailableSeats) error

	GetSalesAnalytics(ctx context.Context, eventID string) (SalesAnalytics, bool, error)
	PutSalesAnalytics(ctx context.Context, model SalesAnalytics) error

	GetCustomerHistory(ctx context.Context, customerID string) (CustomerHistory, bool, error)
	PutCustomerHistory(ctx context.Context, model CustomerHistory) error

	GetReservationOwnership(ctx context.Context, reservationID string) (ReservationOwnership, bool, error)
	PutReservationOwnership(ctx context.Context, model ReservationOwnership) error

	GetPaymentOwnership(ctx context.Context, paymentID string) (PaymentOwnership, bool, error)
	PutPaymentOwnership(ctx context.Context, model PaymentOwnership) error

	// Reset clears every model, used by the rebuild admin operation.
	Reset(ctx context.Context) error
}

// MemoryStore is an in-process Store, standing in for the durable
// Postgres-backed tables the way eventstore.MemoryStore stands in for
// PostgresStore in unit tests.
type MemoryStore struct {
	mu sync.Mutex

	availableSeats       map[string]AvailableSeats
	salesAnalytics       map[string]SalesAnalytics
	customerHistory      map[string]CustomerHistory
	reservationOwnership map[string]ReservationOwnership
	paymentOwnership     map[string]PaymentOwnership
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		availableSeats:       make(map[string]AvailableSeats),
		salesAnalytics:       make(map[string]SalesAnalytics),
		customerHistory:      make(map[string]CustomerHistory),
		reservationOwnership: make(map[string]ReservationOwnership),
		paymentOwnership:     make(map[string]PaymentOwnership),
	}
}

func (s *MemoryStore) GetAvailableSeats(ctx context.Context, key string) (AvailableSeats, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.availableSeats[key]
	return m, ok, nil
}

func (s *MemoryStore) PutAvailableSeats(ctx context.Context, key string, model AvailableSeats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availableSeats[key] = model
	return nil
}

func (s *MemoryStore) GetSalesAnalytics(ctx context.Context, eventID string) (SalesAnalytics, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.salesAnalytics[eventID]
	return m, ok, nil
}

func (s *MemoryStore) PutSalesAnalytics(ctx context.Context, model SalesAnalytics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.salesAnalytics[model.EventID] = model
	return nil
}

func (s *MemoryStore) GetCustomerHistory(ctx context.Context, customerID string) (CustomerHistory, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.customerHistory[customerID]
	return m, ok, nil
}

func (s *MemoryStore) PutCustomerHistory(ctx context.Context, model CustomerHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customerHistory[model.CustomerID] = model
	return nil
}

func (s *MemoryStore) GetReservationOwnership(ctx context.Context, reservationID string) (ReservationOwnership, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.reservationOwnership[reservationID]
	return m, ok, nil
}

func (s *MemoryStore) PutReservationOwnership(ctx context.Context, model ReservationOwnership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservationOwnership[model.ReservationID] = model
	return nil
}

func (s *MemoryStore) GetPaymentOwnership(ctx context.Context, paymentID string) (PaymentOwnership, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.paymentOwnership[paymentID]
	return m, ok, nil
}

func (s *MemoryStore) PutPaymentOwnership(ctx context.Context, model PaymentOwnership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paymentOwnership[model.PaymentID] = model
	return nil
}

func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availableSeats = make(map[string]AvailableSeats)
	s.salesAnalytics = make(map[string]SalesAnalytics)
	s.customerHistory = make(map[string]CustomerHistory)
	s.reservationOwnership = make(map[string]ReservationOwnership)
	s.paymentOwnership = make(map[string]PaymentOwnership)
	return nil
}

var _ Store = (*MemoryStore)(nil)
