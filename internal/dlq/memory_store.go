package dlq

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and for the single-node
// worker mains, mirroring the role eventstore.MemoryStore and
// eventbus.InMemoryBus play for the rest of this module.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (s *MemoryStore) Park(ctx context.Context, entry Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Status == "" {
		entry.Status = StatusPending
	}
	if entry.FirstFailedAt.IsZero() {
		entry.FirstFailedAt = entry.LastFailedAt
	}

	cp := entry
	s.entries[cp.ID] = &cp
	s.order = append(s.order, cp.ID)
	return cp.ID, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false, nil
	}
	return *e, true, nil
}

func (s *MemoryStore) ListPending(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []Entry
	for _, id := range s.order {
		e := s.entries[id]
		if e.Status == StatusPending {
			pending = append(pending, *e)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].FirstFailedAt.Before(pending[j].FirstFailedAt) })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *MemoryStore) Retry(ctx context.Context, id string, publish Publisher) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if e.Status != StatusPending {
		s.mu.Unlock()
		return ErrNotPending
	}
	e.Status = StatusProcessing
	snapshot := *e
	s.mu.Unlock()

	correlationID := uuid.New().String()
	err := publish(ctx, snapshot, correlationID)

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok = s.entries[id]
	if !ok {
		return ErrNotFound
	}
	if err != nil {
		e.Status = StatusPending
		e.RetryCount++
		e.LastError = err.Error()
		e.LastFailedAt = time.Now()
		return err
	}
	e.Status = StatusResolved
	e.ResolvedNotes = "re-injected via retry, correlation_id=" + correlationID
	return nil
}

func (s *MemoryStore) Resolve(ctx context.Context, id, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = StatusResolved
	e.ResolvedNotes = notes
	return nil
}

func (s *MemoryStore) Discard(ctx context.Context, id, reason, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = StatusDiscarded
	e.DiscardedReason = reason
	e.DiscardedNotes = notes
	return nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	for _, e := range s.entries {
		switch e.Status {
		case StatusPending:
			st.Pending++
		case StatusProcessing:
			st.Processing++
		case StatusResolved:
			st.Resolved++
		case StatusDiscarded:
			st.Discarded++
		}
	}
	return st, nil
}

var _ Store = (*MemoryStore)(nil)
