package eventstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store, grounded on the same
// mutex-guarded-map-of-slices shape used by in-memory event stores
// across the example pack. It is the test double for aggregate and
// projection unit tests; production deployments use PostgresStore.
type MemoryStore struct {
	mu      sync.Mutex
	streams map[string][]EventRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{streams: make(map[string][]EventRecord)}
}

func (s *MemoryStore) Append(ctx context.Context, streamID string, expectedVersion *Version, events []EventRecord) (Version, error) {
	if len(events) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.streams[streamID]
	current, hasCurrent := currentVersionLocked(existing)

	if expectedVersion != nil {
		if !hasCurrent {
			return 0, concurrencyConflict(streamID, expectedVersion, 0)
		}
		if current != *expectedVersion {
			return 0, concurrencyConflict(streamID, expectedVersion, current)
		}
	} else if hasCurrent {
		return 0, concurrencyConflict(streamID, nil, current)
	}

	next := Version(0)
	if hasCurrent {
		next = current + 1
	}

	appended := make([]EventRecord, len(events))
	for i, ev := range events {
		ev.StreamID = streamID
		ev.Version = next + Version(i)
		appended[i] = ev
	}

	s.streams[streamID] = append(existing, appended...)
	return appended[len(appended)-1].Version, nil
}

func (s *MemoryStore) Load(ctx context.Context, streamID string, fromVersion *Version) ([]EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.streams[streamID]
	if fromVersion == nil {
		out := make([]EventRecord, len(events))
		copy(out, events)
		return out, nil
	}

	var out []EventRecord
	for _, ev := range events {
		if ev.Version >= *fromVersion {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListStreams(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for id := range s.streams {
		if prefix == "" || strings.HasPrefix(id, prefix) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) CurrentVersion(ctx context.Context, streamID string) (Version, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := currentVersionLocked(s.streams[streamID])
	return v, ok, nil
}

// AppendFromDLQ re-appends a DLQ-parked event at its original version,
// bypassing the expected-version check since the version slot was
// already reserved by the original (failed-to-publish, not
// failed-to-persist) append.
func (s *MemoryStore) AppendFromDLQ(ctx context.Context, event EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.streams[event.StreamID]
	for _, ev := range existing {
		if ev.Version == event.Version {
			return nil // already present; replay is idempotent
		}
	}
	s.streams[event.StreamID] = append(existing, event)
	sort.Slice(s.streams[event.StreamID], func(i, j int) bool {
		return s.streams[event.StreamID][i].Version < s.streams[event.StreamID][j].Version
	})
	return nil
}

func currentVersionLocked(events []EventRecord) (Version, bool) {
	if len(events) == 0 {
		return 0, false
	}
	return events[len(events)-1].Version, true
}

var (
	_ Store       = (*MemoryStore)(nil)
	_ DLQReplayer = (*MemoryStore)(nil)
)
