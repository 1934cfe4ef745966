// Package eventstore implements the append-only per-stream event log
// described in the core runtime's design: optimistic concurrency via
// expected-version checks, schema-versioned payloads, and a
// (stream_id, version) uniqueness constraint enforced both by
// application logic and by the storage layer as defense-in-depth.
package eventstore

import (
	"context"
	"errors"
	"time"

	"github.com/prohmpiriya/ticketcore/internal/corerr"
)

// Version numbers a stream's events, starting at 0 for the first event.
type Version = uint64

// Metadata carries causal and audit context alongside every event, per
// the design's requirement that correlation_id always travel with an
// event so a saga's causal chain stays queryable.
type Metadata struct {
	CorrelationID string    `json:"correlation_id"`
	CausationID   string    `json:"causation_id,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventRecord is one stored event. Payload is the schema-versioned,
// JSON-encoded domain event body; EventStore never interprets it.
type EventRecord struct {
	StreamID           string
	Version            Version
	EventType          string
	EventSchemaVersion uint32
	Payload            []byte
	Metadata           Metadata
	CreatedAt          time.Time
}

// ErrStreamNotFound is not returned by either store in this package:
// Load on a stream that has never been appended to returns an empty
// slice and a nil error, and hydration starts from the zero state.
var ErrStreamNotFound = errors.New("eventstore: stream not found")

// Store is the append-only log every aggregate and projection reads
// from and writes to.
type Store interface {
	// Append writes events to stream atomically, assigning contiguous
	// versions starting at current+1 (or 0 for an empty stream).
	// expectedVersion, when non-nil, must match the stream's current
	// version; when nil, the stream must be empty. Otherwise the append
	// fails with *corerr.ConcurrencyConflict and nothing is written.
	Append(ctx context.Context, streamID string, expectedVersion *Version, events []EventRecord) (Version, error)

	// Load returns events for streamID with version >= fromVersion (or
	// all events when fromVersion is nil), ordered by version.
	Load(ctx context.Context, streamID string, fromVersion *Version) ([]EventRecord, error)

	// ListStreams returns stream ids matching prefix (or all streams
	// when prefix is ""), for projection rebuild and admin tooling.
	ListStreams(ctx context.Context, prefix string) ([]string, error)

	// CurrentVersion returns a stream's current version, or (0, false)
	// if the stream is empty.
	CurrentVersion(ctx context.Context, streamID string) (Version, bool, error)
}

// DLQReplayer is implemented by stores that support re-appending an
// event that was previously parked in the dead-letter queue, bypassing
// the normal expected-version check since the original append already
// reserved that version (the event is being replayed, not newly
// produced).
type DLQReplayer interface {
	AppendFromDLQ(ctx context.Context, event EventRecord) error
}

func concurrencyConflict(streamID string, expected *Version, actual Version) error {
	return (&corerr.ConcurrencyConflict{StreamID: streamID, Expected: expected, Actual: actual}).AsCoreError()
}
