// Package dlq parks events that the consumer runtime could not process
// after exhausting its retry budget, grounded on pkg/retry.DLQMessage's
// field shape (payload, error, attempts, first/last timestamps, source)
// generalized from a Kafka-republish helper into an admin-queryable
// store with its own status machine.
package dlq

import (
	"context"
	"time"

	"github.com/prohmpiriya/ticketcore/internal/corerr"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
)

// Status is an entry's position in the dead-letter lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusResolved   Status = "resolved"
	StatusDiscarded  Status = "discarded"
)

// Entry is one parked event, with enough of the original message and
// failure history to diagnose and replay it.
type Entry struct {
	ID        string
	Topic     string
	StreamID  string
	EventType string
	Payload   []byte
	Metadata  eventstore.Metadata

	LastError     string
	RetryCount    int
	FirstFailedAt time.Time
	LastFailedAt  time.Time

	Status Status

	ResolvedBy    string
	ResolvedNotes string

	DiscardedReason string
	DiscardedNotes  string
}

// Stats summarizes entry counts per status, for operator dashboards.
type Stats struct {
	Pending    int
	Processing int
	Resolved   int
	Discarded  int
}

// Publisher re-injects a retried entry through the normal publish
// path. Retry hands the caller a fresh correlation id so the replay's
// causal chain is distinguishable from the original failed attempt.
type Publisher func(ctx context.Context, entry Entry, correlationID string) error

// Store is the admin-facing dead-letter queue.
type Store interface {
	// Park records a new failed event, defaulting Status to Pending
	// and assigning an ID if entry.ID is empty. Returns the final ID.
	Park(ctx context.Context, entry Entry) (string, error)

	Get(ctx context.Context, id string) (Entry, bool, error)

	// ListPending returns up to limit Pending entries, oldest first.
	ListPending(ctx context.Context, limit int) ([]Entry, error)

	// Retry re-injects entry id via publish, permitted only from
	// Pending. The entry moves to Processing for the duration of the
	// call, then to Resolved on publish success or back to Pending
	// with RetryCount incremented on failure.
	Retry(ctx context.Context, id string, publish Publisher) error

	// Resolve marks a Pending or Processing entry handled without a
	// replay (e.g. the underlying issue was fixed out of band).
	Resolve(ctx context.Context, id, notes string) error

	// Discard marks an entry as permanently abandoned.
	Discard(ctx context.Context, id, reason, notes string) error

	Stats(ctx context.Context) (Stats, error)
}

// ErrNotFound is returned when an operation targets an unknown entry id.
var ErrNotFound = corerr.New(corerr.KindNotFound, "dlq: entry not found")

// ErrNotPending is returned by Retry when the entry is not in Pending.
var ErrNotPending = corerr.New(corerr.KindValidation, "dlq: entry is not pending")
