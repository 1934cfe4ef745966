// Package eventbus publishes committed events to interested consumers
// (projections, sagas, other bounded contexts) and guarantees
// per-stream publish order the way the design requires: messages for
// the same stream_id, used as partition key, are delivered to a given
// consumer group in publish order.
package eventbus

import (
	"context"
	"time"

	"github.com/prohmpiriya/ticketcore/internal/eventstore"
)

// SerializedEvent is the wire representation of a committed event,
// matching the design's bus payload shape.
type SerializedEvent struct {
	StreamID           string              `json:"stream_id"`
	Version            eventstore.Version  `json:"version"`
	EventType          string              `json:"event_type"`
	EventSchemaVersion uint32              `json:"event_schema_version"`
	Payload            []byte              `json:"payload"`
	Metadata           eventstore.Metadata `json:"metadata"`
	CreatedAt          time.Time           `json:"created_at"`
}

// FromEventRecord converts a stored event into its wire form. The
// partition key for ordering is always StreamID.
func FromEventRecord(topic string, ev eventstore.EventRecord) SerializedEvent {
	return SerializedEvent{
		StreamID:           ev.StreamID,
		Version:            ev.Version,
		EventType:          ev.EventType,
		EventSchemaVersion: ev.EventSchemaVersion,
		Payload:            ev.Payload,
		Metadata:           ev.Metadata,
		CreatedAt:          ev.CreatedAt,
	}
}

// Handler processes one delivered event. Returning an error leaves the
// message uncommitted so the runtime's retry/DLQ policy applies.
type Handler func(ctx context.Context, event SerializedEvent) error

// Bus is the publish/subscribe transport between the event store and
// projections/sagas.
type Bus interface {
	// Publish sends event to topic, partitioned by event.StreamID so
	// same-stream events stay ordered for any one consumer group.
	Publish(ctx context.Context, topic string, event SerializedEvent) error

	// Subscribe joins consumer group groupID on topics and invokes
	// handler for each delivered event until ctx is cancelled. Blocks.
	Subscribe(ctx context.Context, topics []string, groupID string, handler Handler) error

	// ListTopics returns known topics, for admin tooling.
	ListTopics(ctx context.Context) ([]string, error)

	// Health reports whether the bus is reachable.
	Health(ctx context.Context) error

	// Close releases transport resources.
	Close() error
}
