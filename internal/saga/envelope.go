// Package saga hosts the transport-level plumbing shared by every
// aggregate's command/event traffic: a common envelope shape carrying
// correlation, causation and idempotency, plus a durable timeout
// scheduler. The saga logic itself -- which step follows which, what
// compensates what -- lives in the reservation aggregate's reducer;
// this package only carries messages between aggregates and makes sure
// a step that never replies still gets compensated, grounded on
// apps/booking-service/internal/saga's SagaMessage/TimeoutCheck shapes.
package saga

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps a command or event published on an aggregate's bus
// topic, the way SagaMessage wraps every Kafka message the teacher's
// orchestrator sends: CorrelationID ties every message in one saga run
// together, CausationID records which message triggered this one, and
// IdempotencyKey lets a receiver safely ignore a redelivered command.
type Envelope struct {
	MessageID      string          `json:"message_id"`
	CorrelationID  string          `json:"correlation_id"`
	CausationID    string          `json:"causation_id,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	CreatedAt      time.Time       `json:"created_at"`
	Payload        json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload and stamps it with a fresh message id.
// idempotencyKey should be stable across redeliveries of the same
// logical command (e.g. "<reservation_id>:<step>").
func NewEnvelope(correlationID, causationID, idempotencyKey string, payload any) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		MessageID:      uuid.New().String(),
		CorrelationID:  correlationID,
		CausationID:    causationID,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now(),
		Payload:        body,
	}, nil
}

// IdempotencyKey builds the stable key a receiver dedupes a step's
// commands by: the same saga instance retrying the same step always
// produces the same key.
func IdempotencyKey(sagaID, step string) string {
	return sagaID + ":" + step
}
