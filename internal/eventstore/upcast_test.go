package eventstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_NormalizeUnknownEventTypePassesThrough(t *testing.T) {
	r := NewRegistry()
	ev := EventRecord{EventType: "Unregistered", EventSchemaVersion: 1, Payload: []byte(`{"a":1}`)}

	out, err := r.Normalize(ev)
	require.NoError(t, err)
	assert.Equal(t, ev, out)
}

func TestRegistry_NormalizeAtLatestVersionPassesThrough(t *testing.T) {
	r := NewRegistry()
	r.DeclareLatest("SeatReserved", 1)
	ev := EventRecord{EventType: "SeatReserved", EventSchemaVersion: 1, Payload: []byte(`{}`)}

	out, err := r.Normalize(ev)
	require.NoError(t, err)
	assert.Equal(t, ev, out)
}

func TestRegistry_NormalizeAppliesChainedUpcasters(t *testing.T) {
	r := NewRegistry()
	r.Register("PaymentCompleted", 1, func(payload []byte) ([]byte, error) {
		return []byte(`{"amount_cents":100,"currency":"USD"}`), nil
	})
	r.Register("PaymentCompleted", 2, func(payload []byte) ([]byte, error) {
		return []byte(`{"amount_cents":100,"currency":"USD","gateway":"stripe"}`), nil
	})

	ev := EventRecord{EventType: "PaymentCompleted", EventSchemaVersion: 1, Payload: []byte(`{"amount":1.00}`)}
	out, err := r.Normalize(ev)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), out.EventSchemaVersion)
	assert.Contains(t, string(out.Payload), "gateway")
}

func TestRegistry_NormalizeMissingUpcasterFails(t *testing.T) {
	r := NewRegistry()
	r.DeclareLatest("SeatReserved", 2)
	ev := EventRecord{EventType: "SeatReserved", EventSchemaVersion: 1, Payload: []byte(`{}`)}

	_, err := r.Normalize(ev)
	assert.Error(t, err)
}
