package eventstore

import (
	"fmt"

	"github.com/prohmpiriya/ticketcore/internal/corerr"
)

// UpcastFunc transforms a payload from schema version v to v+1.
// Additive fields don't need an upcaster; breaking changes do.
type UpcastFunc func(payload []byte) ([]byte, error)

// Registry maps (event_type, schema_version) to the upcaster that
// migrates it forward one version, and records each event type's
// current (latest) schema version.
//
// Unknown (event_type, schema_version) pairs fail deserialization
// explicitly rather than being silently accepted at the wrong shape;
// callers route that failure to the dead-letter queue.
type Registry struct {
	upcasters map[string]map[uint32]UpcastFunc
	latest    map[string]uint32
}

// NewRegistry returns an empty upcast registry.
func NewRegistry() *Registry {
	return &Registry{
		upcasters: make(map[string]map[uint32]UpcastFunc),
		latest:    make(map[string]uint32),
	}
}

// Register installs the upcaster migrating eventType from fromVersion
// to fromVersion+1, and bumps the event type's latest known version.
func (r *Registry) Register(eventType string, fromVersion uint32, fn UpcastFunc) {
	if r.upcasters[eventType] == nil {
		r.upcasters[eventType] = make(map[uint32]UpcastFunc)
	}
	r.upcasters[eventType][fromVersion] = fn
	if fromVersion+1 > r.latest[eventType] {
		r.latest[eventType] = fromVersion + 1
	}
}

// DeclareLatest records an event type's current schema version even
// when no upcaster is registered for it yet (the common case: version
// 1, additive-only so far).
func (r *Registry) DeclareLatest(eventType string, version uint32) {
	if version > r.latest[eventType] {
		r.latest[eventType] = version
	}
}

// Normalize migrates payload forward from its stored schema version to
// the registry's latest known version for that event type, applying
// each registered upcaster in sequence. An event type the registry has
// never heard of is returned unchanged at version 1 (the implicit
// default for event types with no breaking changes yet); at any later
// version it fails, as does a stored version newer than the type's
// latest known one.
func (r *Registry) Normalize(ev EventRecord) (EventRecord, error) {
	latest, known := r.latest[ev.EventType]
	if !known {
		if ev.EventSchemaVersion > 1 {
			return EventRecord{}, corerr.Wrap(corerr.KindSerialization,
				fmt.Sprintf("unknown schema version %d for unregistered event type %s", ev.EventSchemaVersion, ev.EventType), nil)
		}
		return ev, nil
	}
	if ev.EventSchemaVersion > latest {
		return EventRecord{}, corerr.Wrap(corerr.KindSerialization,
			fmt.Sprintf("%s schema version %d is newer than latest known version %d", ev.EventType, ev.EventSchemaVersion, latest), nil)
	}
	if ev.EventSchemaVersion == latest {
		return ev, nil
	}

	payload := ev.Payload
	version := ev.EventSchemaVersion
	for version < latest {
		chain, ok := r.upcasters[ev.EventType]
		if !ok {
			return EventRecord{}, corerr.Wrap(corerr.KindSerialization,
				fmt.Sprintf("no upcaster registered for %s at schema version %d", ev.EventType, version), nil)
		}
		fn, ok := chain[version]
		if !ok {
			return EventRecord{}, corerr.Wrap(corerr.KindSerialization,
				fmt.Sprintf("no upcaster registered for %s v%d -> v%d", ev.EventType, version, version+1), nil)
		}
		next, err := fn(payload)
		if err != nil {
			return EventRecord{}, corerr.Wrap(corerr.KindSerialization,
				fmt.Sprintf("upcast %s v%d -> v%d failed", ev.EventType, version, version+1), err)
		}
		payload = next
		version++
	}

	out := ev
	out.Payload = payload
	out.EventSchemaVersion = version
	return out, nil
}
