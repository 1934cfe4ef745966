package projection

import (
	"context"
	"sync"

	"github.com/prohmpiriya/ticketcore/internal/eventstore"
)

// Checkpoint tracks the last applied version per stream, the
// projection-side counterpart to eventbus.CheckpointStore: it is what
// makes "replaying any event yields the same resulting model" safe
// against redelivery (a retried or DLQ-replayed event whose version
// was already applied is a no-op).
type Checkpoint interface {
	LastApplied(ctx context.Context, streamID string) (eventstore.Version, bool, error)
	SetLastApplied(ctx context.Context, streamID string, version eventstore.Version) error
	Reset(ctx context.Context) error
}

// MemoryCheckpoint is an in-process Checkpoint, shaped like
// eventbus.MemoryCheckpointStore.
type MemoryCheckpoint struct {
	mu   sync.Mutex
	last map[string]eventstore.Version
}

func NewMemoryCheckpoint() *MemoryCheckpoint {
	return &MemoryCheckpoint{last: make(map[string]eventstore.Version)}
}

func (c *MemoryCheckpoint) LastApplied(ctx context.Context, streamID string) (eventstore.Version, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.last[streamID]
	return v, ok, nil
}

func (c *MemoryCheckpoint) SetLastApplied(ctx context.Context, streamID string, version eventstore.Version) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[streamID] = version
	return nil
}

func (c *MemoryCheckpoint) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = make(map[string]eventstore.Version)
	return nil
}

var _ Checkpoint = (*MemoryCheckpoint)(nil)
