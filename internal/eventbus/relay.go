package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/prohmpiriya/ticketcore/internal/corerr"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
	"github.com/prohmpiriya/ticketcore/internal/logging"
	"github.com/prohmpiriya/ticketcore/internal/retry"
)

// CheckpointStore tracks the last version published per stream, the
// same role outbox_repository's pending/published status plays for
// the teacher's outbox table, adapted from per-message status to
// per-stream watermark since every committed event is relayed (there
// is no separate decision of whether an event belongs in the outbox).
type CheckpointStore interface {
	LastPublished(ctx context.Context, streamID string) (eventstore.Version, bool, error)
	SetLastPublished(ctx context.Context, streamID string, version eventstore.Version) error
}

// TopicRouter maps an event type to the topic it publishes on.
type TopicRouter func(eventType string) string

// Relay polls the event store for newly committed events and
// publishes them to the bus, tracking progress per stream so a
// restart resumes without skipping. The checkpoint is written after
// each publish, so an event whose checkpoint write did not land before
// a crash is published again (at-least-once). This gives the
// append-then-publish pair the same atomicity guarantee the outbox
// pattern gives the teacher's booking service: the event is durably
// committed before anything attempts to publish it, and publish
// failures are retried without losing the event.
type Relay struct {
	store      eventstore.Store
	bus        Bus
	checkpoint CheckpointStore
	router     TopicRouter
	retrier    *retry.Retrier
	logger     logging.Logger

	pollInterval time.Duration
	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// RelayConfig configures a Relay.
type RelayConfig struct {
	PollInterval time.Duration
	Retry        *retry.Config
	Logger       logging.Logger
}

// NewRelay constructs a Relay over the given streams source.
func NewRelay(store eventstore.Store, bus Bus, checkpoint CheckpointStore, router TopicRouter, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	return &Relay{
		store:        store,
		bus:          bus,
		checkpoint:   checkpoint,
		router:       router,
		retrier:      retry.New(cfg.Retry),
		logger:       cfg.Logger,
		pollInterval: cfg.PollInterval,
		stopCh:       make(chan struct{}),
	}
}

// Start begins polling in the background.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return corerr.New(corerr.KindValidation, "relay already running")
	}
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.loop(ctx)
	return nil
}

// Stop signals the poll loop to exit and waits for it.
func (r *Relay) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()
}

func (r *Relay) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.relayOnce(ctx)
		}
	}
}

// relayOnce publishes every unpublished event across all streams.
// Intended for a modest stream count per poll tick; high-throughput
// deployments shard streams across multiple Relay instances by prefix.
func (r *Relay) relayOnce(ctx context.Context) {
	streamIDs, err := r.store.ListStreams(ctx, "")
	if err != nil {
		r.logger.ErrorContext(ctx, "relay: list streams failed", "err", err)
		return
	}

	for _, streamID := range streamIDs {
		if err := r.relayStream(ctx, streamID); err != nil {
			r.logger.ErrorContext(ctx, "relay: stream failed", "stream_id", streamID, "err", err)
		}
	}
}

func (r *Relay) relayStream(ctx context.Context, streamID string) error {
	last, ok, err := r.checkpoint.LastPublished(ctx, streamID)
	if err != nil {
		return err
	}

	var from *eventstore.Version
	if ok {
		next := last + 1
		from = &next
	}

	events, err := r.store.Load(ctx, streamID, from)
	if err != nil {
		return err
	}

	for _, ev := range events {
		topic := r.router(ev.EventType)
		serialized := FromEventRecord(topic, ev)

		result := r.retrier.Do(ctx, func(ctx context.Context) error {
			return r.bus.Publish(ctx, topic, serialized)
		})
		if result.Err != nil {
			return result.Err
		}

		if err := r.checkpoint.SetLastPublished(ctx, streamID, ev.Version); err != nil {
			return err
		}
	}
	return nil
}

// MemoryCheckpointStore is an in-process CheckpointStore for tests.
type MemoryCheckpointStore struct {
	mu   sync.Mutex
	last map[string]eventstore.Version
}

// NewMemoryCheckpointStore returns an empty MemoryCheckpointStore.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{last: make(map[string]eventstore.Version)}
}

func (c *MemoryCheckpointStore) LastPublished(ctx context.Context, streamID string) (eventstore.Version, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.last[streamID]
	return v, ok, nil
}

func (c *MemoryCheckpointStore) SetLastPublished(ctx context.Context, streamID string, version eventstore.Version) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[streamID] = version
	return nil
}

var _ CheckpointStore = (*MemoryCheckpointStore)(nil)
