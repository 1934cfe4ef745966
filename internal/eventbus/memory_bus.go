package eventbus

import (
	"context"
	"sort"
	"sync"
)

// InMemoryBus is an in-process Bus for aggregate, saga, and projection
// unit tests. Each topic keeps a single append-only log, so every
// stream's events arrive in publish order (the ordering Kafka's
// partition-by-key gives), and each consumer group reads it through
// its own cursor, starting from the topic's first event. It dispatches to
// every subscribed consumer group independently, so one group's
// processing pace never blocks another's.
type InMemoryBus struct {
	mu     sync.Mutex
	topics map[string][]SerializedEvent
	groups map[string]map[string]int // topic -> group -> next index to deliver
	notify map[string]chan struct{}  // topic -> wakeup channel for subscribers
}

// NewInMemoryBus returns an empty InMemoryBus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		topics: make(map[string][]SerializedEvent),
		groups: make(map[string]map[string]int),
		notify: make(map[string]chan struct{}),
	}
}

func (b *InMemoryBus) Publish(ctx context.Context, topic string, event SerializedEvent) error {
	b.mu.Lock()
	b.topics[topic] = append(b.topics[topic], event)
	ch, ok := b.notify[topic]
	b.mu.Unlock()

	if ok {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (b *InMemoryBus) Subscribe(ctx context.Context, topics []string, groupID string, handler Handler) error {
	wake := make(chan struct{}, 1)

	b.mu.Lock()
	for _, topic := range topics {
		if b.groups[topic] == nil {
			b.groups[topic] = make(map[string]int)
		}
		if _, ok := b.groups[topic][groupID]; !ok {
			b.groups[topic][groupID] = 0
		}
		b.notify[topic] = wake
	}
	b.mu.Unlock()

	for {
		delivered := false
		for _, topic := range topics {
			for {
				ev, ok := b.next(topic, groupID)
				if !ok {
					break
				}
				delivered = true
				if err := handler(ctx, ev); err != nil {
					b.rewind(topic, groupID)
					break
				}
				b.advance(topic, groupID)
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if delivered {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

func (b *InMemoryBus) next(topic, groupID string) (SerializedEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.topics[topic]
	idx := b.groups[topic][groupID]
	if idx >= len(events) {
		return SerializedEvent{}, false
	}
	return events[idx], true
}

func (b *InMemoryBus) advance(topic, groupID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.groups[topic][groupID]++
}

func (b *InMemoryBus) rewind(topic, groupID string) {
	// no-op: handler failure leaves the cursor in place so the same
	// event is retried on the next loop iteration, mirroring at-least
	// once delivery with DisableAutoCommit semantics on KafkaBus.
	_ = topic
	_ = groupID
}

func (b *InMemoryBus) ListTopics(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var topics []string
	for topic := range b.topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics, nil
}

func (b *InMemoryBus) Health(ctx context.Context) error { return nil }

func (b *InMemoryBus) Close() error { return nil }

var _ Bus = (*InMemoryBus)(nil)
