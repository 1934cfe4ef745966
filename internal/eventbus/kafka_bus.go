package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/prohmpiriya/ticketcore/internal/corerr"
	"github.com/prohmpiriya/ticketcore/internal/logging"
)

// KafkaConfig configures the franz-go client backing KafkaBus.
type KafkaConfig struct {
	Brokers          []string
	ClientID         string
	SessionTimeout   time.Duration
	RebalanceTimeout time.Duration
}

// KafkaBus is the production Bus, backed directly by franz-go. One
// client handles publishing; Subscribe creates its own client per call
// so independent consumer groups don't share offsets or rebalance
// state, the way the saga consumers in the example service each own
// their client.
type KafkaBus struct {
	cfg      KafkaConfig
	producer *kgo.Client
	logger   logging.Logger
}

// NewKafkaBus dials the brokers and verifies connectivity.
func NewKafkaBus(ctx context.Context, cfg KafkaConfig, logger logging.Logger) (*KafkaBus, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ProducerBatchMaxBytes(1<<20),
	)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindBus, "create kafka producer client", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, corerr.Wrap(corerr.KindBus, "ping kafka brokers", err)
	}

	return &KafkaBus{cfg: cfg, producer: client, logger: logger}, nil
}

func (b *KafkaBus) Publish(ctx context.Context, topic string, event SerializedEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return corerr.Wrap(corerr.KindSerialization, "marshal serialized event", err)
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(event.StreamID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_schema_version", Value: []byte(fmt.Sprintf("%d", event.EventSchemaVersion))},
			{Key: "correlation_id", Value: []byte(event.Metadata.CorrelationID)},
		},
	}

	result := b.producer.ProduceSync(ctx, record)
	if err := result.FirstErr(); err != nil {
		return corerr.Wrap(corerr.KindBus, fmt.Sprintf("publish to topic %s", topic), err)
	}
	return nil
}

func (b *KafkaBus) Subscribe(ctx context.Context, topics []string, groupID string, handler Handler) error {
	sessionTimeout := b.cfg.SessionTimeout
	if sessionTimeout == 0 {
		sessionTimeout = 30 * time.Second
	}
	rebalanceTimeout := b.cfg.RebalanceTimeout
	if rebalanceTimeout == 0 {
		rebalanceTimeout = 60 * time.Second
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(b.cfg.Brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.ClientID(b.cfg.ClientID),
		kgo.DisableAutoCommit(),
		kgo.SessionTimeout(sessionTimeout),
		kgo.RebalanceTimeout(rebalanceTimeout),
	)
	if err != nil {
		return corerr.Wrap(corerr.KindBus, "create kafka consumer client", err)
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		return corerr.Wrap(corerr.KindBus, "ping kafka brokers", err)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				b.logger.ErrorContext(ctx, "kafka fetch error", "topic", fe.Topic, "partition", fe.Partition, "err", fe.Err)
			}
			continue
		}

		// Per-partition FIFO: records for the same stream_id land on the
		// same partition (key = stream_id), so processing each fetched
		// partition's records in order preserves per-stream ordering.
		var handlerErr error
		fetches.EachPartition(func(partition kgo.FetchTopicPartition) {
			for _, record := range partition.Records {
				if handlerErr != nil {
					return
				}
				var event SerializedEvent
				if err := json.Unmarshal(record.Value, &event); err != nil {
					b.logger.ErrorContext(ctx, "discarding undeserializable record", "topic", record.Topic, "err", err)
					continue
				}
				if err := handler(ctx, event); err != nil {
					b.logger.ErrorContext(ctx, "handler failed for record", "topic", record.Topic, "stream_id", event.StreamID, "err", err)
					handlerErr = err
					return
				}
			}
		})
		if handlerErr != nil {
			// Nothing from this poll is committed; the group resumes from
			// its last committed offset when the caller subscribes again.
			return corerr.Wrap(corerr.KindBus, "handler failed; offsets left uncommitted", handlerErr)
		}

		if err := client.CommitUncommittedOffsets(ctx); err != nil {
			b.logger.ErrorContext(ctx, "commit offsets failed", "err", err)
		}
	}
}

func (b *KafkaBus) ListTopics(ctx context.Context) ([]string, error) {
	req := kmsg.NewPtrMetadataRequest()
	resp, err := req.RequestWith(ctx, b.producer)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindBus, "fetch kafka metadata", err)
	}
	topics := make([]string, 0, len(resp.Topics))
	for _, topic := range resp.Topics {
		if topic.Topic != nil {
			topics = append(topics, *topic.Topic)
		}
	}
	return topics, nil
}

func (b *KafkaBus) Health(ctx context.Context) error {
	if err := b.producer.Ping(ctx); err != nil {
		return corerr.Wrap(corerr.KindBus, "kafka health check", err)
	}
	return nil
}

func (b *KafkaBus) Close() error {
	b.producer.Close()
	return nil
}

var _ Bus = (*KafkaBus)(nil)
