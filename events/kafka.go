package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
)

// DefaultTopicPrefix is prepended to every event type to form the topic.
const DefaultTopicPrefix = "codevault"

// ErrNoBrokers is returned when a Kafka publisher is built without brokers.
var ErrNoBrokers = errors.New("events: no kafka brokers configured")

// KafkaConfig configures a KafkaPublisher.
type KafkaConfig struct {
	// Brokers lists the bootstrap brokers (host:port).
	Brokers []string

	// TopicPrefix is prepended to the event type, e.g. "codevault" yields
	// "codevault.user.registered". Defaults to DefaultTopicPrefix.
	TopicPrefix string

	// ClientID identifies the producer to the brokers.
	ClientID string

	// MaxRetries is the number of produce retries. Defaults to 5.
	MaxRetries int

	// Timeout bounds each produce request. Defaults to 10s.
	Timeout time.Duration
}

// KafkaPublisher publishes JSON events through a synchronous producer,
// keyed by user id so events of one user stay ordered.
type KafkaPublisher struct {
	producer    sarama.SyncProducer
	topicPrefix string
}

// NewKafkaPublisher connects a synchronous producer to cfg.Brokers.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	if cfg.MaxRetries > 0 {
		sc.Producer.Retry.Max = cfg.MaxRetries
	}
	sc.Producer.Timeout = 10 * time.Second
	if cfg.Timeout > 0 {
		sc.Producer.Timeout = cfg.Timeout
	}
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("events: connect kafka: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, cfg.TopicPrefix), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topicPrefix string) *KafkaPublisher {
	if topicPrefix == "" {
		topicPrefix = DefaultTopicPrefix
	}
	return &KafkaPublisher{producer: producer, topicPrefix: topicPrefix}
}

// Topic returns the topic events of typ are published to.
func (p *KafkaPublisher) Topic(typ Type) string {
	return p.topicPrefix + "." + string(typ)
}

// Publish sends e and waits for the broker acknowledgement.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", e.Type, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.Topic(e.Type),
		Key:   sarama.StringEncoder(strconv.FormatInt(e.UserID, 10)),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(e.Type)},
			{Key: []byte("event_id"), Value: []byte(e.ID)},
		},
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("events: publish %s: %w", e.Type, err)
	}
	return nil
}

// Close flushes and closes the producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
