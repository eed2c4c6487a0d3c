package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "codevault.user.registered" {
			t.Errorf("Topic = %q", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "7" {
			t.Errorf("Key = %q, want 7", key)
		}
		value, _ := msg.Value.Encode()
		var e Event
		if err := json.Unmarshal(value, &e); err != nil {
			return err
		}
		if e.Type != UserRegistered || e.UserID != 7 || e.Data["role"] != "admin" {
			t.Errorf("event = %+v", e)
		}
		return nil
	})

	p := NewKafkaPublisherWithProducer(producer, "")
	defer p.Close()

	e := New(UserRegistered, 7, time.Now())
	e.Data = map[string]any{"role": "admin"}
	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisherWithProducer(producer, "cv")
	defer p.Close()

	err := p.Publish(context.Background(), New(SnippetDeleted, 1, time.Now()))
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Errorf("Publish() error = %v, want ErrOutOfBrokers", err)
	}
}

func TestKafkaPublisher_CanceledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	p := NewKafkaPublisherWithProducer(producer, "")
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Publish(ctx, New(UserDeleted, 1, time.Now())); !errors.Is(err, context.Canceled) {
		t.Errorf("Publish() error = %v, want context.Canceled", err)
	}
}

func TestKafkaPublisher_Topic(t *testing.T) {
	p := NewKafkaPublisherWithProducer(mocks.NewSyncProducer(t, nil), "vault")
	defer p.Close()

	if got := p.Topic(SnippetCreated); got != "vault.snippet.created" {
		t.Errorf("Topic() = %q", got)
	}
}

func TestNewKafkaPublisher_NoBrokers(t *testing.T) {
	if _, err := NewKafkaPublisher(KafkaConfig{}); !errors.Is(err, ErrNoBrokers) {
		t.Errorf("NewKafkaPublisher() error = %v, want ErrNoBrokers", err)
	}
}

func TestNew(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	e := New(UserRoleChanged, 3, now)

	if len(e.ID) != 26 {
		t.Errorf("ID = %q, want a ULID", e.ID)
	}
	if e.OccurredAt.Location() != time.UTC {
		t.Error("OccurredAt not in UTC")
	}
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.Publish(context.Background(), Event{}); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
