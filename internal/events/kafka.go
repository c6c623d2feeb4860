// README: Kafka publisher for the technician location stream.
package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Writer is the subset of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// streamBatchTimeout bounds how long an async batch waits before it is flushed.
const streamBatchTimeout = 10 * time.Millisecond

// KafkaPublisher keys each message by Event.Key so one technician's pings stay ordered
// within a partition.
type KafkaPublisher struct {
	writer Writer
}

// NewKafkaPublisher returns an async publisher: Publish only enqueues, and delivery
// failures are logged from the writer's completion callback.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: streamBatchTimeout,
		Completion:   logFailedBatch,
	}}
}

func logFailedBatch(msgs []kafka.Message, err error) {
	if err != nil {
		log.Printf("kafka write failed: messages=%d err=%v", len(msgs), err)
	}
}

func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Key),
		Value: b,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
			{Key: "tenant_id", Value: []byte(e.TenantID)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
