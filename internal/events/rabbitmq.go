// README: RabbitMQ publisher for dispatch events (topic exchange, publisher confirms).
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultExchange = "dispatch.events"

// amqpChannel is the subset of *amqp.Channel the publisher uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	GetNextPublishSeqNo() uint64
}

// RabbitPublisher serialises publishes so every message waits for its own confirm.
type RabbitPublisher struct {
	ch       amqpChannel
	acks     <-chan amqp.Confirmation
	exchange string
	mu       sync.Mutex
}

// NewRabbitPublisher declares the topic exchange, enables confirms on ch and returns a
// publisher bound to it.
func NewRabbitPublisher(ch *amqp.Channel, exchange string) (*RabbitPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return newRabbitPublisher(ch, acks, exchange), nil
}

func newRabbitPublisher(ch amqpChannel, acks <-chan amqp.Confirmation, exchange string) *RabbitPublisher {
	return &RabbitPublisher{ch: ch, acks: acks, exchange: exchange}
}

func (p *RabbitPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	seq := p.ch.GetNextPublishSeqNo()
	if err := p.ch.PublishWithContext(ctx, p.exchange, e.Type, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    time.Now().UTC(),
		MessageId:    e.Key,
		Headers:      amqp.Table{"tenant_id": string(e.TenantID)},
		Body:         body,
	}); err != nil {
		return err
	}

	for {
		select {
		case conf, ok := <-p.acks:
			if !ok {
				return errors.New("rabbitmq confirm channel closed")
			}
			if conf.DeliveryTag < seq {
				// Late confirm for a publish whose caller already gave up.
				continue
			}
			if conf.DeliveryTag > seq {
				return fmt.Errorf("confirm %d arrived before %d", conf.DeliveryTag, seq)
			}
			if conf.Ack {
				return nil
			}
			return errors.New("publish NACK from broker")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
