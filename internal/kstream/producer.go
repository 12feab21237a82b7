package kstream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"shopbot/internal/model"
)

// messageWriter is the subset of *kafka.Writer used by Producer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes reply outcomes to a Kafka topic.
type Producer struct {
	w messageWriter
}

// NewProducer builds an async writer for topic on broker.
func NewProducer(broker, topic string) *Producer {
	return &Producer{w: &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.Hash{},         // segmentio/kafka-go: partition by message key
		RequiredAcks: kafka.RequireOne,      // segmentio/kafka-go: leader ack only
		Async:        true,                  // segmentio/kafka-go: WriteMessages does not wait for the broker
		BatchTimeout: 50 * time.Millisecond, // flush partial batches after 50ms
	}}
}

// PublishOutcome sends one outcome keyed by webhook event id, so outcomes of
// the same event land on one partition.
func (p *Producer) PublishOutcome(ctx context.Context, out model.ReplyOutcome) error {
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(out.WebhookEventID),
		Value: data,
		Time:  time.Now(),
	})
}

func (p *Producer) Close() error {
	return p.w.Close()
}

// Nop drops outcomes. It is used when no broker is configured.
type Nop struct{}

func (Nop) PublishOutcome(context.Context, model.ReplyOutcome) error { return nil }
func (Nop) Close() error                                             { return nil }
