// Package kstream carries reply outcomes over Kafka.
package kstream

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"shopbot/internal/model"
)

// messageReader is the subset of *kafka.Reader used by ConsumeOutcomes.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// OutcomeSink stores consumed outcomes.
type OutcomeSink interface {
	Write(ctx context.Context, out model.ReplyOutcome) error
}

// NewReader creates a consumer-group reader for topic.
func NewReader(broker, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{broker},
		Topic:          topic,
		GroupID:        groupID, // segmentio/kafka-go: consumer group, offsets committed by the reader
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second, // segmentio/kafka-go: periodic offset commit
	})
}

// ConsumeOutcomes reads outcomes until ctx is done and hands each one to sink.
// Undecodable messages and sink failures are logged and skipped.
func ConsumeOutcomes(ctx context.Context, r messageReader, sink OutcomeSink, log zerolog.Logger) error {
	for {
		// ReadMessage blocks until a record arrives or ctx is done.
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		var out model.ReplyOutcome
		if err := json.Unmarshal(msg.Value, &out); err != nil {
			log.Warn().Err(err).Int64("offset", msg.Offset).Msg("skipping undecodable outcome")
			continue
		}
		if err := sink.Write(ctx, out); err != nil {
			log.Error().Err(err).Str("webhook_event_id", out.WebhookEventID).Msg("audit write failed")
		}
	}
}
