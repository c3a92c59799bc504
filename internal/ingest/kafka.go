package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads event envelopes from a Kafka topic and broadcasts each
// one. Offsets are committed after the broadcast pass, whether or not the
// event was valid.
type KafkaConsumer struct {
	reader      messageReader
	broadcaster Broadcaster
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

func NewKafkaConsumer(reader messageReader, broadcaster Broadcaster) *KafkaConsumer {
	return &KafkaConsumer{reader: reader, broadcaster: broadcaster}
}

// Run consumes until ctx is cancelled or the reader fails.
func (k *KafkaConsumer) Run(ctx context.Context) error {
	defer k.reader.Close()
	slog.Info("Kafka event consumer started")

	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				slog.Info("Kafka event consumer stopped")
				return nil
			}
			return fmt.Errorf("failed to fetch kafka message: %w", err)
		}

		if _, err := k.broadcaster.Broadcast(msg.Value); err != nil {
			slog.Debug("Kafka message dropped", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}

		if err := k.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("Failed to commit kafka offset", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}
