package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"stream-gateway/internal/websocket"

	"github.com/IBM/sarama"
)

// InitKafkaProducer builds a synchronous producer for audit records.
func InitKafkaProducer(brokers []string, clientID string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner // same connection, same partition
	config.Version = sarama.V2_0_0_0
	config.ClientID = clientID
	config.Producer.MaxMessageBytes = 1000000

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return producer, nil
}

// AuditPublisher writes connection lifecycle records to a Kafka topic, keyed
// by connection id.
type AuditPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewAuditPublisher(producer sarama.SyncProducer, topic string) *AuditPublisher {
	return &AuditPublisher{producer: producer, topic: topic}
}

// HandleLifecycle publishes opened, authenticated and closed records.
// Heartbeats carry no state change and are not audited.
func (p *AuditPublisher) HandleLifecycle(ctx context.Context, event websocket.LifecycleEvent) error {
	if event.Action == websocket.ActionHeartbeat {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(event.ConnectionID),
		Value:     sarama.ByteEncoder(value),
		Timestamp: event.Timestamp,
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish audit record: %w", err)
	}

	slog.Debug("Audit record published", "connectionID", event.ConnectionID, "action", event.Action, "partition", partition, "offset", offset)
	return nil
}

func (p *AuditPublisher) Close() error {
	return p.producer.Close()
}
