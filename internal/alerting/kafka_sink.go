package alerting

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
)

// messageWriter is the part of *kafka.Writer the exporter uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaAuditExporter mirrors audit entries to a Kafka (or Redpanda) topic,
// keyed by event type.
type KafkaAuditExporter struct {
	writer messageWriter
}

// NewKafkaAuditExporter creates an exporter writing to topic on brokers.
func NewKafkaAuditExporter(brokers []string, topic string) *KafkaAuditExporter {
	return &KafkaAuditExporter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.LeastBytes{},
		},
	}
}

// Export writes entry as one JSON message.
func (k *KafkaAuditExporter) Export(ctx context.Context, entry models.AuditLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.EventType),
		Value: data,
		Time:  entry.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to export audit entry: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaAuditExporter) Close() error {
	return k.writer.Close()
}
