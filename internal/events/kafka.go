package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes JSON events to a Kafka cluster. The topic is set
// per message, so one writer serves every topic.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher returns a publisher connected to the given brokers.
func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Publish marshals the event and writes it under the given topic.
func (publisher *KafkaPublisher) Publish(ctx context.Context, topic string, event any) error {
	data, marshalError := json.Marshal(event)
	if marshalError != nil {
		return fmt.Errorf("events: marshal event: %w", marshalError)
	}
	return publisher.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Value: data,
	})
}

// Close flushes and closes the underlying writer.
func (publisher *KafkaPublisher) Close() error {
	return publisher.writer.Close()
}
