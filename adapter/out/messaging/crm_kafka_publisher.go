package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"crm_server/core/port/out"
	"crm_server/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher implements out.EventPublisher on a Kafka topic.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish sends the event keyed by run id, so one run's events share a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, event *out.PipelineEvent) error {
	msg, err := eventMessage(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event to kafka: %w", err)
	}

	logger.Debug("[KafkaPublisher.Publish] sent %s event %s", event.Type, event.ID)
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func eventMessage(event *out.PipelineEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	key := event.RunID
	if key == "" {
		key = event.Type
	}

	return kafka.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
		Time: event.OccurredAt,
	}, nil
}

var _ out.EventPublisher = (*KafkaPublisher)(nil)
