package events

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/segmentio/kafka-go"
)

const (
	kafkaDialTimeout   = 10 * time.Second
	kafkaBatchTimeout  = 10 * time.Millisecond
	kafkaWriteTimeout  = 10 * time.Second
	headerEventType    = "eventType"
	headerEventID      = "eventId"
	logFmtKafkaStarted = "Kafka event publisher initialized: brokers=%v topic=%s"
)

// KafkaPublisher writes events to a single topic keyed by artifact id, so
// events of one artifact stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, log *logger.Logger) *KafkaPublisher {
	dialer := &kafka.Dialer{
		Timeout:   kafkaDialTimeout,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: kafkaBatchTimeout,
		WriteTimeout: kafkaWriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	log.Info(logFmtKafkaStarted, brokers, topic)

	return &KafkaPublisher{writer: writer, topic: topic}
}

// Message builds the Kafka message for event.
func Message(event *PipelineEvent) (kafka.Message, error) {
	payload, err := marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Key:   []byte(event.ArtifactID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(event.Type)},
			{Key: headerEventID, Value: []byte(event.Header.EventID)},
		},
	}, nil
}

// Publish writes event and waits for the broker acknowledgement.
func (p *KafkaPublisher) Publish(ctx context.Context, event *PipelineEvent) error {
	msg, err := Message(event)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to write event to kafka topic %s: %w", p.topic, err)
	}

	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	closeErr := p.writer.Close()
	if closeErr != nil {
		return fmt.Errorf("failed to close kafka writer: %w", closeErr)
	}

	return nil
}
