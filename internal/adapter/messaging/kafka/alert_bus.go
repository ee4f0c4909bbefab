package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wallet-ledger-engine/config"
	"wallet-ledger-engine/internal/core/domain"

	"github.com/rs/zerolog"
	segkafka "github.com/segmentio/kafka-go"
)

// Writer wraps the kafka.Writer methods the alert bus needs, so tests can
// substitute an in-memory fake.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...segkafka.Message) error
	Close() error
}

// AlertBus publishes operator alerts to a Kafka topic. Writes are synchronous:
// a CRITICAL alert that cannot be delivered must surface as an error, not
// vanish into an async buffer.
type AlertBus struct {
	log    zerolog.Logger
	writer Writer
	topic  string
}

// NewAlertBus dials Kafka, ensures the alert topic exists and returns a bus
// writing to it.
func NewAlertBus(ctx context.Context, cfg config.KafkaConfig, log zerolog.Logger) (*AlertBus, error) {
	if cfg.AlertTopic == "" {
		return nil, fmt.Errorf("kafka alert topic is not configured")
	}

	conn, err := segkafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("dialing kafka: %w", err)
	}
	defer conn.Close()

	if err := ensureTopic(conn, cfg.AlertTopic, cfg.NumPartitions, cfg.ReplicationFactor, log); err != nil {
		return nil, fmt.Errorf("ensuring alert topic %s: %w", cfg.AlertTopic, err)
	}

	writer := &segkafka.Writer{
		Addr:         segkafka.TCP(cfg.Brokers),
		Topic:        cfg.AlertTopic,
		Balancer:     &segkafka.LeastBytes{},
		RequiredAcks: segkafka.RequireOne,
		WriteTimeout: cfg.WriteTimeout,
	}

	log.Info().Str("topic", cfg.AlertTopic).Msg("Kafka alert bus ready")

	return &AlertBus{log: log, writer: writer, topic: cfg.AlertTopic}, nil
}

// NewAlertBusWithWriter builds a bus on an existing writer. Used by tests.
func NewAlertBusWithWriter(writer Writer, topic string, log zerolog.Logger) *AlertBus {
	return &AlertBus{log: log, writer: writer, topic: topic}
}

// Publish sends one alert, keyed by kind so alerts of one kind stay ordered
// within a partition.
func (b *AlertBus) Publish(ctx context.Context, alert domain.Alert) error {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	value, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	msg := segkafka.Message{
		Key:   []byte(alert.Kind),
		Value: value,
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		b.log.Error().Err(err).
			Str("topic", b.topic).
			Str("kind", alert.Kind).
			Str("severity", string(alert.Severity)).
			Msg("Failed to publish alert")
		return fmt.Errorf("publish alert to %s: %w", b.topic, err)
	}

	b.log.Debug().
		Str("topic", b.topic).
		Str("kind", alert.Kind).
		Msg("Alert published")
	return nil
}

// Close flushes and closes the underlying writer.
func (b *AlertBus) Close() error {
	if err := b.writer.Close(); err != nil {
		return fmt.Errorf("close alert writer: %w", err)
	}
	return nil
}

// ensureTopic creates the topic when it does not exist yet. Partition reads
// are retried because brokers answer before metadata settles on cold start.
func ensureTopic(conn *segkafka.Conn, topic string, numPartitions, replicationFactor int, log zerolog.Logger) error {
	var partitions []segkafka.Partition
	var err error

	for i := 0; i < 5; i++ {
		partitions, err = conn.ReadPartitions(topic)
		if err == nil {
			break
		}
		log.Warn().Err(err).Str("topic", topic).Int("attempt", i+1).Msg("Failed to read partitions, retrying")
		time.Sleep(2 * time.Second)
	}

	if len(partitions) > 0 {
		return nil
	}

	if numPartitions == 0 {
		numPartitions = 1
	}
	if replicationFactor == 0 {
		replicationFactor = 1
	}

	creationErr := conn.CreateTopics(segkafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     numPartitions,
		ReplicationFactor: replicationFactor,
	})
	if creationErr != nil {
		return fmt.Errorf("create topic %s: %w", topic, creationErr)
	}
	log.Info().Str("topic", topic).Msg("Created Kafka topic")
	return nil
}
