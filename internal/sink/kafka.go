package sink

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/bilal/netvelocimeter/internal/config"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each measurement to a Kafka topic, keyed by
// correlation id.
type KafkaSink struct {
	writer messageWriter
}

// NewKafka initializes the Kafka writer.
func NewKafka(cfg config.KafkaSinkConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic not configured")
	}

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: int(kafka.RequireOne),
	})

	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("kafka producer initialized")
	return &KafkaSink{writer: writer}, nil
}

// Publish writes m synchronously.
func (k *KafkaSink) Publish(ctx context.Context, m Measurement) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(m.CorrelationID),
		Value: data,
	})
}

// Close shuts down the writer.
func (k *KafkaSink) Close(context.Context) error {
	log.Info().Msg("closing kafka producer")
	return k.writer.Close()
}
