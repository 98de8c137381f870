package mq

import (
	"context"
	"fmt"

	"rewardledger/internal/config"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// Publisher delivers one outbox message to the event bus.
type Publisher interface {
	Publish(ctx context.Context, topic, key, value string) error
	Close() error
}

// NewKafkaProducer builds a synchronous producer that waits for every
// in-sync replica, so a nil error means the event is durable.
func NewKafkaProducer(cfg *config.KafkaConfig) (sarama.SyncProducer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	// same key, same partition: per-account ordering
	kafkaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

type KafkaPublisher struct {
	producer sarama.SyncProducer
}

func NewKafkaPublisher(producer sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(_ context.Context, topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send to %s: %w", topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// LogPublisher stands in for Kafka when it is disabled; events are logged
// and marked sent.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "log-publisher").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, topic, key, value string) error {
	p.logger.Info().Str("topic", topic).Str("key", key).RawJSON("payload", []byte(value)).Msg("ledger event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
