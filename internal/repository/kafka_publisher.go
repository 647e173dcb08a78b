package repository

import (
	"context"

	"TradePull/internal/domain/models"
	"TradePull/internal/domain/repository"
	pkgkafka "TradePull/pkg/kafka"
)

// KafkaPublisher emits trade events to a Kafka topic, keyed by symbol so
// per-instrument ordering survives partitioning.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ repository.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishTrade(ctx context.Context, ev *models.TradeEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.Symbol), ev)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopPublisher drops events. Used when Kafka is disabled in config.
type NopPublisher struct{}

var _ repository.EventPublisher = (*NopPublisher)(nil)

func (NopPublisher) PublishTrade(ctx context.Context, ev *models.TradeEvent) error { return nil }
func (NopPublisher) Close() error                                                  { return nil }
