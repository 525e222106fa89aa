package repository

import (
	"context"

	"TradeBot/internal/domain/models"
	drepo "TradeBot/internal/domain/repository"
	pkgkafka "TradeBot/pkg/kafka"
)

type batchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

// EventPublisher puts signals and heartbeats on Kafka, keyed by strategy so
// one agent's events stay ordered.
type EventPublisher struct {
	producer        batchProducer
	signalsTopic    string
	heartbeatsTopic string
}

func NewEventPublisher(p batchProducer, signalsTopic, heartbeatsTopic string) *EventPublisher {
	return &EventPublisher{producer: p, signalsTopic: signalsTopic, heartbeatsTopic: heartbeatsTopic}
}

func (p *EventPublisher) PublishSignals(ctx context.Context, signals []models.Signal) error {
	if len(signals) == 0 || p.signalsTopic == "" {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(signals))
	for i, s := range signals {
		msgs[i] = pkgkafka.Message{Key: []byte(s.Strategy), Value: s}
	}
	return p.producer.PublishBatch(ctx, p.signalsTopic, msgs)
}

func (p *EventPublisher) PublishHeartbeat(ctx context.Context, ev models.HeartbeatEvent) error {
	if p.heartbeatsTopic == "" {
		return nil
	}
	return p.producer.PublishBatch(ctx, p.heartbeatsTopic, []pkgkafka.Message{{Key: []byte(ev.AgentName), Value: ev}})
}

var (
	_ drepo.SignalPublisher    = (*EventPublisher)(nil)
	_ drepo.HeartbeatPublisher = (*EventPublisher)(nil)
)
