package repository

import (
	"context"
	"time"

	"LineGuard/internal/domain/models"
	domrepo "LineGuard/internal/domain/repository"
	pkgkafka "LineGuard/pkg/kafka"
)

const (
	EventModelTrained        = "model.trained"
	EventSimulationPredicted = "simulation.prediction"
)

// Event is the envelope of everything published to the events topic.
type Event struct {
	Type    string      `json:"type"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload"`
}

// KafkaEventPublisher publishes lifecycle events and scoring results.
type KafkaEventPublisher struct {
	p            *pkgkafka.Producer
	eventsTopic  string
	resultsTopic string
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)

func NewKafkaEventPublisher(p *pkgkafka.Producer, eventsTopic, resultsTopic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{p: p, eventsTopic: eventsTopic, resultsTopic: resultsTopic}
}

func (k *KafkaEventPublisher) PublishTrained(ctx context.Context, s models.ModelSummary) error {
	return k.p.Publish(ctx, k.eventsTopic, []byte(s.RunID), Event{Type: EventModelTrained, Time: time.Now().UTC(), Payload: s})
}

func (k *KafkaEventPublisher) PublishSimulation(ctx context.Context, e models.SimEvent) error {
	return k.p.Publish(ctx, k.eventsTopic, []byte(EventSimulationPredicted), Event{Type: EventSimulationPredicted, Time: time.Now().UTC(), Payload: e})
}

func (k *KafkaEventPublisher) PublishScoring(ctx context.Context, r models.ScoringResult) error {
	return k.p.Publish(ctx, k.resultsTopic, []byte(r.RequestID), r)
}

func (k *KafkaEventPublisher) Close() error { return k.p.Close() }

// NopEventPublisher is used when Kafka is disabled.
type NopEventPublisher struct{}

var _ domrepo.EventPublisher = NopEventPublisher{}

func (NopEventPublisher) PublishTrained(context.Context, models.ModelSummary) error  { return nil }
func (NopEventPublisher) PublishSimulation(context.Context, models.SimEvent) error   { return nil }
func (NopEventPublisher) PublishScoring(context.Context, models.ScoringResult) error { return nil }
func (NopEventPublisher) Close() error                                               { return nil }
