package ingest

import (
	"context"

	"mailsink/internal/broker"
	"mailsink/internal/constants"
	"mailsink/pkg/metrics"
	"mailsink/pkg/models"
)

// EventProducer publishes ingest-completed events for downstream consumers.
type EventProducer struct {
	producer broker.Producer
	topic    string
}

func NewEventProducer(producer broker.Producer, topic string) *EventProducer {
	if topic == "" {
		topic = constants.DefaultIngestTopic
	}
	return &EventProducer{
		producer: producer,
		topic:    topic,
	}
}

func (p *EventProducer) PublishIngested(ctx context.Context, event models.IngestEvent) error {
	if err := p.producer.Publish(ctx, p.topic, event); err != nil {
		metrics.IngestEventsTotal.WithLabelValues("failed").Inc()
		return err
	}
	metrics.IngestEventsTotal.WithLabelValues("published").Inc()
	return nil
}
