package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
)

var _ booking.EventPublisher = (*Publisher)(nil)

// Sink is what the Publisher writes envelopes to; *Producer is one.
type Sink interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error
}

// TopicFor routes an aggregate's events to its topic.
func TopicFor(aggregate string) (string, bool) {
	switch aggregate {
	case booking.AggregateOrder:
		return TopicOrders, true
	case booking.AggregateProduct:
		return TopicProducts, true
	case booking.AggregateCalendar:
		return TopicCalendar, true
	}
	return "", false
}

type Publisher struct {
	sinks   map[string]Sink
	service string
	log     *zap.Logger
}

// NewPublisher takes one sink per topic name.
func NewPublisher(service string, sinks map[string]Sink, log *zap.Logger) *Publisher {
	return &Publisher{sinks: sinks, service: service, log: log}
}

func (p *Publisher) Publish(ctx context.Context, ev booking.Event) error {
	topic, ok := TopicFor(ev.Aggregate)
	if !ok {
		return fmt.Errorf("kafka: no topic for aggregate %q", ev.Aggregate)
	}
	sink, ok := p.sinks[topic]
	if !ok {
		return fmt.Errorf("kafka: no producer for topic %s", topic)
	}

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", ev.Type, err)
	}
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     ev.Type,
		EventVersion:  EnvelopeVersion,
		OccurredAt:    occurred.UTC(),
		Producer:      p.service,
		CorrelationID: ev.AggregateID,
		Payload:       payload,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	err = sink.Publish(ctx, PartitionKey(ev.AggregateID), value,
		kafka.Header{Key: HeaderEventType, Value: []byte(ev.Type)},
		kafka.Header{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(EnvelopeVersion))},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	p.log.Debug("event published",
		zap.String("topic", topic),
		zap.String("event_type", ev.Type),
		zap.String("event_id", env.EventID),
		zap.String("aggregate_id", ev.AggregateID))
	return nil
}
