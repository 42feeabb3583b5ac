package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloudvps-middleware/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer  messageWriter
	topic   string
	tracer  trace.Tracer
	metrics *telemetry.Metrics
}

func NewProducer(brokers []string, topic string, metrics *telemetry.Metrics) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		RequiredAcks: kafka.RequireAll,
	}
	return newProducer(writer, topic, metrics)
}

func newProducer(w messageWriter, topic string, metrics *telemetry.Metrics) *Producer {
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Producer{
		writer:  w,
		topic:   topic,
		tracer:  otel.Tracer("kafka/producer"),
		metrics: metrics,
	}
}

func (p *Producer) Topic() string { return p.topic }

// Publish writes value as JSON. Messages with the same key (invoice ID) land on
// the same partition so one invoice is processed in order.
func (p *Producer) Publish(ctx context.Context, key, eventType string, value any) error {
	ctx, span := p.tracer.Start(ctx, fmt.Sprintf("publish %s", p.topic),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(p.topic),
			attribute.String("messaging.kafka.message.key", key),
			attribute.String("billing.event_type", eventType),
		),
	)
	defer span.End()

	data, err := json.Marshal(value)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	headers := []kafka.Header{{Key: HeaderEventType, Value: []byte(eventType)}}
	otel.GetTextMapPropagator().Inject(ctx, &headerCarrier{headers: &headers})

	msg := kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Time:    time.Now(),
		Headers: headers,
	}

	status := "ok"
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.EventsPublished.Add(ctx, 1, metric.WithAttributes(
			attribute.String("topic", p.topic), attribute.String("type", eventType), attribute.String("status", status)))
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}

	p.metrics.EventsPublished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", p.topic), attribute.String("type", eventType), attribute.String("status", status)))
	span.SetStatus(codes.Ok, "")
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
