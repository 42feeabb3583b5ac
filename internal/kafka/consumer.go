package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloudvps-middleware/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/segmentio/kafka-go"
)

// Message is what handlers receive.
type Message struct {
	Key   string
	Type  string
	Value []byte
	Time  time.Time
}

type HandlerFunc func(ctx context.Context, msg Message) error

// ErrSkip tells the consumer the message can never succeed; it is committed
// without further attempts.
var ErrSkip = errors.New("skip message")

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerOptions struct {
	// Attempts per message before it is logged and committed. Default 5.
	MaxAttempts int
	RetryDelay  time.Duration
}

type Consumer struct {
	reader  messageReader
	groupID string
	topic   string
	opts    ConsumerOptions
	tracer  trace.Tracer
	log     *zap.Logger
	metrics *telemetry.Metrics
}

func NewConsumer(brokers []string, topic, groupID string, opts ConsumerOptions, log *zap.Logger, metrics *telemetry.Metrics) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(reader, topic, groupID, opts, log, metrics)
}

func newConsumer(r messageReader, topic, groupID string, opts ConsumerOptions, log *zap.Logger, metrics *telemetry.Metrics) *Consumer {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Consumer{
		reader:  r,
		groupID: groupID,
		topic:   topic,
		opts:    opts,
		tracer:  otel.Tracer("kafka/consumer"),
		log:     log,
		metrics: metrics,
	}
}

// Listen processes messages one at a time until ctx is cancelled. A message is
// committed once the handler succeeds, returns ErrSkip, or runs out of attempts.
func (c *Consumer) Listen(ctx context.Context, handler HandlerFunc) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		status := c.handle(ctx, msg, handler)
		if ctx.Err() != nil {
			return nil
		}
		c.metrics.EventsConsumed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("topic", c.topic), attribute.String("status", status)))

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to commit offset: %w", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler HandlerFunc) string {
	carrier := &headerCarrier{headers: &msg.Headers}
	msgCtx := otel.GetTextMapPropagator().Extract(ctx, carrier)
	eventType := carrier.Get(HeaderEventType)

	msgCtx, span := c.tracer.Start(msgCtx, fmt.Sprintf("receive %s", c.topic),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(c.topic),
			attribute.String("messaging.kafka.message.key", string(msg.Key)),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
			attribute.String("messaging.kafka.consumer.group", c.groupID),
			attribute.String("billing.event_type", eventType),
		),
	)
	defer span.End()

	in := Message{Key: string(msg.Key), Type: eventType, Value: msg.Value, Time: msg.Time}
	var err error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		err = handler(msgCtx, in)
		if err == nil {
			span.SetStatus(codes.Ok, "")
			return "ok"
		}
		span.RecordError(err)
		if errors.Is(err, ErrSkip) || attempt == c.opts.MaxAttempts {
			break
		}
		c.log.Warn("message handler failed, retrying",
			zap.String("topic", c.topic),
			zap.String("key", in.Key),
			zap.String("event_type", eventType),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			span.SetStatus(codes.Error, ctx.Err().Error())
			return "cancelled"
		case <-time.After(c.opts.RetryDelay * time.Duration(attempt)):
		}
	}

	span.SetStatus(codes.Error, err.Error())
	c.log.Error("dropping message",
		zap.String("topic", c.topic),
		zap.String("key", in.Key),
		zap.String("event_type", eventType),
		zap.Int64("offset", msg.Offset),
		zap.Error(err),
	)
	if errors.Is(err, ErrSkip) {
		return "skipped"
	}
	return "failed"
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
