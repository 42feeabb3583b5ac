package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func withTraceContext(t *testing.T) context.Context {
	t.Helper()
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestPublishSetsHeaders(t *testing.T) {
	ctx := withTraceContext(t)
	w := &fakeWriter{}
	p := newProducer(w, "payment-events", nil)

	err := p.Publish(ctx, "501", "payment.confirmed", map[string]string{"invoice_id": "501"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "501", string(msg.Key))
	assert.JSONEq(t, `{"invoice_id":"501"}`, string(msg.Value))

	carrier := &headerCarrier{headers: &msg.Headers}
	assert.Equal(t, "payment.confirmed", carrier.Get(HeaderEventType))
	assert.Contains(t, carrier.Get("traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")
}

func TestPublishError(t *testing.T) {
	p := newProducer(&fakeWriter{err: errors.New("broker down")}, "payment-events", nil)
	err := p.Publish(context.Background(), "1", "payment.confirmed", struct{}{})
	assert.ErrorContains(t, err, "broker down")
}

func TestHeaderCarrierSetReplaces(t *testing.T) {
	var headers []kafka.Header
	c := &headerCarrier{headers: &headers}
	c.Set("traceparent", "a")
	c.Set("traceparent", "b")
	assert.Len(t, headers, 1)
	assert.Equal(t, "b", c.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) == 0 {
		r.mu.Unlock()
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	r.mu.Unlock()
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func eventMessage(key, eventType string, offset int64) kafka.Message {
	body, _ := json.Marshal(map[string]string{"key": key})
	return kafka.Message{
		Key:     []byte(key),
		Value:   body,
		Offset:  offset,
		Headers: []kafka.Header{{Key: HeaderEventType, Value: []byte(eventType)}},
	}
}

func TestListenCommitsAfterHandling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{
		queue:  []kafka.Message{eventMessage("501", "payment.confirmed", 1), eventMessage("502", "payment.reconcile", 2)},
		cancel: cancel,
	}
	c := newConsumer(r, "payment-events", "payment-worker", ConsumerOptions{RetryDelay: time.Millisecond}, nil, nil)

	var seen []Message
	err := c.Listen(ctx, func(_ context.Context, msg Message) error {
		seen = append(seen, msg)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, "501", seen[0].Key)
	assert.Equal(t, "payment.confirmed", seen[0].Type)
	assert.Equal(t, "payment.reconcile", seen[1].Type)
	assert.Len(t, r.committed, 2)
}

func TestListenRetriesThenCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{queue: []kafka.Message{eventMessage("501", "payment.confirmed", 1)}, cancel: cancel}
	c := newConsumer(r, "payment-events", "payment-worker", ConsumerOptions{MaxAttempts: 3, RetryDelay: time.Millisecond}, nil, nil)

	attempts := 0
	err := c.Listen(ctx, func(context.Context, Message) error {
		attempts++
		if attempts < 2 {
			return errors.New("hostbill unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Len(t, r.committed, 1)
}

func TestListenSkipIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{queue: []kafka.Message{eventMessage("501", "unknown", 1)}, cancel: cancel}
	c := newConsumer(r, "payment-events", "payment-worker", ConsumerOptions{MaxAttempts: 5, RetryDelay: time.Millisecond}, nil, nil)

	attempts := 0
	err := c.Listen(ctx, func(context.Context, Message) error {
		attempts++
		return ErrSkip
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Len(t, r.committed, 1)
}
