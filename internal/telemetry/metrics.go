package telemetry

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type Metrics struct {
	EventsPublished metric.Int64Counter
	EventsConsumed  metric.Int64Counter
	ProcessingTime  metric.Float64Histogram

	OrdersPlaced      metric.Int64Counter
	OrderValueCents   metric.Int64Histogram
	PaymentsInitiated metric.Int64Counter
	CallbacksReceived metric.Int64Counter
	PaymentsCaptured  metric.Int64Counter
	OrdersProvisioned metric.Int64Counter

	HostBillCalls   metric.Int64Counter
	HostBillLatency metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	published, err := meter.Int64Counter("events_published_total",
		metric.WithDescription("Total billing events published to Kafka"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	consumed, err := meter.Int64Counter("events_consumed_total",
		metric.WithDescription("Total billing events consumed from Kafka"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	procTime, err := meter.Float64Histogram("event_processing_duration_seconds",
		metric.WithDescription("Duration of capture and provision processing"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, err
	}

	ordersPlaced, err := meter.Int64Counter("orders_placed_total",
		metric.WithDescription("Total orders forwarded to HostBill"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, err
	}

	orderValue, err := meter.Int64Histogram("order_value_cents",
		metric.WithDescription("Order total in minor currency units"),
		metric.WithUnit("cents"),
		metric.WithExplicitBucketBoundaries(10000, 25000, 50000, 100000, 250000, 500000),
	)
	if err != nil {
		return nil, err
	}

	initiated, err := meter.Int64Counter("payments_initiated_total",
		metric.WithDescription("Total gateway checkouts started"),
		metric.WithUnit("{payment}"),
	)
	if err != nil {
		return nil, err
	}

	callbacks, err := meter.Int64Counter("gateway_callbacks_total",
		metric.WithDescription("Total gateway callbacks received"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, err
	}

	captured, err := meter.Int64Counter("payments_captured_total",
		metric.WithDescription("Total invoice payments recorded in HostBill"),
		metric.WithUnit("{payment}"),
	)
	if err != nil {
		return nil, err
	}

	provisioned, err := meter.Int64Counter("orders_provisioned_total",
		metric.WithDescription("Total orders accepted for provisioning"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, err
	}

	hbCalls, err := meter.Int64Counter("hostbill_calls_total",
		metric.WithDescription("Total HostBill API calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	hbLatency, err := meter.Float64Histogram("hostbill_call_duration_seconds",
		metric.WithDescription("Duration of HostBill API calls"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		EventsPublished:   published,
		EventsConsumed:    consumed,
		ProcessingTime:    procTime,
		OrdersPlaced:      ordersPlaced,
		OrderValueCents:   orderValue,
		PaymentsInitiated: initiated,
		CallbacksReceived: callbacks,
		PaymentsCaptured:  captured,
		OrdersProvisioned: provisioned,
		HostBillCalls:     hbCalls,
		HostBillLatency:   hbLatency,
	}, nil
}

// NopMetrics returns instruments backed by a no-op meter.
func NopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("nop"))
	return m
}
