package webhooks

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "evmbridge/webhooks"

const (
	dropReasonQueueFull = "queue_full"
	dropReasonEncode    = "encode"
)

type deliveryMetrics struct {
	delivered metric.Int64Counter
	dropped   metric.Int64Counter
	abandoned metric.Int64Counter
}

// newDeliveryMetrics binds the dispatcher counters to provider, or to the
// global provider installed by telemetry setup when provider is nil.
func newDeliveryMetrics(provider metric.MeterProvider) *deliveryMetrics {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)
	fallback := noop.NewMeterProvider().Meter(meterName)
	return &deliveryMetrics{
		delivered: int64Counter(meter, fallback, "bridge.webhooks.delivered", "Webhook deliveries acknowledged by the endpoint."),
		dropped:   int64Counter(meter, fallback, "bridge.webhooks.dropped", "Events discarded before delivery was attempted."),
		abandoned: int64Counter(meter, fallback, "bridge.webhooks.abandoned", "Deliveries given up after exhausting retries."),
	}
}

func int64Counter(meter, fallback metric.Meter, name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		counter, _ = fallback.Int64Counter(name)
	}
	return counter
}

func (m *deliveryMetrics) recordDelivered(eventType string) {
	if m == nil {
		return
	}
	m.delivered.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", eventType)))
}

func (m *deliveryMetrics) recordDropped(eventType, reason string) {
	if m == nil {
		return
	}
	m.dropped.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("event", eventType),
		attribute.String("reason", reason),
	))
}

func (m *deliveryMetrics) recordAbandoned(eventType string) {
	if m == nil {
		return
	}
	m.abandoned.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", eventType)))
}
