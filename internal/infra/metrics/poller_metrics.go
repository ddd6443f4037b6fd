package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/lropoller/internal/application/poller"
)

var _ poller.Metrics = (*pollerMetrics)(nil)

type pollerMetrics struct {
	statusChecks metric.Int64Counter
	pollDelay    metric.Float64Histogram
	waitDuration metric.Float64Histogram
}

func newPollerMetrics(mp metric.MeterProvider) (*pollerMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(pollerMetrics)
	var err error

	if m.statusChecks, err = meter.Int64Counter(
		"lro_status_checks_total",
		metric.WithDescription("Total number of long-running operation status checks"),
	); err != nil {
		return nil, err
	}

	if m.pollDelay, err = meter.Float64Histogram(
		"lro_poll_delay_seconds",
		metric.WithDescription("Delay chosen before the next status check in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.waitDuration, err = meter.Float64Histogram(
		"lro_wait_duration_seconds",
		metric.WithDescription("Time spent waiting for long-running operations to complete in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// IncStatusCheck increments the count of status checks by operation and outcome.
func (m *pollerMetrics) IncStatusCheck(ctx context.Context, operationName string, outcome string) {
	m.statusChecks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operationName),
		attribute.String("outcome", outcome),
	))
}

// ObservePollDelay records the delay before the next status check.
func (m *pollerMetrics) ObservePollDelay(ctx context.Context, operationName string, delay time.Duration) {
	m.pollDelay.Record(ctx, delay.Seconds(), metric.WithAttributes(
		attribute.String("operation", operationName),
	))
}

// ObserveWaitDuration records how long a wait for completion ran.
func (m *pollerMetrics) ObserveWaitDuration(ctx context.Context, operationName string, outcome string, duration time.Duration) {
	m.waitDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("operation", operationName),
		attribute.String("outcome", outcome),
	))
}
