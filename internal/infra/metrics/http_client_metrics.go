package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	httpadapter "github.com/ahrav/lropoller/internal/infra/adapters/http"
)

var _ httpadapter.ClientMetrics = (*httpClientMetrics)(nil)

// httpClientMetrics implements httpadapter.ClientMetrics.
type httpClientMetrics struct {
	requestLatency   metric.Float64Histogram
	requestCount     metric.Int64Counter
	inflightRequests metric.Int64UpDownCounter
}

func newHTTPClientMetrics(mp metric.MeterProvider) (*httpClientMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(httpClientMetrics)
	var err error

	if m.requestLatency, err = meter.Float64Histogram(
		"http_client_request_latency_seconds",
		metric.WithDescription("Latency of status check requests in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.requestCount, err = meter.Int64Counter(
		"http_client_request_total",
		metric.WithDescription("Total number of status check requests"),
	); err != nil {
		return nil, err
	}

	if m.inflightRequests, err = meter.Int64UpDownCounter(
		"http_client_inflight_requests",
		metric.WithDescription("Number of status check requests in flight"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *httpClientMetrics) ObserveRequestLatency(ctx context.Context, host string, method string, statusCode int, duration time.Duration) {
	m.requestLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("host", host),
		attribute.String("method", method),
		attribute.Int("status_code", statusCode),
	))
}

// IncRequestCount increments the count of requests by host and status.
func (m *httpClientMetrics) IncRequestCount(ctx context.Context, host string, method string, statusCode int) {
	m.requestCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("host", host),
		attribute.String("method", method),
		attribute.Int("status_code", statusCode),
	))
}

// TrackInflightRequests tracks the number of requests in flight.
func (m *httpClientMetrics) TrackInflightRequests(ctx context.Context, host string, f func() error) error {
	attrs := metric.WithAttributes(attribute.String("host", host))
	m.inflightRequests.Add(ctx, 1, attrs)
	defer m.inflightRequests.Add(ctx, -1, attrs)

	return f()
}
