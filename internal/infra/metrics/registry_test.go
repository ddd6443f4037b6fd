package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func newTestRegistry(t *testing.T) (*Registry, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	reg, err := NewRegistry(mp)
	require.NoError(t, err)
	return reg, reader
}

func TestPollerMetrics(t *testing.T) {
	reg, reader := newTestRegistry(t)
	ctx := context.Background()

	reg.Poller.IncStatusCheck(ctx, "VirtualMachine.Create", "pending")
	reg.Poller.IncStatusCheck(ctx, "VirtualMachine.Create", "pending")
	reg.Poller.IncStatusCheck(ctx, "VirtualMachine.Create", "succeeded")
	reg.Poller.ObservePollDelay(ctx, "VirtualMachine.Create", 5*time.Second)
	reg.Poller.ObserveWaitDuration(ctx, "VirtualMachine.Create", "succeeded", 12*time.Second)

	got := collect(t, reader)

	checks, ok := got["lro_status_checks_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	counts := make(map[string]int64)
	for _, dp := range checks.DataPoints {
		outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
		counts[outcome.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"pending": 2, "succeeded": 1}, counts)

	delay, ok := got["lro_poll_delay_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, delay.DataPoints, 1)
	assert.Equal(t, uint64(1), delay.DataPoints[0].Count)
	assert.InDelta(t, 5.0, delay.DataPoints[0].Sum, 1e-9)

	wait, ok := got["lro_wait_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, wait.DataPoints, 1)
	assert.InDelta(t, 12.0, wait.DataPoints[0].Sum, 1e-9)
}

func TestHTTPClientMetrics(t *testing.T) {
	reg, reader := newTestRegistry(t)
	ctx := context.Background()

	var inflightDuringCall int64
	err := reg.HTTPClient.TrackInflightRequests(ctx, "management.example.test", func() error {
		got := collect(t, reader)
		inflight, ok := got["http_client_inflight_requests"].Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, inflight.DataPoints, 1)
		inflightDuringCall = inflight.DataPoints[0].Value
		return nil
	})
	require.NoError(t, err)
	reg.HTTPClient.IncRequestCount(ctx, "management.example.test", "GET", 200)
	reg.HTTPClient.ObserveRequestLatency(ctx, "management.example.test", "GET", 200, 150*time.Millisecond)

	got := collect(t, reader)
	assert.Equal(t, int64(1), inflightDuringCall)

	inflight := got["http_client_inflight_requests"].Data.(metricdata.Sum[int64])
	assert.Equal(t, int64(0), inflight.DataPoints[0].Value)

	count := got["http_client_request_total"].Data.(metricdata.Sum[int64])
	require.Len(t, count.DataPoints, 1)
	assert.Equal(t, int64(1), count.DataPoints[0].Value)

	latency := got["http_client_request_latency_seconds"].Data.(metricdata.Histogram[float64])
	require.Len(t, latency.DataPoints, 1)
	assert.InDelta(t, 0.15, latency.DataPoints[0].Sum, 1e-9)
}
