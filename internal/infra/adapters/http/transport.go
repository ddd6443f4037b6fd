package http

import (
	"context"
	"net/http"
	"time"

	"github.com/ahrav/lropoller/pkg/common/logger"
)

// ClientMetrics defines metrics for outgoing status check requests.
type ClientMetrics interface {
	// ObserveRequestLatency records the latency of a request.
	ObserveRequestLatency(ctx context.Context, host string, method string, statusCode int, duration time.Duration)

	// IncRequestCount increments the count of requests by host and status.
	IncRequestCount(ctx context.Context, host string, method string, statusCode int)

	// TrackInflightRequests tracks the number of requests in flight.
	TrackInflightRequests(ctx context.Context, host string, f func() error) error
}

// Middleware wraps a RoundTripper and returns a new one.
type Middleware func(http.RoundTripper) http.RoundTripper

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls f(req).
func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

// Chain wraps base with mw; the first middleware is the outermost.
func Chain(base http.RoundTripper, mw ...Middleware) http.RoundTripper {
	for i := len(mw) - 1; i >= 0; i-- {
		base = mw[i](base)
	}
	return base
}

// LoggerTransport logs the start and completion of every request.
func LoggerTransport(log *logger.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			ctx := req.Context()

			log.Debug(ctx, "request started",
				"method", req.Method,
				"url", req.URL.Redacted(),
			)

			resp, err := next.RoundTrip(req)
			if err != nil {
				log.Warn(ctx, "request failed",
					"method", req.Method,
					"url", req.URL.Redacted(),
					"error", err,
					"took", time.Since(start).String(),
				)
				return nil, err
			}

			log.Debug(ctx, "request completed",
				"method", req.Method,
				"url", req.URL.Redacted(),
				"status_code", resp.StatusCode,
				"took", time.Since(start).String(),
			)
			return resp, nil
		})
	}
}

// MetricsTransport records request counts, latency and in-flight requests.
// Requests that fail before a response arrive are counted with status 0.
func MetricsTransport(metrics ClientMetrics) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			ctx := req.Context()
			host := req.URL.Host
			start := time.Now()

			var resp *http.Response
			err := metrics.TrackInflightRequests(ctx, host, func() error {
				var rtErr error
				resp, rtErr = next.RoundTrip(req)
				return rtErr
			})

			statusCode := 0
			if resp != nil {
				statusCode = resp.StatusCode
			}
			metrics.IncRequestCount(ctx, host, req.Method, statusCode)
			metrics.ObserveRequestLatency(ctx, host, req.Method, statusCode, time.Since(start))

			return resp, err
		})
	}
}
