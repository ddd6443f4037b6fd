package http

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ahrav/lropoller/pkg/common/logger"
)

// ClientConfig controls the transport used for status checks. Transient
// failures (connection errors, 429 and 5xx answers) are retried here so a
// single status check only fails once retries are exhausted.
type ClientConfig struct {
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// DefaultClientConfig returns the client settings used when none are given.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:      30 * time.Second,
		RetryMax:     3,
		RetryWaitMin: time.Second,
		RetryWaitMax: 30 * time.Second,
	}
}

// NewClient builds an *http.Client that retries transient failures and
// traces, logs and measures every attempt. metrics may be nil.
func NewClient(cfg ClientConfig, log *logger.Logger, metrics ClientMetrics) *http.Client {
	mw := []Middleware{LoggerTransport(log)}
	if metrics != nil {
		mw = append(mw, MetricsTransport(metrics))
	}
	base := http.DefaultTransport.(*http.Transport).Clone()

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(Chain(base, mw...)),
	}
	rc.Logger = logger.NewStdLogger(log, logger.LevelDebug)
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	// Once retries run out, return the final response rather than an error.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return rc.StandardClient()
}
