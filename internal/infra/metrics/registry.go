// Package metrics implements the application metric interfaces with
// OpenTelemetry instruments.
package metrics

import (
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/lropoller/internal/application/poller"
	httpadapter "github.com/ahrav/lropoller/internal/infra/adapters/http"
)

const namespace = "lropoller"

// Registry provides access to all metric implementations.
// It centralizes the creation and management of metrics instances.
type Registry struct {
	Poller     poller.Metrics
	HTTPClient httpadapter.ClientMetrics
}

// NewRegistry creates and initializes all metrics implementations.
// It uses a single meter provider to ensure consistent configuration.
func NewRegistry(mp metric.MeterProvider) (*Registry, error) {
	pollerMetrics, err := newPollerMetrics(mp)
	if err != nil {
		return nil, err
	}

	clientMetrics, err := newHTTPClientMetrics(mp)
	if err != nil {
		return nil, err
	}

	return &Registry{
		Poller:     pollerMetrics,
		HTTPClient: clientMetrics,
	}, nil
}
