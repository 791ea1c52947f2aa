package telemetry

import (
	"context"
	"fmt"

	apimetric "go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/quantfold/sigpack"

// Metrics groups the instrument set recorded across the packaging toolkit.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	bundlesSaved       apimetric.Int64Counter
	bundlesLoaded      apimetric.Int64Counter
	deploymentsCreated apimetric.Int64Counter
	predictions        apimetric.Int64Counter
	predictionErrors   apimetric.Int64Counter
}

// NewMetrics builds the instrument set against the provided meter provider.
func NewMetrics(provider apimetric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)

	saved, err := meter.Int64Counter("sigpack.bundles.saved",
		apimetric.WithDescription("Strategy bundles written to disk"))
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	loaded, err := meter.Int64Counter("sigpack.bundles.loaded",
		apimetric.WithDescription("Strategy bundles loaded into containers"))
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	deployments, err := meter.Int64Counter("sigpack.deployments.created",
		apimetric.WithDescription("Deployment directories rendered"))
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	predictions, err := meter.Int64Counter("sigpack.predictions.served",
		apimetric.WithDescription("Prediction requests answered"))
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	predictionErrors, err := meter.Int64Counter("sigpack.predictions.errors",
		apimetric.WithDescription("Prediction requests that failed"))
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}

	return &Metrics{
		bundlesSaved:       saved,
		bundlesLoaded:      loaded,
		deploymentsCreated: deployments,
		predictions:        predictions,
		predictionErrors:   predictionErrors,
	}, nil
}

// BundleSaved records one bundle write.
func (m *Metrics) BundleSaved(ctx context.Context) {
	if m == nil {
		return
	}
	m.bundlesSaved.Add(ctx, 1)
}

// BundleLoaded records one bundle load.
func (m *Metrics) BundleLoaded(ctx context.Context) {
	if m == nil {
		return
	}
	m.bundlesLoaded.Add(ctx, 1)
}

// DeploymentCreated records one deployment render.
func (m *Metrics) DeploymentCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.deploymentsCreated.Add(ctx, 1)
}

// PredictionServed records one answered prediction request.
func (m *Metrics) PredictionServed(ctx context.Context) {
	if m == nil {
		return
	}
	m.predictions.Add(ctx, 1)
}

// PredictionFailed records one failed prediction request.
func (m *Metrics) PredictionFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.predictionErrors.Add(ctx, 1)
}
