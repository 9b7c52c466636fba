package metrics

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitRuntime exports Go runtime metrics through OpenTelemetry into the
// recorder's registry, so they go out with the push. The meter provider is
// also installed globally.
func (r *Recorder) InitRuntime() error {
	exporter, err := prometheus.New(prometheus.WithRegisterer(r.registry))
	if err != nil {
		return errors.Wrap(err, "failed to create prometheus instance")
	}
	provider := metric.NewMeterProvider(metric.WithReader(exporter))

	otel.SetMeterProvider(provider)

	if err := runtime.Start(runtime.WithMeterProvider(provider)); err != nil {
		return errors.Wrap(err, "failed to start runtime")
	}

	r.provider = provider
	return nil
}

// Shutdown stops the meter provider started by InitRuntime.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r.provider == nil {
		return nil
	}
	return errors.Wrap(r.provider.Shutdown(ctx), "failed to shutdown meter provider")
}
