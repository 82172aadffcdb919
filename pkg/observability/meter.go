package observability

import (
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	meterOnce sync.Once
	meterErr  error
)

// EnableOTelMetrics exposes OpenTelemetry instruments on Registry through
// the otel Prometheus exporter and installs the global meter provider.
// Instruments created earlier through otel.Meter start reporting too.
// Calling it again is a no-op.
func EnableOTelMetrics() error {
	meterOnce.Do(func() {
		exporter, err := otelprom.New(
			otelprom.WithRegisterer(Registry()),
			otelprom.WithoutScopeInfo(),
			otelprom.WithoutTargetInfo(),
		)
		if err != nil {
			meterErr = fmt.Errorf("failed to create prometheus exporter: %w", err)
			return
		}
		otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)))
	})
	return meterErr
}
