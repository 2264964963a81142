package server

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/MrEthical07/mpauth"
	otelexport "github.com/MrEthical07/mpauth/metrics/export/otel"
)

const serviceName = "mpauth-server"

// startMetricPush pushes engine metrics to the configured OTLP/HTTP endpoint
// every OTLPInterval. The returned func flushes once more and stops.
func (app *App) startMetricPush(ctx context.Context, engine *mpauth.Engine) (func(context.Context) error, error) {
	exporter, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(app.config.OTLPEndpoint))
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(app.config.OTLPInterval))),
	)
	instruments, err := otelexport.New(provider.Meter("github.com/MrEthical07/mpauth"), engine)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	return func(ctx context.Context) error {
		err := provider.Shutdown(ctx)
		_ = instruments.Close()
		return err
	}, nil
}
