package otelcol

import (
	"context"

	"smallbiznis-picks/pkg/config"
	"smallbiznis-picks/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("otelcol",
	fx.Provide(
		ProvideTracerProvider,
		ProvideMeterProvider,
	),
)

func serviceResource(cfg *config.Config) *resource.Resource {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		return resource.Default()
	}
	return res
}

func ProvideTrace(exporter sdktrace.SpanExporter, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	if len(opts) == 0 {
		opts = []sdktrace.TracerProviderOption{sdktrace.WithResource(resource.Default())}
	}

	opts = append(opts, sdktrace.WithBatcher(exporter))

	return sdktrace.NewTracerProvider(opts...)
}

func ProvideMetric(reader sdkmetric.Reader, opts ...sdkmetric.Option) *sdkmetric.MeterProvider {
	if len(opts) == 0 {
		opts = []sdkmetric.Option{sdkmetric.WithResource(resource.Default())}
	}

	opts = append(opts, sdkmetric.WithReader(reader))

	return sdkmetric.NewMeterProvider(opts...)
}

// ProvideTracerProvider exports spans over OTLP when OTEL.ADDR is set and
// falls back to the global (noop) provider otherwise.
func ProvideTracerProvider(lc fx.Lifecycle, cfg *config.Config) (trace.TracerProvider, error) {
	if cfg.Otel.Addr == "" {
		return otel.GetTracerProvider(), nil
	}

	exporter, err := exporters.NewSpanExporter(context.Background(), cfg)
	if err != nil {
		zap.L().Error("failed to create trace exporter", zap.String("protocol", cfg.Otel.Protocol), zap.Error(err))
		return nil, err
	}

	tp := ProvideTrace(exporter, sdktrace.WithResource(serviceResource(cfg)))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	return tp, nil
}

// ProvideMeterProvider exposes otel instruments through the default
// prometheus registry, next to the client_golang collectors.
func ProvideMeterProvider(lc fx.Lifecycle, cfg *config.Config) (metric.MeterProvider, error) {
	reader, err := otelprom.New()
	if err != nil {
		zap.L().Error("failed to create prometheus reader", zap.Error(err))
		return nil, err
	}

	mp := ProvideMetric(reader, sdkmetric.WithResource(serviceResource(cfg)))
	otel.SetMeterProvider(mp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return mp.Shutdown(ctx)
		},
	})

	return mp, nil
}
