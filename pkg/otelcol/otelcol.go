package otelcol

import (
	"context"

	"creatorpay/pkg/config"
	"creatorpay/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("otelcol",
	fx.Provide(
		NewTracerProvider,
		NewMeterProvider,
	),
)

func defaultTraceProviderOption(cfg *config.Config) []sdktrace.TracerProviderOption {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		res = resource.Default()
	}

	return []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}
}

func ProvideTrace(exporter sdktrace.SpanExporter, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	opts = append(opts, sdktrace.WithBatcher(exporter))
	return sdktrace.NewTracerProvider(opts...)
}

// NewTracerProvider exports spans over OTLP when OTEL.ADDR is set and is a
// no-op otherwise. The provider is also installed globally.
func NewTracerProvider(lc fx.Lifecycle, cfg *config.Config) (trace.TracerProvider, error) {
	if cfg.Otel.Addr == "" {
		return tracenoop.NewTracerProvider(), nil
	}

	var (
		exporter *otlptrace.Exporter
		err      error
	)
	switch cfg.Otel.Protocol {
	case "http":
		exporter, err = exporters.ProvideHttp(cfg)
	default:
		exporter, err = exporters.ProvideGrpc(cfg)
	}
	if err != nil {
		zap.L().Error("failed to create otlp exporter", zap.String("addr", cfg.Otel.Addr), zap.Error(err))
		return nil, err
	}

	tp := ProvideTrace(exporter, defaultTraceProviderOption(cfg)...)
	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	zap.L().Info("tracing enabled", zap.String("addr", cfg.Otel.Addr), zap.String("protocol", cfg.Otel.Protocol))
	return tp, nil
}

// NewMeterProvider returns the global meter provider. Application metrics go
// through prometheus; this only feeds instrumentation libraries.
func NewMeterProvider() metric.MeterProvider {
	return otel.GetMeterProvider()
}
