package exporters

import (
	"context"
	"time"

	"creatorpay/pkg/config"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
)

func ProvideGrpc(cfg *config.Config) (*otlptrace.Exporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithCompressor("gzip"),
		otlptracegrpc.WithEndpoint(cfg.Otel.Addr),
	}
	if !cfg.TLS.Enable {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
}
