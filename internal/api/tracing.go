package api

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/sentra-io/sentra-backend/internal/config"
)

const serviceName = "sentra-backend"

// SetupTracing wires the OTLP/HTTP trace exporter when the config enables
// it. The returned shutdown flushes pending spans; callers defer it. The
// bool reports whether tracing is active, so main only installs the span
// middleware when spans actually go somewhere.
func SetupTracing(cfg *config.Config) (func(context.Context) error, bool) {
	noop := func(context.Context) error { return nil }
	if !cfg.OTelEnable && cfg.OTelEndpoint == "" {
		return noop, false
	}
	endpoint := cfg.OTelEndpoint
	if endpoint == "" {
		endpoint = "http://localhost:4318"
	}

	exp, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	))
	if err != nil {
		log.Printf("tracing: exporter init failed, continuing without spans: %v", err)
		return noop, false
	}

	res, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceNameKey.String(serviceName)),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, true
}
