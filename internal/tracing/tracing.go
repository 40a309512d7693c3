// Package tracing installs the process-wide OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// ShutdownFunc flushes pending spans and stops the provider.
type ShutdownFunc func(context.Context) error

type Options struct {
	Exporter       string
	ServiceName    string
	ServiceVersion string

	// Writer receives stdout spans. Defaults to os.Stdout.
	Writer io.Writer
	Logger *zap.Logger
}

// Setup installs a tracer provider for opts.Exporter and returns its
// shutdown function. The "none" exporter installs a no-op provider.
func Setup(ctx context.Context, opts Options) (ShutdownFunc, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	SetPropagator()

	exporter := strings.ToLower(strings.TrimSpace(opts.Exporter))
	switch exporter {
	case "", ExporterNone:
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	case ExporterStdout:
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q", opts.Exporter)
	}

	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create %s exporter: %w", exporter, err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", opts.ServiceName),
			attribute.String("service.version", opts.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	logger.Info("tracing initialized",
		zap.String("exporter", exporter),
		zap.String("service", opts.ServiceName),
	)

	return func(ctx context.Context) error {
		logger.Info("shutting down tracer provider")
		return provider.Shutdown(ctx)
	}, nil
}
