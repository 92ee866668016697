package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vovakirdan/railsim/internal/config"
)

// InitTracing installs a tracer provider for cfg and returns a shutdown
// function that flushes pending spans. Spans go to w, or to stderr when w is
// nil. Disabled tracing installs a noop provider.
func InitTracing(ctx context.Context, cfg config.TraceConfig, w io.Writer, logger *log.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	if !cfg.Enabled || cfg.Exporter == "none" || cfg.Exporter == "" {
		otel.SetTracerProvider(noop.NewTracerProvider())
		logger.Debug("tracing disabled; using noop tracer provider")
		return func(context.Context) error { return nil }, nil
	}

	if cfg.Exporter != "stdout" {
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
	if w == nil {
		w = os.Stderr
	}
	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	res, err := resource.New(
		ctx,
		resource.WithAttributes(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	logger.Info("tracing enabled", "exporter", cfg.Exporter, "service_name", cfg.ServiceName)
	return tp.Shutdown, nil
}

// ShutdownWithTimeout invokes shutdown with a bounded timeout, logging
// rather than returning errors.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, logger *log.Logger) {
	if shutdown == nil {
		return
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("tracing shutdown failed", "err", err)
	}
}
